package models

// SyncStatus is the write-path health summary shown to the user.
type SyncStatus string

const (
	StatusOnline  SyncStatus = "Online"
	StatusSyncing SyncStatus = "Syncing"
	StatusOffline SyncStatus = "Offline"
)

// Gauge maps the status onto a numeric metric value.
func (s SyncStatus) Gauge() float64 {
	switch s {
	case StatusSyncing:
		return 1
	case StatusOffline:
		return 2
	default:
		return 0
	}
}

// ConnectionStatus is the result of a connectivity probe.
type ConnectionStatus struct {
	Reachable bool `json:"reachable"`
}
