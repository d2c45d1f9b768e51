package models

import "time"

// NotificationRecord is a notifications row in the remote store's field naming.
type NotificationRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt Timestamp `json:"created_at"`
}

// Notification is the application-side view of a notification.
type Notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

func (r NotificationRecord) ToNotification() Notification {
	return Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		Message:   r.Message,
		Read:      r.IsRead,
		CreatedAt: r.CreatedAt.Time,
	}
}
