package worker

import (
	"math"
	"time"

	"ridesync/internal/config"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// PolicyFromConfig returns nil when backoff is disabled.
func PolicyFromConfig(cfg config.BackoffConfig) *RetryPolicy {
	if !cfg.Enabled {
		return nil
	}
	return &RetryPolicy{
		InitialDelay:  cfg.Initial,
		MaxDelay:      cfg.Max,
		BackoffFactor: cfg.Factor,
	}
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	d := time.Duration(delay)
	if d <= 0 {
		d = time.Second
	}
	return d
}
