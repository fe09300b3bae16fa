package monitor

import (
	"sync"

	"exameye/shield/internal/models"
)

// DefaultFeedCapacity bounds the live alert feed.
const DefaultFeedCapacity = 20

// Feed is a fixed-capacity, newest-first buffer of live alerts. Alerts are
// ephemeral display signals, so no deduplication is done: the periodic
// violations refresh is the system of record.
type Feed struct {
	mu       sync.Mutex
	capacity int
	alerts   []models.LiveAlert
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		capacity: capacity,
		alerts:   make([]models.LiveAlert, 0, capacity),
	}
}

// Push prepends the alert, evicting the oldest entry once full.
func (f *Feed) Push(alert models.LiveAlert) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.alerts) < f.capacity {
		f.alerts = append(f.alerts, models.LiveAlert{})
	}
	copy(f.alerts[1:], f.alerts)
	f.alerts[0] = alert
}

// Alerts returns a copy, newest first.
func (f *Feed) Alerts() []models.LiveAlert {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.LiveAlert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}
