package engine

import (
	"sync"

	"github.com/dougsko/pagerd/pkg/session"
)

// statusHistory is how many status lines are kept for late subscribers
const statusHistory = 50

// UpdateType tells what an Update carries
type UpdateType string

const (
	UpdateStatus      UpdateType = "status"
	UpdateSendEnabled UpdateType = "send_enabled"
)

// Update is one presentation change pushed to subscribers
type Update struct {
	Type        UpdateType      `json:"type"`
	Status      *session.Status `json:"status,omitempty"`
	SendEnabled *bool           `json:"send_enabled,omitempty"`
}

// StatusBus is the session.Presenter of the daemon. It keeps recent status
// lines and fans every change out to subscribers.
type StatusBus struct {
	mutex       sync.RWMutex
	recent      []session.Status
	sendEnabled bool
	subscribers map[int]chan Update
	nextID      int
}

// NewStatusBus creates an empty bus
func NewStatusBus() *StatusBus {
	return &StatusBus{subscribers: make(map[int]chan Update)}
}

// Status implements session.Presenter
func (b *StatusBus) Status(s session.Status) {
	b.mutex.Lock()
	b.recent = append(b.recent, s)
	if len(b.recent) > statusHistory {
		b.recent = b.recent[len(b.recent)-statusHistory:]
	}
	b.mutex.Unlock()

	b.publish(Update{Type: UpdateStatus, Status: &s})
}

// SendEnabled implements session.Presenter
func (b *StatusBus) SendEnabled(enabled bool) {
	b.mutex.Lock()
	b.sendEnabled = enabled
	b.mutex.Unlock()

	b.publish(Update{Type: UpdateSendEnabled, SendEnabled: &enabled})
}

// publish never blocks the controller; a slow subscriber misses updates
func (b *StatusBus) publish(u Update) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribe returns a channel of updates and a function that ends the
// subscription
func (b *StatusBus) Subscribe() (<-chan Update, func()) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Update, 32)
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mutex.Lock()
			defer b.mutex.Unlock()
			delete(b.subscribers, id)
			close(ch)
		})
	}
}

// Recent returns up to limit of the latest status lines, oldest first
func (b *StatusBus) Recent(limit int) []session.Status {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	start := 0
	if limit > 0 && len(b.recent) > limit {
		start = len(b.recent) - limit
	}
	return append([]session.Status(nil), b.recent[start:]...)
}

// Subscribers counts active subscriptions
func (b *StatusBus) Subscribers() int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.subscribers)
}
