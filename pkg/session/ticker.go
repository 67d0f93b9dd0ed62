package session

import (
	"sync"
	"time"
)

// PollMonitor fires tick at a fixed interval while a transmission is in
// flight. tick must not block.
type PollMonitor interface {
	Start(interval time.Duration, tick func())
	Stop()
}

// TickerMonitor drives ticks from a time.Ticker goroutine
type TickerMonitor struct {
	mutex sync.Mutex
	stop  chan struct{}
}

// NewTickerMonitor creates an idle ticker monitor
func NewTickerMonitor() *TickerMonitor {
	return &TickerMonitor{}
}

// Start begins ticking, replacing any previous run
func (m *TickerMonitor) Start(interval time.Duration, tick func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stop != nil {
		close(m.stop)
	}
	stop := make(chan struct{})
	m.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}

// Stop ends ticking. It does not wait for the goroutine.
func (m *TickerMonitor) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
}

// ManualMonitor ticks only when Fire is called
type ManualMonitor struct {
	mutex    sync.Mutex
	tick     func()
	interval time.Duration
	starts   int
}

// Start stores the tick function
func (m *ManualMonitor) Start(interval time.Duration, tick func()) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tick = tick
	m.interval = interval
	m.starts++
}

// Stop forgets the tick function
func (m *ManualMonitor) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.tick = nil
}

// Fire runs one tick and reports whether the monitor was running
func (m *ManualMonitor) Fire() bool {
	m.mutex.Lock()
	tick := m.tick
	m.mutex.Unlock()

	if tick == nil {
		return false
	}
	tick()
	return true
}

// Running reports whether a tick function is installed
func (m *ManualMonitor) Running() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.tick != nil
}

// Interval returns the interval of the last Start
func (m *ManualMonitor) Interval() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.interval
}
