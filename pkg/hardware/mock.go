package hardware

import (
	"fmt"
	"sync"
	"time"

	"github.com/dougsko/pagerd/pkg/logging"
)

// MockSink implements SampleSink without hardware. With Realtime set it
// paces writes at the sample rate like a device would.
type MockSink struct {
	sampleRate int
	realtime   bool
	mutex      sync.RWMutex

	tuned       TxParams
	active      bool
	activations int
	written     int64
	writes      int
	closed      bool

	// Failure injection
	TuneErr     error
	ActivateErr error
	WriteErr    error
}

// NewMockSink creates a mock sample sink
func NewMockSink(sampleRate int, realtime bool) *MockSink {
	return &MockSink{
		sampleRate: sampleRate,
		realtime:   realtime,
	}
}

// Tune records the TX parameters
func (s *MockSink) Tune(p TxParams) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.TuneErr != nil {
		return s.TuneErr
	}

	logging.Debugf("hardware", "MockSink: tuned to %s, gain %d, amp %t", p.Frequency, p.GainRF, p.Amplifier)
	s.tuned = p
	return nil
}

// SampleRate returns the IQ sample rate
func (s *MockSink) SampleRate() int {
	return s.sampleRate
}

// Activate turns the mock stream on
func (s *MockSink) Activate() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.ActivateErr != nil {
		return s.ActivateErr
	}
	s.active = true
	s.activations++
	return nil
}

// Deactivate turns the mock stream off
func (s *MockSink) Deactivate() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.active = false
	return nil
}

// Write counts IQ samples
func (s *MockSink) Write(iq []complex64) error {
	s.mutex.Lock()
	if s.WriteErr != nil {
		s.mutex.Unlock()
		return s.WriteErr
	}
	if !s.active {
		s.mutex.Unlock()
		return fmt.Errorf("mock stream not active")
	}
	s.written += int64(len(iq))
	s.writes++
	s.mutex.Unlock()

	if s.realtime && s.sampleRate > 0 {
		time.Sleep(time.Duration(len(iq)) * time.Second / time.Duration(s.sampleRate))
	}
	return nil
}

// Close marks the sink closed
func (s *MockSink) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

// Written returns the number of IQ samples and write calls so far
func (s *MockSink) Written() (int64, int) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.written, s.writes
}

// Active reports whether the stream is on
func (s *MockSink) Active() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.active
}

// Activations returns how many times the stream was turned on
func (s *MockSink) Activations() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.activations
}

// Tuned returns the last applied parameters
func (s *MockSink) Tuned() TxParams {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.tuned
}

// Closed reports whether Close was called
func (s *MockSink) Closed() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.closed
}

// MockConfig sets up failures and timing of a MockTransmitter
type MockConfig struct {
	ConfigureErr error
	StartErr     error
	PushErr      error
	WaitErr      error

	// IsIdle turns true on this poll after a push
	IdleAfterPolls int
}

// MockTransmitter implements Transmitter for testing and records every call
type MockTransmitter struct {
	config MockConfig
	mutex  sync.RWMutex

	params     TxParams
	configured bool
	started    bool
	stopped    bool
	closed     bool
	pending    bool
	polls      int
	pushed     [][]int16
	calls      []string
}

// NewMockTransmitter creates a mock transmitter
func NewMockTransmitter(config MockConfig) *MockTransmitter {
	return &MockTransmitter{config: config}
}

func (m *MockTransmitter) record(call string) {
	m.calls = append(m.calls, call)
}

// Configure records the parameters
func (m *MockTransmitter) Configure(p TxParams) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.record("configure")
	if m.config.ConfigureErr != nil {
		return m.config.ConfigureErr
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.params = p
	m.configured = true
	return nil
}

// Start marks the worker started
func (m *MockTransmitter) Start() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.record("start")
	if m.config.StartErr != nil {
		return m.config.StartErr
	}
	if !m.configured {
		return ErrNotConfigured
	}
	m.started = true
	return nil
}

// Push stores the samples
func (m *MockTransmitter) Push(samples []int16) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.record("push")
	if m.config.PushErr != nil {
		return m.config.PushErr
	}
	if !m.started {
		return ErrNotStarted
	}
	m.pushed = append(m.pushed, samples)
	m.pending = true
	m.polls = 0
	return nil
}

// IsIdle reports idle once IdleAfterPolls polls have happened since the
// last push
func (m *MockTransmitter) IsIdle() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.record("is_idle")
	if !m.pending {
		return true
	}
	m.polls++
	if m.polls >= m.config.IdleAfterPolls {
		m.pending = false
		return true
	}
	return false
}

// Stop marks the worker stopped
func (m *MockTransmitter) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("stop")
	m.stopped = true
}

// Wait returns the configured wait error
func (m *MockTransmitter) Wait(timeout time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("wait")
	return m.config.WaitErr
}

// Close marks the transmitter released
func (m *MockTransmitter) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.record("close")
	m.closed = true
	return nil
}

// Calls returns the recorded call names in order
func (m *MockTransmitter) Calls() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]string(nil), m.calls...)
}

// Params returns the configured parameters
func (m *MockTransmitter) Params() TxParams {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.params
}

// Pushed returns every pushed buffer
func (m *MockTransmitter) Pushed() [][]int16 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([][]int16(nil), m.pushed...)
}

// Closed reports whether Close was called
func (m *MockTransmitter) Closed() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.closed
}

// MockFactory opens MockTransmitters and keeps track of them
type MockFactory struct {
	Config  MockConfig
	OpenErr error

	mutex  sync.Mutex
	opened []*MockTransmitter
}

// Open implements Opener
func (f *MockFactory) Open() (Transmitter, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.OpenErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, f.OpenErr)
	}

	m := NewMockTransmitter(f.Config)
	f.opened = append(f.opened, m)
	return m, nil
}

// Opened returns every transmitter handed out so far
func (f *MockFactory) Opened() []*MockTransmitter {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]*MockTransmitter(nil), f.opened...)
}

// Live counts opened transmitters that have not been closed
func (f *MockFactory) Live() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	live := 0
	for _, m := range f.opened {
		if !m.Closed() {
			live++
		}
	}
	return live
}
