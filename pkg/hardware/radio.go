package hardware

import (
	"errors"
	"fmt"
	"time"

	"github.com/dougsko/pagerd/pkg/tuning"
)

var (
	// ErrDeviceUnavailable is returned when no transmitter can be opened
	ErrDeviceUnavailable = errors.New("transmitter device unavailable")
	// ErrConfigure is returned when the device rejects TX parameters
	ErrConfigure = errors.New("failed to set TX parameters")
	// ErrNotConfigured is returned by Start before a successful Configure
	ErrNotConfigured = errors.New("transmitter not configured")
	// ErrNotStarted is returned by Push before Start
	ErrNotStarted = errors.New("transmitter not started")
	// ErrStopped is returned by Push after Stop
	ErrStopped = errors.New("transmitter stopped")
	// ErrWaitTimeout is returned when the worker does not quiesce in time
	ErrWaitTimeout = errors.New("timed out waiting for transmitter to stop")
)

// Transmitter defaults
const (
	DefaultSubChunkSize = 4096
	DefaultSampleRate   = 2400000
	DefaultStopTimeout  = 5 * time.Second

	// HackRF front end amplifier gain when enabled
	AmpGainDB = 14
)

// TxParams are applied by Configure before the worker starts
type TxParams struct {
	SubChunkSize    int
	Frequency       tuning.Frequency
	DeviationKHz    float64
	Amplifier       bool
	GainRF          int
	AutoOffWhenIdle bool
}

// Validate checks TX parameters before they reach the device
func (p TxParams) Validate() error {
	if p.SubChunkSize <= 0 {
		return fmt.Errorf("sub chunk size %d: %w", p.SubChunkSize, ErrConfigure)
	}
	if p.Frequency.Hertz() <= 0 {
		return fmt.Errorf("frequency %s: %w", p.Frequency, ErrConfigure)
	}
	if p.DeviationKHz <= 0 {
		return fmt.Errorf("deviation %.1f kHz: %w", p.DeviationKHz, ErrConfigure)
	}
	if p.GainRF < 0 {
		return fmt.Errorf("gain %d: %w", p.GainRF, ErrConfigure)
	}
	return nil
}

// Transmitter streams baseband to a radio from a background worker.
// A session owns one transmitter from Open until Close.
type Transmitter interface {
	Configure(p TxParams) error
	Start() error

	// Push queues baseband samples for transmission
	Push(samples []int16) error

	// IsIdle reports whether every pushed sample has been sent
	IsIdle() bool

	// Stop asks the worker to finish; Wait blocks until it has
	Stop()
	Wait(timeout time.Duration) error

	Close() error
}

// Opener acquires a transmitter
type Opener func() (Transmitter, error)
