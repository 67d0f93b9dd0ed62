package session

import (
	"fmt"
	"time"
)

// Severity classifies a status line for the presentation layer
type Severity int

const (
	SeverityOK Severity = iota
	SeverityProgress
	SeverityError
	SeverityInfo
)

// String returns the lower case severity name
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityProgress:
		return "progress"
	case SeverityError:
		return "error"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name written by MarshalText
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ok":
		*s = SeverityOK
	case "progress":
		*s = SeverityProgress
	case "error":
		*s = SeverityError
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Status texts
const (
	TextConnecting = "Connecting to transmitter..."
	TextEncoding   = "Encoding message..."
	TextSending    = "Sending..."
	TextSuccess    = "Success"
	TextReady      = "Ready"

	TextAcquireFailed   = "Failed to connect to transmitter. Maybe not connected or busy?"
	TextConfigureFailed = "Failed to set TX parameters."
	TextEncodeFailed    = "Failed to encode POCSAG message."
	TextTransmitFailed  = "Failed to hand message to transmitter."
)

// Status is one status line
type Status struct {
	Text     string    `json:"text"`
	Severity Severity  `json:"severity"`
	Time     time.Time `json:"time"`
}

// Presenter receives status lines and send button state. Calls come from
// the controller goroutine in order.
type Presenter interface {
	Status(s Status)
	SendEnabled(enabled bool)
}

// NopPresenter discards everything
type NopPresenter struct{}

func (NopPresenter) Status(Status) {}

func (NopPresenter) SendEnabled(bool) {}

// ErrorKind tells the controller which abort path a failure takes
type ErrorKind int

const (
	AcquireFailed ErrorKind = iota + 1
	ConfigureFailed
	EncodeFailed
	TransmitFailed
)

// String returns the snake case kind name
func (k ErrorKind) String() string {
	switch k {
	case AcquireFailed:
		return "acquire_failed"
	case ConfigureFailed:
		return "configure_failed"
	case EncodeFailed:
		return "encode_failed"
	case TransmitFailed:
		return "transmit_failed"
	default:
		return "none"
	}
}

func (k ErrorKind) text() string {
	switch k {
	case AcquireFailed:
		return TextAcquireFailed
	case ConfigureFailed:
		return TextConfigureFailed
	case EncodeFailed:
		return TextEncodeFailed
	default:
		return TextTransmitFailed
	}
}

// Failure is a classified session error
type Failure struct {
	Kind ErrorKind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}
