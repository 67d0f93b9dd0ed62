// Package session owns the pager form and the single in-flight
// transmission.
//
// All work happens on one goroutine: field edits, send requests and poll
// ticks are events handled in arrival order by Controller.Handle, either
// directly or through the queue drained by Controller.Run. The only
// blocking call is the bounded wait for a stopped transmitter worker.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dougsko/pagerd/pkg/hardware"
	"github.com/dougsko/pagerd/pkg/logging"
	"github.com/dougsko/pagerd/pkg/options"
	"github.com/dougsko/pagerd/pkg/pocsag"
)

var (
	// ErrBusy is returned for a send while a session is active
	ErrBusy = errors.New("transmission in progress")
	// ErrNotReady is returned for a send without capcode or frequency
	ErrNotReady = errors.New("capcode and frequency are required")
	// ErrStopped is returned by Post once Run has exited
	ErrStopped = errors.New("controller stopped")
)

// State of the session state machine
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateConfiguring
	StateEncoding
	StateTransmitting
	StateSuccess
	StateAborted
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiring:
		return "acquiring"
	case StateConfiguring:
		return "configuring"
	case StateEncoding:
		return "encoding"
	case StateTransmitting:
		return "transmitting"
	case StateSuccess:
		return "success"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Event is something the controller reacts to
type Event interface {
	eventName() string
}

// FieldChanged is a text edit of one field
type FieldChanged struct {
	Field Field
	Text  string
}

// TypeChanged selects a message type by index
type TypeChanged struct {
	Index int
}

// OptionsChanged sets one selector, or the amplifier when Selector is
// "amplifier" (index 0 off, anything else on)
type OptionsChanged struct {
	Selector string
	Index    int
}

// SendRequested asks for a transmission of the current form
type SendRequested struct{}

// PollTick is posted by the poll monitor of session Session
type PollTick struct {
	Session uint64
}

// Snapshot asks for the current View
type Snapshot struct{}

func (FieldChanged) eventName() string   { return "field_changed" }
func (TypeChanged) eventName() string    { return "type_changed" }
func (OptionsChanged) eventName() string { return "options_changed" }
func (SendRequested) eventName() string  { return "send_requested" }
func (PollTick) eventName() string       { return "poll_tick" }
func (Snapshot) eventName() string       { return "snapshot" }

// SelectorAmplifier is the OptionsChanged selector for the amplifier switch
const SelectorAmplifier = "amplifier"

// Result is what handling one event produced
type Result struct {
	View     View
	Shown    string
	Accepted bool
	Err      error
}

// Encoder is the POCSAG encoder contract
type Encoder interface {
	SetAmplitude(amplitude int16)
	SetDateTimePosition(pos pocsag.DateTimePosition)
	Encode(ric int, msgType pocsag.Type, body []byte, bps pocsag.BPS, cs pocsag.Charset, fn pocsag.Function) ([]int16, error)
}

// SampleObserver sees every encoded bitstream before it is pushed
type SampleObserver interface {
	ProcessSamples(samples []int16)
}

// Recorder is told about every finished session
type Recorder interface {
	Record(r Record) error
}

// Record describes one finished session
type Record struct {
	Time      time.Time     `json:"time"`
	Message   MessageSpec   `json:"message"`
	Frequency int64         `json:"frequency_hz"`
	GainRF    int           `json:"gain_rf"`
	Bandwidth float64       `json:"bandwidth_khz"`
	Amplifier bool          `json:"amplifier"`
	Success   bool          `json:"success"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Samples   int           `json:"samples"`
	AirTime   time.Duration `json:"air_time"`
	Duration  time.Duration `json:"duration"`
}

// Settings are the fixed parameters of every session
type Settings struct {
	SubChunkSize    int
	Amplitude       int16
	BasebandRate    int
	DateFormat      string
	PollInterval    time.Duration
	StopTimeout     time.Duration
	AutoOffWhenIdle bool
}

// DefaultSettings match a HackRF at 2.4 MS/s
func DefaultSettings() Settings {
	return Settings{
		SubChunkSize:    hardware.DefaultSubChunkSize,
		Amplitude:       pocsag.DefaultAmplitude,
		BasebandRate:    pocsag.DefaultBasebandRate,
		DateFormat:      pocsag.DefaultDateFormat,
		PollInterval:    250 * time.Millisecond,
		StopTimeout:     hardware.DefaultStopTimeout,
		AutoOffWhenIdle: true,
	}
}

// Options wire a controller to its collaborators. Form and Open are
// required.
type Options struct {
	Form       *Form
	Open       hardware.Opener
	NewEncoder func() Encoder
	Presenter  Presenter
	Monitor    PollMonitor
	Recorder   Recorder
	Observer   SampleObserver
	Settings   Settings
	Clock      func() time.Time
}

type request struct {
	event Event
	reply chan Result
}

// Controller is the transmission session controller
type Controller struct {
	form      *Form
	open      hardware.Opener
	encoder   func() Encoder
	presenter Presenter
	monitor   PollMonitor
	recorder  Recorder
	observer  SampleObserver
	settings  Settings
	now       func() time.Time

	state   State
	busy    bool
	tx      hardware.Transmitter
	polling bool
	session uint64
	status  Status
	current *Record
	started time.Time

	events chan request
	done   chan struct{}
}

// NewController creates a controller in the Idle state
func NewController(opts Options) (*Controller, error) {
	if opts.Form == nil {
		return nil, fmt.Errorf("session: form is required")
	}
	if opts.Open == nil {
		return nil, fmt.Errorf("session: transmitter opener is required")
	}

	c := &Controller{
		form:      opts.Form,
		open:      opts.Open,
		encoder:   opts.NewEncoder,
		presenter: opts.Presenter,
		monitor:   opts.Monitor,
		recorder:  opts.Recorder,
		observer:  opts.Observer,
		settings:  opts.Settings,
		now:       opts.Clock,
		status:    Status{Text: TextReady, Severity: SeverityInfo},
		events:    make(chan request, 64),
		done:      make(chan struct{}),
	}

	if c.presenter == nil {
		c.presenter = NopPresenter{}
	}
	if c.monitor == nil {
		c.monitor = NewTickerMonitor()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.settings == (Settings{}) {
		c.settings = DefaultSettings()
	}
	if c.encoder == nil {
		rate, format := c.settings.BasebandRate, c.settings.DateFormat
		c.encoder = func() Encoder {
			enc := pocsag.NewEncoder()
			enc.BasebandRate = rate
			if format != "" {
				enc.DateFormat = format
			}
			return enc
		}
	}
	c.status.Time = c.now()

	return c, nil
}

// Run drains the event queue until ctx is done. An active transmission is
// stopped and released on the way out.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case req := <-c.events:
			res := c.Handle(req.event)
			if req.reply != nil {
				req.reply <- res
			}
		}
	}
}

// Post queues an event for Run and waits for its result
func (c *Controller) Post(ctx context.Context, ev Event) (Result, error) {
	req := request{event: ev, reply: make(chan Result, 1)}

	select {
	case c.events <- req:
	case <-c.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, nil
	case <-c.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// enqueue queues an event without waiting. Ticks are dropped when the
// queue is full since the next one carries the same information.
func (c *Controller) enqueue(ev Event) {
	select {
	case c.events <- request{event: ev}:
	default:
		logging.Debugf("session", "event queue full, dropping %s", ev.eventName())
	}
}

// ProcessPending handles queued events without blocking and returns how
// many were handled. Only for use when Run is not running.
func (c *Controller) ProcessPending() int {
	n := 0
	for {
		select {
		case req := <-c.events:
			res := c.Handle(req.event)
			if req.reply != nil {
				req.reply <- res
			}
			n++
		default:
			return n
		}
	}
}

// Handle processes one event. It must only be called from one goroutine.
func (c *Controller) Handle(ev Event) Result {
	var res Result

	switch e := ev.(type) {
	case FieldChanged:
		res = c.handleField(e)
	case TypeChanged:
		res.Err = c.form.Select(options.SelectorType, e.Index)
		res.Accepted = res.Err == nil
	case OptionsChanged:
		res = c.handleOption(e)
	case SendRequested:
		res.Err = c.handleSend()
		res.Accepted = res.Err == nil
	case PollTick:
		c.handleTick(e)
		res.Accepted = true
	case Snapshot:
		res.Accepted = true
	default:
		res.Err = fmt.Errorf("session: unknown event %T", ev)
	}

	res.View = c.View()
	return res
}

// View returns the current snapshot
func (c *Controller) View() View {
	v := c.form.view()
	v.SendEnabled = c.sendEnabled()
	v.Busy = c.busy
	v.State = c.state.String()
	v.Status = c.status
	return v
}

func (c *Controller) sendEnabled() bool {
	return !c.busy && c.form.Ready()
}

func (c *Controller) handleField(e FieldChanged) Result {
	shown, ok, err := c.form.Edit(e.Field, e.Text)
	if err != nil {
		return Result{Err: err}
	}

	// Capcode and frequency gate the send action; while busy it stays off
	if (e.Field == FieldCapcode || e.Field == FieldFrequency) && !c.busy {
		c.presenter.SendEnabled(c.form.Ready())
	}

	return Result{Shown: shown, Accepted: ok}
}

func (c *Controller) handleOption(e OptionsChanged) Result {
	if e.Selector == SelectorAmplifier {
		c.form.SetAmplifier(e.Index != 0)
		return Result{Accepted: true}
	}
	if err := c.form.Select(e.Selector, e.Index); err != nil {
		return Result{Err: err}
	}
	return Result{Accepted: true}
}

func (c *Controller) setState(s State) {
	if s != c.state {
		logging.Debugf("session", "state %s -> %s", c.state, s)
	}
	c.state = s
}

func (c *Controller) report(text string, severity Severity) {
	c.status = Status{Text: text, Severity: severity, Time: c.now()}

	switch severity {
	case SeverityError:
		logging.Error("session", text)
	default:
		logging.Info("session", text)
	}
	c.presenter.Status(c.status)
}

func (c *Controller) handleSend() error {
	if c.busy || c.tx != nil {
		return ErrBusy
	}
	if !c.form.Ready() {
		return ErrNotReady
	}

	// Idle -> Acquiring
	c.busy = true
	c.presenter.SendEnabled(false)
	c.started = c.now()
	c.setState(StateAcquiring)
	c.report(TextConnecting, SeverityProgress)

	msg, spec, err := c.form.Resolve()
	c.current = &Record{
		Time:      c.started,
		Message:   msg,
		Frequency: spec.Frequency.Hertz(),
		GainRF:    spec.GainRF,
		Bandwidth: spec.BandwidthKHz,
		Amplifier: spec.Amplifier,
	}
	if err != nil {
		return c.abort(&Failure{Kind: ConfigureFailed, Err: err})
	}

	tx, err := c.open()
	if err != nil {
		return c.abort(&Failure{Kind: AcquireFailed, Err: err})
	}
	c.tx = tx

	// Acquiring -> Configuring
	c.setState(StateConfiguring)
	params := hardware.TxParams{
		SubChunkSize:    c.settings.SubChunkSize,
		Frequency:       spec.Frequency,
		DeviationKHz:    spec.BandwidthKHz,
		Amplifier:       spec.Amplifier,
		GainRF:          spec.GainRF,
		AutoOffWhenIdle: c.settings.AutoOffWhenIdle,
	}
	if err := tx.Configure(params); err != nil {
		return c.abort(&Failure{Kind: ConfigureFailed, Err: err})
	}
	if err := tx.Start(); err != nil {
		return c.abort(&Failure{Kind: ConfigureFailed, Err: err})
	}

	// Configuring -> Encoding
	c.setState(StateEncoding)
	c.report(TextEncoding, SeverityProgress)

	enc := c.encoder()
	enc.SetAmplitude(c.settings.Amplitude)
	enc.SetDateTimePosition(msg.DateTime)
	samples, err := enc.Encode(msg.Capcode, msg.Type, []byte(msg.Body), msg.Bitrate, msg.Charset, msg.Function)
	if err != nil {
		return c.abort(&Failure{Kind: EncodeFailed, Err: err})
	}

	// Encoding -> Transmitting
	c.setState(StateTransmitting)
	c.report(TextSending, SeverityProgress)

	c.current.Samples = len(samples)
	c.current.AirTime = pocsag.Duration(samples, c.settings.BasebandRate)
	if c.observer != nil {
		c.observer.ProcessSamples(samples)
	}
	if err := tx.Push(samples); err != nil {
		return c.abort(&Failure{Kind: TransmitFailed, Err: err})
	}

	logging.WithFields(map[string]interface{}{
		"capcode":   msg.Capcode,
		"frequency": spec.Frequency.String(),
		"samples":   len(samples),
		"air_time":  c.current.AirTime.String(),
	}).Debug("session", "bitstream pushed")

	c.session++
	c.polling = true
	session := c.session
	c.monitor.Start(c.settings.PollInterval, func() {
		c.enqueue(PollTick{Session: session})
	})

	return nil
}

// abort ends the session after a failure. What is released depends on how
// far the session got.
func (c *Controller) abort(f *Failure) error {
	c.report(f.Kind.text(), SeverityError)
	logging.Errorf("session", "%s: %v", f.Kind, f.Err)

	switch f.Kind {
	case AcquireFailed:
		// nothing was acquired
	case ConfigureFailed:
		c.release(false)
	default:
		c.release(true)
	}

	c.setState(StateAborted)
	c.finish(f)
	return f
}

// release gives up the transmitter, stopping its worker first if it ran
func (c *Controller) release(stop bool) {
	if c.tx == nil {
		return
	}

	if stop {
		c.tx.Stop()
		if err := c.tx.Wait(c.settings.StopTimeout); err != nil {
			logging.Warnf("session", "transmitter did not stop within %s: %v", c.settings.StopTimeout, err)
		}
	}
	if err := c.tx.Close(); err != nil {
		logging.Warnf("session", "releasing transmitter: %v", err)
	}
	c.tx = nil
}

func (c *Controller) stopPolling() {
	if c.polling {
		c.monitor.Stop()
		c.polling = false
	}
}

// finish returns to Idle and records the outcome
func (c *Controller) finish(f *Failure) {
	c.presenter.SendEnabled(c.form.Ready())
	c.busy = false
	c.setState(StateIdle)

	if c.current == nil {
		return
	}
	rec := *c.current
	c.current = nil

	rec.Duration = c.now().Sub(c.started)
	rec.Success = f == nil
	if f != nil {
		rec.ErrorKind = f.Kind.String()
		rec.Error = f.Err.Error()
	}

	if c.recorder != nil {
		if err := c.recorder.Record(rec); err != nil {
			logging.Warnf("session", "could not record transmission: %v", err)
		}
	}
}

func (c *Controller) handleTick(e PollTick) {
	// Ticks of an ended session are left over in the queue
	if !c.polling || e.Session != c.session {
		return
	}

	if c.tx == nil {
		c.report(TextReady, SeverityInfo)
		c.stopPolling()
		c.presenter.SendEnabled(c.form.Ready())
		c.busy = false
		c.current = nil
		c.setState(StateIdle)
		return
	}

	if !c.tx.IsIdle() {
		return
	}

	c.setState(StateSuccess)
	c.report(TextSuccess, SeverityOK)
	c.stopPolling()
	c.release(true)
	c.finish(nil)
}

// shutdown releases an in-flight transmission when Run exits
func (c *Controller) shutdown() {
	if c.tx == nil {
		return
	}
	logging.Warn("session", "shutting down with a transmission in flight")
	c.stopPolling()
	c.release(true)
	c.busy = false
	c.current = nil
	c.setState(StateIdle)
}
