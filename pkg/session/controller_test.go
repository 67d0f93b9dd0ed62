package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/pagerd/pkg/hardware"
	"github.com/dougsko/pagerd/pkg/options"
	"github.com/dougsko/pagerd/pkg/pocsag"
)

type recordingPresenter struct {
	mutex    sync.Mutex
	statuses []Status
	enabled  []bool
}

func (p *recordingPresenter) Status(s Status) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.statuses = append(p.statuses, s)
}

func (p *recordingPresenter) SendEnabled(enabled bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.enabled = append(p.enabled, enabled)
}

func (p *recordingPresenter) texts() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var texts []string
	for _, s := range p.statuses {
		texts = append(texts, s.Text)
	}
	return texts
}

func (p *recordingPresenter) severities() []Severity {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []Severity
	for _, s := range p.statuses {
		out = append(out, s.Severity)
	}
	return out
}

func (p *recordingPresenter) sendEnabled() []bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]bool(nil), p.enabled...)
}

func (p *recordingPresenter) reset() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.statuses = nil
	p.enabled = nil
}

type recordingRecorder struct {
	mutex   sync.Mutex
	records []Record
}

func (r *recordingRecorder) Record(rec Record) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *recordingRecorder) all() []Record {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Record(nil), r.records...)
}

type sampleCounter struct {
	samples int
}

func (s *sampleCounter) ProcessSamples(samples []int16) {
	s.samples += len(samples)
}

type failingEncoder struct {
	*pocsag.Encoder
}

func (failingEncoder) Encode(int, pocsag.Type, []byte, pocsag.BPS, pocsag.Charset, pocsag.Function) ([]int16, error) {
	return nil, errors.New("encoder exploded")
}

type fixture struct {
	controller *Controller
	factory    *hardware.MockFactory
	presenter  *recordingPresenter
	monitor    *ManualMonitor
	recorder   *recordingRecorder
	observer   *sampleCounter
}

func newFixture(t *testing.T, mock hardware.MockConfig, edit func(*Options)) *fixture {
	t.Helper()

	form, err := NewForm(options.NewDefaultMapper(), Defaults{
		Capcode:   "1234567",
		Frequency: "144.5000",
		Message:   "HELLO",
		Selection: options.DefaultSelection(),
	})
	require.NoError(t, err)

	f := &fixture{
		factory:   &hardware.MockFactory{Config: mock},
		presenter: &recordingPresenter{},
		monitor:   &ManualMonitor{},
		recorder:  &recordingRecorder{},
		observer:  &sampleCounter{},
	}

	opts := Options{
		Form:      form,
		Open:      f.factory.Open,
		Presenter: f.presenter,
		Monitor:   f.monitor,
		Recorder:  f.recorder,
		Observer:  f.observer,
		Settings:  DefaultSettings(),
	}
	if edit != nil {
		edit(&opts)
	}

	f.controller, err = NewController(opts)
	require.NoError(t, err)
	return f
}

// tick fires the poll monitor and handles the queued tick
func (f *fixture) tick(t *testing.T) {
	t.Helper()
	require.True(t, f.monitor.Fire(), "poll monitor is not running")
	require.Equal(t, 1, f.controller.ProcessPending())
}

func TestNewControllerRequiresFormAndOpener(t *testing.T) {
	_, err := NewController(Options{})
	assert.Error(t, err)

	form, err := NewForm(options.NewDefaultMapper(), Defaults{Selection: options.DefaultSelection()})
	require.NoError(t, err)
	_, err = NewController(Options{Form: form})
	assert.Error(t, err)
}

func TestSendSuccess(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 2}, nil)

	res := f.controller.Handle(SendRequested{})
	require.NoError(t, res.Err)
	assert.True(t, res.Accepted)
	assert.True(t, res.View.Busy)
	assert.False(t, res.View.SendEnabled)
	assert.Equal(t, "transmitting", res.View.State)

	assert.Equal(t, []string{TextConnecting, TextEncoding, TextSending}, f.presenter.texts())
	assert.Equal(t, []Severity{SeverityProgress, SeverityProgress, SeverityProgress}, f.presenter.severities())
	assert.Equal(t, []bool{false}, f.presenter.sendEnabled())
	assert.Equal(t, 250*time.Millisecond, f.monitor.Interval())

	opened := f.factory.Opened()
	require.Len(t, opened, 1)
	tx := opened[0]

	params := tx.Params()
	assert.Equal(t, int64(144500000), params.Frequency.Hertz())
	assert.Equal(t, 47, params.GainRF)
	assert.Equal(t, 25.0, params.DeviationKHz)
	assert.True(t, params.Amplifier)
	assert.True(t, params.AutoOffWhenIdle)
	assert.Equal(t, hardware.DefaultSubChunkSize, params.SubChunkSize)

	require.Len(t, tx.Pushed(), 1)
	assert.Equal(t, len(tx.Pushed()[0]), f.observer.samples)

	// First poll: still sending
	f.tick(t)
	assert.True(t, f.controller.View().Busy)
	assert.Len(t, f.presenter.texts(), 3)

	// Second poll: queue drained
	f.tick(t)
	view := f.controller.View()
	assert.False(t, view.Busy)
	assert.True(t, view.SendEnabled)
	assert.Equal(t, "idle", view.State)
	assert.Equal(t, TextSuccess, view.Status.Text)
	assert.Equal(t, SeverityOK, view.Status.Severity)

	assert.Equal(t, []string{TextConnecting, TextEncoding, TextSending, TextSuccess}, f.presenter.texts())
	assert.Equal(t, []bool{false, true}, f.presenter.sendEnabled())
	assert.False(t, f.monitor.Running())

	assert.Equal(t, []string{"configure", "start", "push", "is_idle", "is_idle", "stop", "wait", "close"}, tx.Calls())
	assert.Equal(t, 0, f.factory.Live())

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.True(t, records[0].Success)
	assert.Equal(t, 1234567, records[0].Message.Capcode)
	assert.Equal(t, "HELLO", records[0].Message.Body)
	assert.Equal(t, int64(144500000), records[0].Frequency)
	assert.Equal(t, len(tx.Pushed()[0]), records[0].Samples)
	assert.Greater(t, records[0].AirTime, time.Duration(0))
}

func TestSendTwiceAfterSuccess(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 1}, nil)

	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.tick(t)
	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.tick(t)

	assert.Len(t, f.factory.Opened(), 2)
	assert.Equal(t, 0, f.factory.Live())
	assert.Len(t, f.recorder.all(), 2)
}

func TestSendWhileBusy(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 5}, nil)

	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.presenter.reset()

	res := f.controller.Handle(SendRequested{})
	assert.ErrorIs(t, res.Err, ErrBusy)
	assert.False(t, res.Accepted)
	assert.Empty(t, f.presenter.texts())
	assert.Len(t, f.factory.Opened(), 1)
}

func TestSendNotReady(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{}, nil)

	f.controller.Handle(FieldChanged{Field: FieldCapcode, Text: ""})
	f.presenter.reset()

	res := f.controller.Handle(SendRequested{})
	assert.ErrorIs(t, res.Err, ErrNotReady)
	assert.Empty(t, f.presenter.texts())
	assert.Empty(t, f.factory.Opened())
}

func TestAcquireFailure(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{}, nil)
	f.factory.OpenErr = errors.New("usb busy")

	res := f.controller.Handle(SendRequested{})
	var failure *Failure
	require.ErrorAs(t, res.Err, &failure)
	assert.Equal(t, AcquireFailed, failure.Kind)
	assert.ErrorIs(t, res.Err, hardware.ErrDeviceUnavailable)

	assert.Equal(t, []string{TextConnecting, TextAcquireFailed}, f.presenter.texts())
	assert.Equal(t, []Severity{SeverityProgress, SeverityError}, f.presenter.severities())
	assert.Equal(t, []bool{false, true}, f.presenter.sendEnabled())

	view := res.View
	assert.False(t, view.Busy)
	assert.True(t, view.SendEnabled)
	assert.Equal(t, "idle", view.State)
	assert.Nil(t, f.controller.tx)
	assert.False(t, f.monitor.Running())

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
	assert.Equal(t, "acquire_failed", records[0].ErrorKind)
}

func TestConfigureFailureOnlyCloses(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{ConfigureErr: errors.New("bad gain")}, nil)

	res := f.controller.Handle(SendRequested{})
	var failure *Failure
	require.ErrorAs(t, res.Err, &failure)
	assert.Equal(t, ConfigureFailed, failure.Kind)

	assert.Equal(t, []string{TextConnecting, TextConfigureFailed}, f.presenter.texts())
	tx := f.factory.Opened()[0]
	assert.Equal(t, []string{"configure", "close"}, tx.Calls())
	assert.Equal(t, 0, f.factory.Live())
	assert.False(t, res.View.Busy)
}

func TestStartFailureOnlyCloses(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{StartErr: errors.New("no stream")}, nil)

	res := f.controller.Handle(SendRequested{})
	require.Error(t, res.Err)

	tx := f.factory.Opened()[0]
	assert.Equal(t, []string{"configure", "start", "close"}, tx.Calls())
	assert.Equal(t, TextConfigureFailed, res.View.Status.Text)
}

func TestEncodeFailureStopsAndCloses(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{}, func(o *Options) {
		o.NewEncoder = func() Encoder { return failingEncoder{pocsag.NewEncoder()} }
	})

	res := f.controller.Handle(SendRequested{})
	var failure *Failure
	require.ErrorAs(t, res.Err, &failure)
	assert.Equal(t, EncodeFailed, failure.Kind)

	assert.Equal(t, []string{TextConnecting, TextEncoding, TextEncodeFailed}, f.presenter.texts())
	tx := f.factory.Opened()[0]
	assert.Equal(t, []string{"configure", "start", "stop", "wait", "close"}, tx.Calls())
	assert.Empty(t, tx.Pushed())
	assert.False(t, f.monitor.Running())
	assert.True(t, res.View.SendEnabled)
}

func TestPushFailureStopsAndCloses(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{PushErr: errors.New("queue closed")}, nil)

	res := f.controller.Handle(SendRequested{})
	var failure *Failure
	require.ErrorAs(t, res.Err, &failure)
	assert.Equal(t, TransmitFailed, failure.Kind)

	assert.Equal(t, []string{TextConnecting, TextEncoding, TextSending, TextTransmitFailed}, f.presenter.texts())
	tx := f.factory.Opened()[0]
	assert.Equal(t, []string{"configure", "start", "push", "stop", "wait", "close"}, tx.Calls())
	assert.False(t, f.monitor.Running())
}

func TestWaitTimeoutStillCloses(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 1, WaitErr: hardware.ErrWaitTimeout}, nil)

	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.tick(t)

	assert.Equal(t, TextSuccess, f.controller.View().Status.Text)
	assert.True(t, f.factory.Opened()[0].Closed())
}

func TestTickWithoutTransmitterReportsReady(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 5}, nil)

	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.controller.tx = nil
	f.presenter.reset()

	f.tick(t)

	view := f.controller.View()
	assert.Equal(t, TextReady, view.Status.Text)
	assert.Equal(t, SeverityInfo, view.Status.Severity)
	assert.False(t, view.Busy)
	assert.True(t, view.SendEnabled)
	assert.False(t, f.monitor.Running())
	assert.Equal(t, []bool{true}, f.presenter.sendEnabled())
}

func TestStaleTickIsIgnored(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 1}, nil)

	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.tick(t)
	f.presenter.reset()

	// A tick from the finished session arrives late
	f.controller.Handle(PollTick{Session: 1})
	assert.Empty(t, f.presenter.texts())
	assert.Equal(t, TextSuccess, f.controller.View().Status.Text)

	// And one from a previous session while a new one runs
	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.presenter.reset()
	f.controller.Handle(PollTick{Session: 1})
	assert.Empty(t, f.presenter.texts())
	assert.True(t, f.controller.View().Busy)
}

func TestFieldEditsToggleSend(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 5}, nil)

	res := f.controller.Handle(FieldChanged{Field: FieldFrequency, Text: ""})
	assert.True(t, res.Accepted)
	assert.False(t, res.View.SendEnabled)

	f.controller.Handle(FieldChanged{Field: FieldFrequency, Text: "433.92"})
	f.controller.Handle(FieldChanged{Field: FieldMessage, Text: "abc"})
	assert.Equal(t, []bool{false, true}, f.presenter.sendEnabled())

	// No send state changes while a session runs
	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.presenter.reset()
	f.controller.Handle(FieldChanged{Field: FieldCapcode, Text: ""})
	assert.Empty(t, f.presenter.sendEnabled())
	assert.False(t, f.controller.View().SendEnabled)
}

func TestFieldEditRejected(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{}, nil)

	res := f.controller.Handle(FieldChanged{Field: FieldCapcode, Text: "12a"})
	assert.False(t, res.Accepted)
	assert.Equal(t, "1234567", res.Shown)

	res = f.controller.Handle(FieldChanged{Field: Field(42), Text: "x"})
	assert.ErrorIs(t, res.Err, ErrUnknownField)
}

func TestTypeAndOptionChanges(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{}, nil)

	res := f.controller.Handle(TypeChanged{Index: 2})
	require.NoError(t, res.Err)
	assert.False(t, res.View.MessageEnabled)
	assert.False(t, res.View.OptionsEnabled)
	assert.Equal(t, 0, res.View.CharCount)

	res = f.controller.Handle(TypeChanged{Index: 3})
	assert.ErrorIs(t, res.Err, options.ErrIndexOutOfRange)

	res = f.controller.Handle(OptionsChanged{Selector: options.SelectorBitrate, Index: 2})
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.View.Selection.Bitrate)

	res = f.controller.Handle(OptionsChanged{Selector: SelectorAmplifier, Index: 0})
	require.NoError(t, res.Err)
	assert.False(t, res.View.Selection.Amplifier)

	res = f.controller.Handle(OptionsChanged{Selector: "volume", Index: 0})
	assert.Error(t, res.Err)
}

func TestToneSendsEmptyBody(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 1}, nil)

	f.controller.Handle(TypeChanged{Index: 2})
	require.NoError(t, f.controller.Handle(SendRequested{}).Err)
	f.tick(t)

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, pocsag.Tone, records[0].Message.Type)
	assert.Empty(t, records[0].Message.Body)
}

func TestRunAndPost(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 2}, func(o *Options) {
		o.Monitor = NewTickerMonitor()
		o.Settings.PollInterval = 5 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.controller.Run(ctx)
	}()

	res, err := f.controller.Post(ctx, SendRequested{})
	require.NoError(t, err)
	require.NoError(t, res.Err)

	require.Eventually(t, func() bool {
		res, err := f.controller.Post(ctx, Snapshot{})
		return err == nil && res.View.Status.Text == TextSuccess && !res.View.Busy
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	_, err = f.controller.Post(context.Background(), Snapshot{})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 0, f.factory.Live())
}

func TestRunReleasesInFlightTransmission(t *testing.T) {
	f := newFixture(t, hardware.MockConfig{IdleAfterPolls: 1000}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.controller.Run(ctx)
	}()

	res, err := f.controller.Post(ctx, SendRequested{})
	require.NoError(t, err)
	require.NoError(t, res.Err)

	cancel()
	<-errCh

	tx := f.factory.Opened()[0]
	assert.True(t, tx.Closed())
	assert.Contains(t, tx.Calls(), "stop")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "acquiring", StateAcquiring.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown", State(99).String())
}
