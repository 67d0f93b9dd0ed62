package hardware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dougsko/pagerd/pkg/logging"
)

// SampleSink is the radio end of an SDR transmitter: it owns the device,
// applies tuning and accepts IQ blocks at SampleRate
type SampleSink interface {
	Tune(p TxParams) error
	SampleRate() int
	Activate() error
	Deactivate() error
	Write(iq []complex64) error
	Close() error
}

// TxStats counts what the worker has sent
type TxStats struct {
	Buffers   int64 `json:"buffers"`
	Chunks    int64 `json:"chunks"`
	IQSamples int64 `json:"iq_samples"`
}

// SDRTransmitter FM modulates queued baseband onto a SampleSink from a
// background worker
type SDRTransmitter struct {
	sink         SampleSink
	basebandRate int
	pool         *ChunkPool
	mutex        sync.Mutex

	params     TxParams
	configured bool
	started    bool
	stopping   bool
	closed     bool

	queue  [][]int16
	busy   bool
	active bool
	stats  TxStats

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// NewSDRTransmitter creates a transmitter over sink for baseband sampled
// at basebandRate
func NewSDRTransmitter(sink SampleSink, basebandRate int) *SDRTransmitter {
	return &SDRTransmitter{
		sink:         sink,
		basebandRate: basebandRate,
		pool:         NewChunkPool(16384, true),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Configure validates and applies TX parameters to the sink
func (t *SDRTransmitter) Configure(p TxParams) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.started {
		return fmt.Errorf("configure while running: %w", ErrConfigure)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if t.basebandRate <= 0 || t.sink.SampleRate() < t.basebandRate {
		return fmt.Errorf("sample rate %d below baseband rate %d: %w",
			t.sink.SampleRate(), t.basebandRate, ErrConfigure)
	}
	if err := t.sink.Tune(p); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigure, err)
	}

	t.params = p
	t.configured = true

	logging.Infof("hardware", "TX configured: %s, deviation %.1f kHz, gain %d, amp %t, chunk %d",
		p.Frequency, p.DeviationKHz, p.GainRF, p.Amplifier, p.SubChunkSize)
	return nil
}

// Start launches the transmit worker
func (t *SDRTransmitter) Start() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.configured {
		return ErrNotConfigured
	}
	if t.started {
		return nil
	}

	t.started = true
	go t.worker()

	logging.Debug("hardware", "TX worker started")
	return nil
}

// Push queues baseband samples. The slice must not be modified afterwards.
func (t *SDRTransmitter) Push(samples []int16) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.started {
		return ErrNotStarted
	}
	if t.stopping {
		return ErrStopped
	}
	if len(samples) == 0 {
		return nil
	}

	t.queue = append(t.queue, samples)

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// IsIdle reports whether the queue has drained and nothing is being written
func (t *SDRTransmitter) IsIdle() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.queue) == 0 && !t.busy
}

// Stop asks the worker to finish. Queued samples that were not sent yet
// are dropped.
func (t *SDRTransmitter) Stop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.stopping {
		return
	}
	t.stopping = true
	close(t.stop)
}

// Wait blocks until the worker has exited or timeout elapses
func (t *SDRTransmitter) Wait(timeout time.Duration) error {
	t.mutex.Lock()
	started := t.started
	t.mutex.Unlock()

	if !started {
		return nil
	}

	select {
	case <-t.done:
		return nil
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Close stops the worker if needed and releases the sink
func (t *SDRTransmitter) Close() error {
	t.Stop()
	if err := t.Wait(DefaultStopTimeout); err != nil {
		logging.Warnf("hardware", "TX worker still running at close: %v", err)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	t.pool.logStatistics()
	logging.Debugf("hardware", "TX closed after %d buffers, %d chunks, %d IQ samples",
		t.stats.Buffers, t.stats.Chunks, t.stats.IQSamples)

	return t.sink.Close()
}

// Stats returns what has been sent so far
func (t *SDRTransmitter) Stats() TxStats {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.stats
}

// next pops the next queued buffer and marks the worker busy
func (t *SDRTransmitter) next() ([]int16, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if len(t.queue) == 0 || t.stopping {
		t.busy = false
		return nil, false
	}

	samples := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]
	t.busy = true
	return samples, true
}

func (t *SDRTransmitter) worker() {
	defer close(t.done)
	defer t.deactivate()

	mod := NewFMModulator(t.params.DeviationKHz*1000, t.sink.SampleRate())
	interp := t.sink.SampleRate() / t.basebandRate

	for {
		select {
		case <-t.stop:
			return
		case <-t.wake:
		}

		for {
			samples, ok := t.next()
			if !ok {
				break
			}

			if err := t.activate(); err != nil {
				logging.Errorf("hardware", "TX stream activation failed: %v", err)
				t.drop()
				break
			}
			if err := t.send(mod, samples, interp); err != nil {
				logging.Errorf("hardware", "TX write failed: %v", err)
				t.drop()
				break
			}
		}

		if t.params.AutoOffWhenIdle {
			t.deactivate()
		}
	}
}

// drop discards the queue after a device error so the transmitter reads
// idle instead of hanging
func (t *SDRTransmitter) drop() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.queue = nil
	t.busy = false
}

// send modulates one baseband buffer and writes it in sub-chunks
func (t *SDRTransmitter) send(mod *FMModulator, samples []int16, interp int) error {
	chunkSize := t.params.SubChunkSize
	chunk := t.pool.Get(chunkSize)
	defer chunk.Release()

	n := 0
	var chunks, written int64
	flush := func() error {
		if n == 0 {
			return nil
		}
		if err := t.sink.Write(chunk.Data[:n]); err != nil {
			return err
		}
		chunks++
		written += int64(n)
		n = 0
		return nil
	}

	for _, s := range samples {
		for i := 0; i < interp; i++ {
			chunk.Data[n] = mod.Next(s)
			n++
			if n == chunkSize {
				if err := flush(); err != nil {
					return err
				}
				select {
				case <-t.stop:
					return nil
				default:
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	t.mutex.Lock()
	t.stats.Buffers++
	t.stats.Chunks += chunks
	t.stats.IQSamples += written
	t.mutex.Unlock()
	return nil
}

func (t *SDRTransmitter) activate() error {
	if t.active {
		return nil
	}
	if err := t.sink.Activate(); err != nil {
		return err
	}
	t.active = true
	logging.Debug("hardware", "TX stream on")
	return nil
}

func (t *SDRTransmitter) deactivate() {
	if !t.active {
		return
	}
	if err := t.sink.Deactivate(); err != nil {
		logging.Warnf("hardware", "TX stream deactivation failed: %v", err)
	}
	t.active = false
	logging.Debug("hardware", "TX stream off")
}

// FMModulator turns baseband into constant envelope IQ. Full scale int16
// maps to the configured peak deviation.
type FMModulator struct {
	step  float64
	phase float64
	gain  float32
}

// NewFMModulator creates a modulator for the given peak deviation in Hz
func NewFMModulator(deviationHz float64, sampleRate int) *FMModulator {
	return &FMModulator{
		step: 2 * math.Pi * deviationHz / float64(sampleRate) / 32768,
		gain: 0.9,
	}
}

// Next advances the phase by one output sample
func (m *FMModulator) Next(sample int16) complex64 {
	m.phase += m.step * float64(sample)
	if m.phase > math.Pi {
		m.phase -= 2 * math.Pi
	} else if m.phase < -math.Pi {
		m.phase += 2 * math.Pi
	}

	sin, cos := math.Sincos(m.phase)
	return complex(m.gain*float32(cos), m.gain*float32(sin))
}
