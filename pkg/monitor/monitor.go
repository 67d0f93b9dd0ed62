// Package monitor measures the baseband bitstreams handed to the
// transmitter for the web spectrum view.
package monitor

import (
	"math"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
)

// floor in dB for silent input
const silenceDB = -100.0

// clipping threshold, about 98% of full scale
const clipLevel = 32000

// LevelData is the level of the last bitstream
type LevelData struct {
	Timestamp int64   `json:"timestamp"`
	RMSLevel  float32 `json:"rms"`  // dBFS
	PeakLevel float32 `json:"peak"` // dBFS
	Clipping  bool    `json:"clipping"`
}

// SpectrumData is the averaged magnitude spectrum of the last bitstream
type SpectrumData struct {
	Timestamp  int64     `json:"timestamp"`
	SampleRate int       `json:"sample_rate"`
	Spectrum   []float32 `json:"spectrum"`  // dB per bin
	FreqStep   float32   `json:"freq_step"` // Hz per bin
}

// BitstreamData summarizes the last bitstream
type BitstreamData struct {
	Samples  int     `json:"samples"`
	AirTime  float64 `json:"air_time_s"`
	MarkRate float64 `json:"mark_rate"` // share of samples above zero
}

// VisualizationData combines everything the spectrum view shows
type VisualizationData struct {
	LevelData
	SpectrumData
	Bitstream BitstreamData `json:"bitstream"`
	Sequence  uint64        `json:"sequence"`
}

// TxMonitor analyzes every bitstream passed to ProcessSamples
type TxMonitor struct {
	mutex sync.RWMutex

	sampleRate int
	fftSize    int

	currentRMS  float32
	currentPeak float32
	isClipping  bool
	updated     time.Time

	spectrum  []float32
	power     []float64
	fftBuffer []complex128
	window    []float64

	bitstream BitstreamData
	sequence  uint64

	sampleCount int64
	clipCount   int64
	streams     int64
}

// NewTxMonitor creates a monitor for baseband at sampleRate. fftSize must
// be a power of two.
func NewTxMonitor(sampleRate, fftSize int) *TxMonitor {
	m := &TxMonitor{
		sampleRate:  sampleRate,
		fftSize:     fftSize,
		currentRMS:  silenceDB,
		currentPeak: silenceDB,
		spectrum:    make([]float32, fftSize/2),
		power:       make([]float64, fftSize/2),
		fftBuffer:   make([]complex128, fftSize),
		window:      makeHannWindow(fftSize),
	}
	for i := range m.spectrum {
		m.spectrum[i] = silenceDB
	}
	return m
}

func makeHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := 0; i < size; i++ {
		window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}

// ProcessSamples measures one complete bitstream
func (m *TxMonitor) ProcessSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.calculateLevels(samples)
	m.calculateSpectrum(samples)

	marks := 0
	for _, s := range samples {
		if s > 0 {
			marks++
		}
	}
	m.bitstream = BitstreamData{
		Samples:  len(samples),
		AirTime:  float64(len(samples)) / float64(m.sampleRate),
		MarkRate: float64(marks) / float64(len(samples)),
	}

	m.sampleCount += int64(len(samples))
	m.streams++
	m.sequence++
	m.updated = time.Now()
}

func (m *TxMonitor) calculateLevels(samples []int16) {
	var sumSquares float64
	var peak int32
	clipping := false

	for _, sample := range samples {
		v := int32(sample)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
		if v >= clipLevel {
			clipping = true
			m.clipCount++
		}
		sumSquares += float64(v) * float64(v)
	}

	m.currentRMS = toDB(math.Sqrt(sumSquares/float64(len(samples))) / 32768.0)
	m.currentPeak = toDB(float64(peak) / 32768.0)
	m.isClipping = clipping
}

// calculateSpectrum averages the power of every full window. A bitstream
// shorter than one window is zero padded around the middle of the window.
func (m *TxMonitor) calculateSpectrum(samples []int16) {
	for i := range m.power {
		m.power[i] = 0
	}

	offset := 0
	if len(samples) < m.fftSize {
		offset = (m.fftSize - len(samples)) / 2
	}

	frames := 0
	for start := 0; start == 0 || start+m.fftSize <= len(samples); start += m.fftSize {
		for i := 0; i < m.fftSize; i++ {
			var sample float64
			if j := start + i - offset; j >= 0 && j < len(samples) {
				sample = float64(samples[j]) / 32768.0
			}
			m.fftBuffer[i] = complex(sample*m.window[i], 0)
		}

		result := fft.FFT(m.fftBuffer)
		for i := range m.power {
			re, im := real(result[i]), imag(result[i])
			m.power[i] += re*re + im*im
		}
		frames++
	}

	for i := range m.spectrum {
		m.spectrum[i] = toDB(math.Sqrt(m.power[i] / float64(frames)))
	}
}

func toDB(magnitude float64) float32 {
	if magnitude <= 0 {
		return silenceDB
	}
	return float32(math.Max(20.0*math.Log10(magnitude), silenceDB))
}

// Levels returns the levels of the last bitstream
func (m *TxMonitor) Levels() LevelData {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return LevelData{
		Timestamp: m.updated.UnixMilli(),
		RMSLevel:  m.currentRMS,
		PeakLevel: m.currentPeak,
		Clipping:  m.isClipping,
	}
}

// Spectrum returns a copy of the last spectrum
func (m *TxMonitor) Spectrum() SpectrumData {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	spectrum := make([]float32, len(m.spectrum))
	copy(spectrum, m.spectrum)

	return SpectrumData{
		Timestamp:  m.updated.UnixMilli(),
		SampleRate: m.sampleRate,
		Spectrum:   spectrum,
		FreqStep:   float32(m.sampleRate) / float32(m.fftSize),
	}
}

// VisualizationData returns levels, spectrum and bitstream summary together
func (m *TxMonitor) VisualizationData() VisualizationData {
	levels := m.Levels()
	spectrum := m.Spectrum()

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return VisualizationData{
		LevelData:    levels,
		SpectrumData: spectrum,
		Bitstream:    m.bitstream,
		Sequence:     m.sequence,
	}
}

// Sequence counts processed bitstreams
func (m *TxMonitor) Sequence() uint64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sequence
}

// Statistics returns monitoring counters
func (m *TxMonitor) Statistics() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	clipRate := float64(0)
	if m.sampleCount > 0 {
		clipRate = float64(m.clipCount) / float64(m.sampleCount) * 100.0
	}

	return map[string]interface{}{
		"bitstreams":    m.streams,
		"sample_count":  m.sampleCount,
		"clip_count":    m.clipCount,
		"clip_rate_pct": clipRate,
		"sample_rate":   m.sampleRate,
		"fft_size":      m.fftSize,
	}
}
