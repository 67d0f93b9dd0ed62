package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/pagerd/pkg/pocsag"
)

func TestNewTxMonitorIsSilent(t *testing.T) {
	m := NewTxMonitor(48000, 256)

	levels := m.Levels()
	assert.Equal(t, float32(silenceDB), levels.RMSLevel)
	assert.Equal(t, float32(silenceDB), levels.PeakLevel)
	assert.False(t, levels.Clipping)

	spectrum := m.Spectrum()
	assert.Len(t, spectrum.Spectrum, 128)
	assert.InDelta(t, 187.5, spectrum.FreqStep, 1e-6)
	assert.Equal(t, uint64(0), m.Sequence())
}

func TestLevelsOfPOCSAGBitstream(t *testing.T) {
	enc := pocsag.NewEncoder()
	samples, err := enc.Encode(1234567, pocsag.Alphanumeric, []byte("HELLO"), pocsag.BPS1200, pocsag.Raw, pocsag.FunctionD)
	require.NoError(t, err)

	m := NewTxMonitor(pocsag.DefaultBasebandRate, 1024)
	m.ProcessSamples(samples)

	// NRZ at constant amplitude has equal RMS and peak
	want := float32(20 * math.Log10(float64(pocsag.DefaultAmplitude)/32768.0))
	levels := m.Levels()
	assert.InDelta(t, want, levels.PeakLevel, 0.01)
	assert.InDelta(t, want, levels.RMSLevel, 0.01)
	assert.False(t, levels.Clipping)

	data := m.VisualizationData()
	assert.Equal(t, len(samples), data.Bitstream.Samples)
	assert.InDelta(t, pocsag.Duration(samples, pocsag.DefaultBasebandRate).Seconds(), data.Bitstream.AirTime, 1e-9)
	assert.Greater(t, data.Bitstream.MarkRate, 0.0)
	assert.Less(t, data.Bitstream.MarkRate, 1.0)
	assert.Equal(t, uint64(1), data.Sequence)
}

func TestSpectrumPeak(t *testing.T) {
	const (
		rate = 48000
		size = 512
		bin  = 40
	)
	freq := float64(bin) * rate / size

	samples := make([]int16, size*4)
	for i := range samples {
		samples[i] = int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/rate))
	}

	m := NewTxMonitor(rate, size)
	m.ProcessSamples(samples)

	spectrum := m.Spectrum().Spectrum
	maxBin := 0
	for i, v := range spectrum {
		if v > spectrum[maxBin] {
			maxBin = i
		}
	}
	assert.Equal(t, bin, maxBin)
}

func TestShortBitstreamIsPadded(t *testing.T) {
	m := NewTxMonitor(48000, 1024)
	m.ProcessSamples([]int16{1000, -1000, 1000, -1000})

	spectrum := m.Spectrum().Spectrum
	require.Len(t, spectrum, 512)

	// alternating samples put their energy next to Nyquist
	assert.Greater(t, spectrum[len(spectrum)-1], float32(-30))
	for i, v := range spectrum {
		assert.GreaterOrEqual(t, v, float32(silenceDB), "bin %d", i)
	}
}

func TestToDBNeverBelowFloor(t *testing.T) {
	assert.Equal(t, float32(silenceDB), toDB(0))
	assert.Equal(t, float32(silenceDB), toDB(1e-9))
	assert.InDelta(t, -6.02, toDB(0.5), 0.01)
}

func TestClippingAndStatistics(t *testing.T) {
	m := NewTxMonitor(48000, 256)
	m.ProcessSamples([]int16{32767, -32768, 0, 100})
	m.ProcessSamples(nil)

	assert.True(t, m.Levels().Clipping)
	assert.InDelta(t, 0.0, m.Levels().PeakLevel, 0.01)

	stats := m.Statistics()
	assert.Equal(t, int64(1), stats["bitstreams"])
	assert.Equal(t, int64(4), stats["sample_count"])
	assert.Equal(t, int64(2), stats["clip_count"])
	assert.InDelta(t, 50.0, stats["clip_rate_pct"], 1e-9)
}
