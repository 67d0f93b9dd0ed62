package pocsag

import "time"

// Modulate renders codewords as NRZ samples, most significant bit first.
// A one is sent as -amplitude and a zero as +amplitude. Samples per bit may
// be fractional; bit edges are placed on the nearest sample.
func Modulate(words []uint32, bps BPS, sampleRate int, amplitude int16) []int16 {
	totalBits := len(words) * 32
	out := make([]int16, 0, totalBits*sampleRate/int(bps)+1)

	emitted := 0
	for i, word := range words {
		for b := 0; b < 32; b++ {
			level := amplitude
			if word&(1<<(31-b)) != 0 {
				level = -amplitude
			}

			bitIndex := i*32 + b + 1
			edge := (bitIndex*sampleRate + int(bps)/2) / int(bps)
			for ; emitted < edge; emitted++ {
				out = append(out, level)
			}
		}
	}

	return out
}

// Duration returns how long the baseband takes on air
func Duration(samples []int16, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)
}
