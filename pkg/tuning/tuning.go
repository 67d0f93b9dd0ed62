// Package tuning resolves the operator's frequency text into the integer
// parts the transmitter is tuned with.
package tuning

import (
	"fmt"
	"strconv"
	"strings"
)

// Frequency is a carrier split the way the transmitter takes it
type Frequency struct {
	MHz int `json:"mhz"`
	KHz int `json:"khz"`
	Hz  int `json:"hz"`
}

// Hertz returns the carrier in Hz
func (f Frequency) Hertz() int64 {
	return int64(f.MHz)*1000000 + int64(f.KHz)*1000 + int64(f.Hz)
}

// String formats the carrier as MHz with six decimals
func (f Frequency) String() string {
	return fmt.Sprintf("%d.%03d%03d MHz", f.MHz, f.KHz, f.Hz)
}

// Spec is the resolved hardware target for one transmission
type Spec struct {
	Frequency    Frequency `json:"frequency"`
	GainRF       int       `json:"gain_rf"`
	BandwidthKHz float64   `json:"bandwidth_khz"`
	Amplifier    bool      `json:"amplifier"`
}

// Resolve splits a finalized frequency text into MHz, kHz and Hz.
//
// Fractional digits are left justified into three kHz digits ("5" is 500
// kHz) and a fourth fractional digit becomes tens of Hz. Text that came
// through the frequency filter always resolves; anything unparsable counts
// as zero.
func Resolve(text string) Frequency {
	var a, b, c string

	dot := strings.IndexByte(text, '.')
	if dot == -1 {
		a = text
	} else {
		a = text[:dot]
		if !strings.HasSuffix(text, ".") {
			b = text[dot+1:]
		}
	}

	f := Frequency{MHz: toInt(a)}
	if b != "" {
		if len(b) > 3 {
			c = b[3:4]
			b = b[:3]
		}
		scale := 1
		for i := len(b); i < 3; i++ {
			scale *= 10
		}
		f.KHz = toInt(b) * scale
		f.Hz = toInt(c) * 10
	}

	return f
}

func toInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
