// Package options maps the closed selector indices of the pager form onto
// protocol enumerations and hardware constants.
package options

import (
	"errors"
	"fmt"

	"github.com/dougsko/pagerd/pkg/pocsag"
)

// ErrIndexOutOfRange is returned for a selector index outside its table
var ErrIndexOutOfRange = errors.New("option index out of range")

// Selector names
const (
	SelectorType      = "type"
	SelectorBitrate   = "bitrate"
	SelectorCharset   = "charset"
	SelectorFunction  = "function"
	SelectorDateTime  = "datetime"
	SelectorGain      = "gain"
	SelectorBandwidth = "bandwidth"
)

// Default calibration for a HackRF class transmitter
var (
	DefaultGainLevels    = []int{5, 23, 47}
	DefaultBandwidthsKHz = []float64{4.5, 9, 10, 15, 25, 50}
)

var (
	types     = []pocsag.Type{pocsag.Alphanumeric, pocsag.Numeric, pocsag.Tone}
	bitrates  = []pocsag.BPS{pocsag.BPS512, pocsag.BPS1200, pocsag.BPS2400}
	charsets  = []pocsag.Charset{pocsag.Raw, pocsag.Latin, pocsag.Cyrillic}
	functions = []pocsag.Function{pocsag.FunctionA, pocsag.FunctionB, pocsag.FunctionC, pocsag.FunctionD}
	dateTimes = []pocsag.DateTimePosition{pocsag.DateTimeNone, pocsag.DateTimeBegin, pocsag.DateTimeEnd}
)

var labels = map[string][]string{
	SelectorType:     {"Alphanumeric", "Numeric", "Tone"},
	SelectorBitrate:  {"512 bps", "1200 bps", "2400 bps"},
	SelectorCharset:  {"Raw text", "Latin", "Cyrillic"},
	SelectorFunction: {"A (00)", "B (01)", "C (10)", "D (11)"},
	SelectorDateTime: {"None", "Begin", "End"},
	SelectorGain:     {"Low", "Medium", "High"},
}

// Selection holds the current index of every selector on the form
type Selection struct {
	Type      int  `json:"type" yaml:"type"`
	Bitrate   int  `json:"bitrate" yaml:"bitrate"`
	Charset   int  `json:"charset" yaml:"charset"`
	Function  int  `json:"function" yaml:"function"`
	DateTime  int  `json:"datetime" yaml:"datetime"`
	Gain      int  `json:"gain" yaml:"gain"`
	Bandwidth int  `json:"bandwidth" yaml:"bandwidth"`
	Amplifier bool `json:"amplifier" yaml:"amplifier"`
}

// DefaultSelection is the form state on startup: alphanumeric, 512 bps,
// Latin, function A, no timestamp, high gain, 25 kHz, amplifier on
func DefaultSelection() Selection {
	return Selection{
		Type:      0,
		Bitrate:   0,
		Charset:   1,
		Function:  0,
		DateTime:  0,
		Gain:      2,
		Bandwidth: 4,
		Amplifier: true,
	}
}

// Mapper resolves selector indices. The protocol tables are fixed; gain and
// bandwidth come from the transmitter calibration.
type Mapper struct {
	gainLevels []int
	bandwidths []float64
}

// NewMapper creates a mapper over the given calibration tables
func NewMapper(gainLevels []int, bandwidthsKHz []float64) (*Mapper, error) {
	if len(gainLevels) != len(labels[SelectorGain]) {
		return nil, fmt.Errorf("expected %d gain levels, got %d", len(labels[SelectorGain]), len(gainLevels))
	}
	if len(bandwidthsKHz) == 0 {
		return nil, fmt.Errorf("no bandwidths configured")
	}
	for _, bw := range bandwidthsKHz {
		if bw <= 0 {
			return nil, fmt.Errorf("invalid bandwidth %.1f kHz", bw)
		}
	}

	return &Mapper{
		gainLevels: append([]int(nil), gainLevels...),
		bandwidths: append([]float64(nil), bandwidthsKHz...),
	}, nil
}

// NewDefaultMapper creates a mapper with the built-in calibration
func NewDefaultMapper() *Mapper {
	m, _ := NewMapper(DefaultGainLevels, DefaultBandwidthsKHz)
	return m
}

func lookup[T any](table []T, selector string, index int) (T, error) {
	if index < 0 || index >= len(table) {
		var zero T
		return zero, fmt.Errorf("%s %d: %w", selector, index, ErrIndexOutOfRange)
	}
	return table[index], nil
}

// Type maps the message type selector
func (m *Mapper) Type(index int) (pocsag.Type, error) {
	return lookup(types, SelectorType, index)
}

// Bitrate maps the bitrate selector
func (m *Mapper) Bitrate(index int) (pocsag.BPS, error) {
	return lookup(bitrates, SelectorBitrate, index)
}

// Charset maps the character set selector
func (m *Mapper) Charset(index int) (pocsag.Charset, error) {
	return lookup(charsets, SelectorCharset, index)
}

// Function maps the function code selector
func (m *Mapper) Function(index int) (pocsag.Function, error) {
	return lookup(functions, SelectorFunction, index)
}

// DateTime maps the date/time placement selector
func (m *Mapper) DateTime(index int) (pocsag.DateTimePosition, error) {
	return lookup(dateTimes, SelectorDateTime, index)
}

// Gain maps the RF gain selector to hardware gain units
func (m *Mapper) Gain(index int) (int, error) {
	return lookup(m.gainLevels, SelectorGain, index)
}

// Bandwidth maps the bandwidth selector to kHz
func (m *Mapper) Bandwidth(index int) (float64, error) {
	return lookup(m.bandwidths, SelectorBandwidth, index)
}

// Count returns the number of entries of a selector, 0 for unknown names
func (m *Mapper) Count(selector string) int {
	return len(m.Labels(selector))
}

// Labels returns the display labels of a selector
func (m *Mapper) Labels(selector string) []string {
	if selector == SelectorBandwidth {
		out := make([]string, len(m.bandwidths))
		for i, bw := range m.bandwidths {
			out[i] = fmt.Sprintf("%g KHz", bw)
		}
		return out
	}
	return append([]string(nil), labels[selector]...)
}

// Selectors lists every selector name in form order
func Selectors() []string {
	return []string{
		SelectorType,
		SelectorBitrate,
		SelectorCharset,
		SelectorFunction,
		SelectorDateTime,
		SelectorGain,
		SelectorBandwidth,
	}
}

// Validate checks every index of a selection against the tables
func (m *Mapper) Validate(s Selection) error {
	for _, name := range Selectors() {
		index, _ := s.Index(name)
		if index < 0 || index >= m.Count(name) {
			return fmt.Errorf("%s %d: %w", name, index, ErrIndexOutOfRange)
		}
	}
	return nil
}

// Index returns the current index of the named selector
func (s Selection) Index(selector string) (int, bool) {
	switch selector {
	case SelectorType:
		return s.Type, true
	case SelectorBitrate:
		return s.Bitrate, true
	case SelectorCharset:
		return s.Charset, true
	case SelectorFunction:
		return s.Function, true
	case SelectorDateTime:
		return s.DateTime, true
	case SelectorGain:
		return s.Gain, true
	case SelectorBandwidth:
		return s.Bandwidth, true
	}
	return 0, false
}

// With returns a copy of the selection with the named selector set
func (s Selection) With(selector string, index int) (Selection, bool) {
	switch selector {
	case SelectorType:
		s.Type = index
	case SelectorBitrate:
		s.Bitrate = index
	case SelectorCharset:
		s.Charset = index
	case SelectorFunction:
		s.Function = index
	case SelectorDateTime:
		s.DateTime = index
	case SelectorGain:
		s.Gain = index
	case SelectorBandwidth:
		s.Bandwidth = index
	default:
		return s, false
	}
	return s, true
}

// Resolved is a selection translated into protocol and hardware values
type Resolved struct {
	Type         pocsag.Type
	Bitrate      pocsag.BPS
	Charset      pocsag.Charset
	Function     pocsag.Function
	DateTime     pocsag.DateTimePosition
	GainRF       int
	BandwidthKHz float64
	Amplifier    bool
}

// Resolve translates a whole selection
func (m *Mapper) Resolve(s Selection) (Resolved, error) {
	var (
		r   = Resolved{Amplifier: s.Amplifier}
		err error
	)

	if r.Type, err = m.Type(s.Type); err != nil {
		return r, err
	}
	if r.Bitrate, err = m.Bitrate(s.Bitrate); err != nil {
		return r, err
	}
	if r.Charset, err = m.Charset(s.Charset); err != nil {
		return r, err
	}
	if r.Function, err = m.Function(s.Function); err != nil {
		return r, err
	}
	if r.DateTime, err = m.DateTime(s.DateTime); err != nil {
		return r, err
	}
	if r.GainRF, err = m.Gain(s.Gain); err != nil {
		return r, err
	}
	if r.BandwidthKHz, err = m.Bandwidth(s.Bandwidth); err != nil {
		return r, err
	}

	return r, nil
}
