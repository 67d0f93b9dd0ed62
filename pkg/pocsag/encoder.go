// Package pocsag encodes pager messages into POCSAG codewords and the NRZ
// baseband that an FM transmitter modulates.
//
// Codeword layout follows the rpitx derived encoder: a 576 bit preamble of
// alternating ones and zeros, then batches made of one sync codeword and
// eight frames of two codewords each. A receiver only looks at the frame
// selected by the low three bits of its RIC.
package pocsag

import (
	"math/bits"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Fixed codewords
const (
	PreambleWord uint32 = 0xAAAAAAAA
	SyncWord     uint32 = 0x7CD215D8
	IdleWord     uint32 = 0x7A89C197
)

const (
	preambleBits   = 576
	batchCodewords = 16
	frameCodewords = 2

	messageFlag  uint32 = 0x100000
	bitsPerWord         = 20
	bitsPerText         = 7
	bitsPerDigit        = 4
	bitsCRC             = 10
	crcGenerator uint32 = 0x769 // x^10+x^9+x^8+x^6+x^5+x^3+1

	endOfText byte = 0x04
)

// Default encoder settings
const (
	DefaultAmplitude    = 8000
	DefaultBasebandRate = 48000
	DefaultDateFormat   = "15:04 02.01.06"
)

var (
	ErrInvalidRIC      = errors.New("ric out of range")
	ErrMessageTooLong  = errors.New("message too long")
	ErrInvalidNumeric  = errors.New("invalid numeric character")
	ErrInvalidBitrate  = errors.New("invalid bitrate")
	ErrInvalidFunction = errors.New("invalid function code")
	ErrInvalidType     = errors.New("invalid message type")
)

// Encoder turns a message into codewords and baseband samples.
// Amplitude and DateTime are set before calling Encode.
type Encoder struct {
	Amplitude    int16
	DateTime     DateTimePosition
	DateFormat   string
	BasebandRate int
	Clock        func() time.Time
}

// NewEncoder returns an encoder with the default amplitude, baseband rate
// and date format
func NewEncoder() *Encoder {
	return &Encoder{
		Amplitude:    DefaultAmplitude,
		DateFormat:   DefaultDateFormat,
		BasebandRate: DefaultBasebandRate,
		Clock:        time.Now,
	}
}

// SetAmplitude sets the peak baseband level
func (e *Encoder) SetAmplitude(amplitude int16) {
	e.Amplitude = amplitude
}

// SetDateTimePosition sets where alphanumeric messages get a timestamp
func (e *Encoder) SetDateTimePosition(pos DateTimePosition) {
	e.DateTime = pos
}

// Encode returns the NRZ baseband for one page at e.BasebandRate
func (e *Encoder) Encode(ric int, msgType Type, body []byte, bps BPS, cs Charset, fn Function) ([]int16, error) {
	if !bps.Valid() {
		return nil, errors.Wrapf(ErrInvalidBitrate, "%d bps", bps)
	}
	if e.BasebandRate < int(bps) {
		return nil, errors.Errorf("baseband rate %d below bitrate %d", e.BasebandRate, bps)
	}

	words, err := e.Codewords(ric, msgType, body, cs, fn)
	if err != nil {
		return nil, err
	}

	return Modulate(words, bps, e.BasebandRate, e.Amplitude), nil
}

// Codewords returns the full transmission as 32-bit codewords, preamble included
func (e *Encoder) Codewords(ric int, msgType Type, body []byte, cs Charset, fn Function) ([]uint32, error) {
	if ric < 0 || ric > MaxRIC {
		return nil, errors.Wrapf(ErrInvalidRIC, "ric %d", ric)
	}
	if fn < FunctionA || fn > FunctionD {
		return nil, errors.Wrapf(ErrInvalidFunction, "function %d", fn)
	}
	if msgType != Tone && utf8.RuneCount(body) > MaxMessageLength {
		return nil, errors.Wrapf(ErrMessageTooLong, "%d characters, max %d", utf8.RuneCount(body), MaxMessageLength)
	}

	var payload []uint32
	switch msgType {
	case Alphanumeric:
		text, err := mapCharset(e.stamp(body), cs)
		if err != nil {
			return nil, err
		}
		payload = packText(text)

	case Numeric:
		digits, err := numericDigits(body)
		if err != nil {
			return nil, err
		}
		payload = packDigits(digits)

	case Tone:

	default:
		return nil, errors.Wrapf(ErrInvalidType, "type %d", msgType)
	}

	w := &batchWriter{}
	for i := 0; i < preambleBits/32; i++ {
		w.words = append(w.words, PreambleWord)
	}

	for i := 0; i < (ric&0x7)*frameCodewords; i++ {
		w.put(IdleWord)
	}
	w.put(encodeCodeword(uint32(ric>>3)<<2 | uint32(fn)))
	for _, word := range payload {
		w.put(word)
	}

	// An idle codeword ends the message; the batch is then filled with idle.
	w.put(IdleWord)
	for w.pos != 0 {
		w.put(IdleWord)
	}

	return w.words, nil
}

// stamp adds the timestamp to an alphanumeric body
func (e *Encoder) stamp(body []byte) []byte {
	if e.DateTime == DateTimeNone {
		return body
	}

	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}
	format := e.DateFormat
	if format == "" {
		format = DefaultDateFormat
	}
	ts := clock().Format(format)

	switch e.DateTime {
	case DateTimeBegin:
		return append([]byte(ts+" "), body...)
	case DateTimeEnd:
		out := append([]byte{}, body...)
		return append(out, []byte(" "+ts)...)
	}
	return body
}

// batchWriter inserts a sync codeword at the start of every batch
type batchWriter struct {
	words []uint32
	pos   int
}

func (w *batchWriter) put(word uint32) {
	if w.pos == 0 {
		w.words = append(w.words, SyncWord)
	}
	w.words = append(w.words, word)
	w.pos = (w.pos + 1) % batchCodewords
}

// bitPacker fills 20-bit message codewords, least significant bit of each
// character first
type bitPacker struct {
	words   []uint32
	current uint32
	count   int
}

func (p *bitPacker) push(value byte, n int) {
	for i := 0; i < n; i++ {
		p.current = p.current<<1 | uint32(value>>i)&1
		p.count++
		if p.count == bitsPerWord {
			p.flush()
		}
	}
}

func (p *bitPacker) flush() {
	p.words = append(p.words, encodeCodeword(p.current|messageFlag))
	p.current = 0
	p.count = 0
}

func packText(text []byte) []uint32 {
	p := &bitPacker{}
	for _, c := range text {
		p.push(c, bitsPerText)
	}
	p.push(endOfText, bitsPerText)
	if p.count > 0 {
		p.current <<= bitsPerWord - p.count
		p.flush()
	}
	return p.words
}

func packDigits(digits []byte) []uint32 {
	p := &bitPacker{}
	for _, d := range digits {
		p.push(d, bitsPerDigit)
	}
	for p.count > 0 {
		p.push(numericSpace, bitsPerDigit)
	}
	return p.words
}

// encodeCodeword appends the BCH(31,21) check bits and even parity to a
// 21-bit data word
func encodeCodeword(data uint32) uint32 {
	withCRC := data<<bitsCRC | bchRemainder(data)
	return withCRC<<1 | uint32(bits.OnesCount32(withCRC)%2)
}

func bchRemainder(data uint32) uint32 {
	msg := data << bitsCRC
	divisor := crcGenerator << 20
	for column := 0; column <= 20; column++ {
		if (msg>>(30-column))&1 != 0 {
			msg ^= divisor
		}
		divisor >>= 1
	}
	return msg & 0x3ff
}
