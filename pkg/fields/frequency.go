package fields

import (
	"regexp"
	"strings"
)

// Frequency text budget: three integer digits before the reshaping kicks
// in, one point, four fractional digits. A trailing point may follow up to
// four integer digits.
const (
	maxIntegerDigits    = 3
	maxBaselineDigits   = 4
	maxFrequencyLength  = maxIntegerDigits + 1 + 4
	autoPointAfterDigit = 3
)

var frequencyGrammar = regexp.MustCompile(`^[0-9]{0,4}(\.[0-9]{0,4})?$`)

// Frequency filters the MHz.kHz field. It behaves like a masked input: a
// trailing point is dropped, and a fourth leading digit pushes a point in
// after the third, so "1445" becomes "144.5".
type Frequency struct {
	accepted string
}

// NewFrequency creates a frequency filter seeded with initial
func NewFrequency(initial string) *Frequency {
	f := &Frequency{}
	f.Edit(initial)
	return f
}

// Edit applies a new field text and returns the text the field must show
// and whether the edit was accepted as typed
func (f *Frequency) Edit(text string) (string, bool) {
	if strings.Trim(text, "0123456789.") != "" {
		return f.accepted, false
	}

	dot := strings.IndexByte(text, '.')
	begin := text
	if dot != -1 {
		begin = text[:dot]
	}

	switch {
	case strings.HasSuffix(text, "."):
		// The integer part becomes the new baseline and the point is dropped.
		if len(begin) <= maxBaselineDigits {
			f.accepted = begin
		}
		return f.accepted, false

	case len(begin) <= maxIntegerDigits && len(text) <= maxFrequencyLength:
		if !frequencyGrammar.MatchString(text) {
			return f.accepted, false
		}
		f.accepted = text
		return text, true

	case dot == -1 && len(begin) > maxIntegerDigits:
		reshaped := text[:autoPointAfterDigit] + "." + text[autoPointAfterDigit:]
		if !frequencyGrammar.MatchString(reshaped) {
			return f.accepted, false
		}
		f.accepted = reshaped
		return reshaped, false
	}

	return f.accepted, false
}

// Text returns the last accepted text
func (f *Frequency) Text() string {
	return f.accepted
}
