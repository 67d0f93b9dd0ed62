package pocsag

import (
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Numeric BCD codes beyond the ten digits
const (
	numericSpare  byte = 0xa
	numericUrgent byte = 0xb
	numericSpace  byte = 0xc
	numericHyphen byte = 0xd
	numericClose  byte = 0xe
	numericOpen   byte = 0xf
)

// NumericCode returns the BCD code for a numeric message character
func NumericCode(r rune) (byte, bool) {
	switch {
	case r >= '0' && r <= '9':
		return byte(r - '0'), true
	case r == '*' || r == '$':
		return numericSpare, true
	case r == 'U' || r == 'u':
		return numericUrgent, true
	case r == '-':
		return numericHyphen, true
	case r == ']' || r == ')':
		return numericClose, true
	case r == '[' || r == '(':
		return numericOpen, true
	case unicode.IsSpace(r):
		return numericSpace, true
	}
	return 0, false
}

// IsNumericText reports whether every character of s can be sent in a
// numeric message
func IsNumericText(s string) bool {
	for _, r := range s {
		if _, ok := NumericCode(r); !ok {
			return false
		}
	}
	return true
}

func numericDigits(body []byte) ([]byte, error) {
	digits := make([]byte, 0, len(body))
	for i := 0; len(body) > 0; i++ {
		r, size := utf8.DecodeRune(body)
		body = body[size:]
		code, ok := NumericCode(r)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidNumeric, "%q at position %d", r, i)
		}
		digits = append(digits, code)
	}
	return digits, nil
}
