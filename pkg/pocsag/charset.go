package pocsag

import (
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cyrillicTable is the Russian pager layout: the seven-bit codes 0x60-0x7F
// display upper-case Cyrillic letters instead of lower-case Latin ones.
const cyrillicTable = "ЮАБЦДЕФГХИЙКЛМНОПЯРСТУЖВЬЫЗШЭЩЧЪ"

var cyrillicCodes = func() map[rune]byte {
	codes := make(map[rune]byte, 33)
	i := 0
	for _, r := range cyrillicTable {
		codes[r] = byte(0x60 + i)
		i++
	}
	codes['Ё'] = codes['Е']
	return codes
}()

// unknownChar replaces characters the selected charset cannot represent
const unknownChar = '?'

// mapCharset converts an alphanumeric body into seven-bit pager characters
func mapCharset(body []byte, cs Charset) ([]byte, error) {
	switch cs {
	case Raw:
		out := make([]byte, len(body))
		for i, b := range body {
			out[i] = b & 0x7f
		}
		return out, nil

	case Latin:
		folded, _, err := transform.Bytes(latinFolder(), body)
		if err != nil {
			return nil, errors.Wrap(err, "latin transliteration failed")
		}
		out := make([]byte, 0, len(folded))
		for len(folded) > 0 {
			r, size := utf8.DecodeRune(folded)
			folded = folded[size:]
			if r < 0x80 && r != utf8.RuneError {
				out = append(out, byte(r))
			} else {
				out = append(out, unknownChar)
			}
		}
		return out, nil

	case Cyrillic:
		out := make([]byte, 0, len(body))
		for len(body) > 0 {
			r, size := utf8.DecodeRune(body)
			body = body[size:]
			switch {
			case r >= 'a' && r <= 'z':
				out = append(out, byte(unicode.ToUpper(r)))
			case r < 0x60:
				out = append(out, byte(r))
			default:
				if code, ok := cyrillicCodes[unicode.ToUpper(r)]; ok {
					out = append(out, code)
				} else {
					out = append(out, unknownChar)
				}
			}
		}
		return out, nil
	}

	return nil, errors.Errorf("unsupported charset %d", cs)
}

// latinFolder strips combining marks so accented letters become plain ASCII
func latinFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
