package pocsag

// Type is the POCSAG message type carried after the address codeword
type Type int

const (
	Alphanumeric Type = iota
	Numeric
	Tone
)

// String returns the display name of the message type
func (t Type) String() string {
	switch t {
	case Alphanumeric:
		return "Alphanumeric"
	case Numeric:
		return "Numeric"
	case Tone:
		return "Tone"
	default:
		return "Unknown"
	}
}

// BPS is the over-the-air bitrate
type BPS int

const (
	BPS512  BPS = 512
	BPS1200 BPS = 1200
	BPS2400 BPS = 2400
)

// Valid reports whether b is one of the three POCSAG bitrates
func (b BPS) Valid() bool {
	return b == BPS512 || b == BPS1200 || b == BPS2400
}

// Charset selects how alphanumeric bodies are mapped onto 7-bit characters
type Charset int

const (
	Raw Charset = iota
	Latin
	Cyrillic
)

// String returns the display name of the character set
func (c Charset) String() string {
	switch c {
	case Raw:
		return "Raw"
	case Latin:
		return "Latin"
	case Cyrillic:
		return "Cyrillic"
	default:
		return "Unknown"
	}
}

// Function is the 2-bit function code sent in the address codeword
type Function int

const (
	FunctionA Function = iota // 00
	FunctionB                 // 01
	FunctionC                 // 10
	FunctionD                 // 11
)

// String returns the letter used for the function code
func (f Function) String() string {
	switch f {
	case FunctionA:
		return "A"
	case FunctionB:
		return "B"
	case FunctionC:
		return "C"
	case FunctionD:
		return "D"
	default:
		return "?"
	}
}

// DateTimePosition places a timestamp in alphanumeric bodies
type DateTimePosition int

const (
	DateTimeNone DateTimePosition = iota
	DateTimeBegin
	DateTimeEnd
)

// String returns the display name of the placement
func (d DateTimePosition) String() string {
	switch d {
	case DateTimeNone:
		return "None"
	case DateTimeBegin:
		return "Begin"
	case DateTimeEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// Protocol limits
const (
	MaxRIC           = 2097151
	MaxMessageLength = 192
)
