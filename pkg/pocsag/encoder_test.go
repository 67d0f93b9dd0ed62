package pocsag

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
}

func TestEncodeCodeword(t *testing.T) {
	t.Run("Idle Codeword Is Valid BCH", func(t *testing.T) {
		assert.Equal(t, uint32(IdleWord), encodeCodeword(IdleWord>>11))
	})

	t.Run("Address Codeword", func(t *testing.T) {
		// RIC 1234, function A
		assert.Equal(t, uint32(0x0013439a), encodeCodeword(uint32(1234>>3)<<2))
	})

	t.Run("Even Parity", func(t *testing.T) {
		for _, data := range []uint32{0, 1, 0x12345, 0x1fffff, 0x100000} {
			word := encodeCodeword(data)
			assert.Zero(t, countOnes(word)%2, "codeword %08x", word)
		}
	})
}

func countOnes(v uint32) int {
	n := 0
	for ; v != 0; v &= v - 1 {
		n++
	}
	return n
}

func TestCodewords(t *testing.T) {
	enc := NewEncoder()
	enc.Clock = fixedClock

	t.Run("Alphanumeric Layout", func(t *testing.T) {
		words, err := enc.Codewords(1234, Alphanumeric, []byte("TEST"), Latin, FunctionA)
		require.NoError(t, err)

		// 18 preamble words plus one batch
		require.Len(t, words, 18+17)
		for i := 0; i < 18; i++ {
			assert.Equal(t, uint32(PreambleWord), words[i])
		}
		assert.Equal(t, uint32(SyncWord), words[18])

		// RIC 1234 lives in frame 2, so four idle codewords come first
		for i := 19; i < 23; i++ {
			assert.Equal(t, uint32(IdleWord), words[i])
		}
		assert.Equal(t, uint32(0x0013439a), words[23])

		// "TEST" plus EOT is 35 bits: two message codewords
		assert.NotZero(t, words[24]&0x80000000)
		assert.NotZero(t, words[25]&0x80000000)
		for i := 26; i < len(words); i++ {
			assert.Equal(t, uint32(IdleWord), words[i])
		}
	})

	t.Run("Tone Only", func(t *testing.T) {
		words, err := enc.Codewords(0, Tone, []byte("ignored"), Latin, FunctionD)
		require.NoError(t, err)
		require.Len(t, words, 18+17)
		assert.Equal(t, encodeCodeword(uint32(FunctionD)), words[19])
		assert.Equal(t, uint32(IdleWord), words[20])
	})

	t.Run("Message Crosses Batch Boundary", func(t *testing.T) {
		words, err := enc.Codewords(7, Alphanumeric, []byte("TEST"), Latin, FunctionA)
		require.NoError(t, err)
		require.Len(t, words, 18+17+17)
		assert.Equal(t, uint32(SyncWord), words[18+17])
	})

	t.Run("Numeric", func(t *testing.T) {
		words, err := enc.Codewords(8, Numeric, []byte("123-45"), Latin, FunctionA)
		require.NoError(t, err)
		// frame 0: sync, address, two digit words, idle...
		assert.Equal(t, encodeCodeword(uint32(8>>3)<<2), words[19])
		assert.NotZero(t, words[20]&0x80000000)
		assert.NotZero(t, words[21]&0x80000000)
		assert.Equal(t, uint32(IdleWord), words[22])
	})

	t.Run("Invalid RIC", func(t *testing.T) {
		_, err := enc.Codewords(MaxRIC+1, Alphanumeric, []byte("x"), Latin, FunctionA)
		assert.True(t, errors.Is(err, ErrInvalidRIC))
	})

	t.Run("Invalid Numeric", func(t *testing.T) {
		_, err := enc.Codewords(1, Numeric, []byte("12a"), Latin, FunctionA)
		assert.True(t, errors.Is(err, ErrInvalidNumeric))
	})

	t.Run("Too Long", func(t *testing.T) {
		body := make([]byte, MaxMessageLength+1)
		for i := range body {
			body[i] = 'A'
		}
		_, err := enc.Codewords(1, Alphanumeric, body, Latin, FunctionA)
		assert.True(t, errors.Is(err, ErrMessageTooLong))
	})

	t.Run("Invalid Function", func(t *testing.T) {
		_, err := enc.Codewords(1, Tone, nil, Latin, Function(4))
		assert.True(t, errors.Is(err, ErrInvalidFunction))
	})
}

func TestPackDigits(t *testing.T) {
	// "1" is 0001, sent least significant bit first as 1000, then four spaces
	words := packDigits([]byte{1})
	require.Len(t, words, 1)
	data := words[0] >> 11
	assert.Equal(t, uint32(0x1<<20|0x8<<16|0x3333), data)
}

func TestMapCharset(t *testing.T) {
	t.Run("Raw Masks High Bit", func(t *testing.T) {
		out, err := mapCharset([]byte{0xc1, 'a'}, Raw)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x41, 'a'}, out)
	})

	t.Run("Latin Strips Accents", func(t *testing.T) {
		out, err := mapCharset([]byte("Café Ünïcode €"), Latin)
		require.NoError(t, err)
		assert.Equal(t, "Cafe Unicode ?", string(out))
	})

	t.Run("Cyrillic Table", func(t *testing.T) {
		out, err := mapCharset([]byte("Привет abc 12"), Cyrillic)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x70, 0x72, 0x69, 0x77, 0x65, 0x74, ' ', 'A', 'B', 'C', ' ', '1', '2'}, out)
	})

	t.Run("Unknown Charset", func(t *testing.T) {
		_, err := mapCharset([]byte("x"), Charset(9))
		assert.Error(t, err)
	})
}

func TestDateTimePlacement(t *testing.T) {
	enc := NewEncoder()
	enc.Clock = fixedClock

	enc.SetDateTimePosition(DateTimeBegin)
	assert.Equal(t, "14:05 09.03.24 HELLO", string(enc.stamp([]byte("HELLO"))))

	enc.SetDateTimePosition(DateTimeEnd)
	assert.Equal(t, "HELLO 14:05 09.03.24", string(enc.stamp([]byte("HELLO"))))

	enc.SetDateTimePosition(DateTimeNone)
	assert.Equal(t, "HELLO", string(enc.stamp([]byte("HELLO"))))
}

func TestEncode(t *testing.T) {
	enc := NewEncoder()
	enc.Clock = fixedClock

	t.Run("Sample Count Matches Bitrate", func(t *testing.T) {
		for _, bps := range []BPS{BPS512, BPS1200, BPS2400} {
			samples, err := enc.Encode(1234, Alphanumeric, []byte("TEST"), bps, Latin, FunctionA)
			require.NoError(t, err)

			bitsSent := 35 * 32
			want := (bitsSent*enc.BasebandRate + int(bps)/2) / int(bps)
			assert.Len(t, samples, want, "bitrate %d", bps)
		}
	})

	t.Run("Amplitude", func(t *testing.T) {
		enc.SetAmplitude(1000)
		defer enc.SetAmplitude(DefaultAmplitude)

		samples, err := enc.Encode(1, Tone, nil, BPS1200, Latin, FunctionA)
		require.NoError(t, err)
		// preamble starts with a one
		assert.Equal(t, int16(-1000), samples[0])
		for _, s := range samples {
			assert.True(t, s == 1000 || s == -1000)
		}
	})

	t.Run("Invalid Bitrate", func(t *testing.T) {
		_, err := enc.Encode(1, Tone, nil, BPS(300), Latin, FunctionA)
		assert.True(t, errors.Is(err, ErrInvalidBitrate))
	})
}

func TestIsNumericText(t *testing.T) {
	assert.True(t, IsNumericText("123-45"))
	assert.True(t, IsNumericText("U*[0](9)$ \n"))
	assert.False(t, IsNumericText("12a"))
	assert.True(t, IsNumericText(""))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Second, Duration(make([]int16, 48000), 48000))
	assert.Equal(t, time.Duration(0), Duration(nil, 0))
}
