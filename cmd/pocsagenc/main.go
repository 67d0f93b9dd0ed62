package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/dougsko/pagerd/pkg/pocsag"
)

var cli struct {
	Capcode   int    `help:"Receiver address (RIC)" required:""`
	Message   string `help:"Message body" default:""`
	Type      string `help:"Message type" enum:"alpha,numeric,tone" default:"alpha"`
	Bitrate   int    `help:"Bitrate" enum:"512,1200,2400" default:"512"`
	Charset   string `help:"Character set" enum:"raw,latin,cyrillic" default:"latin"`
	Function  string `help:"Function code" enum:"A,B,C,D" default:"A"`
	DateTime  string `help:"Timestamp placement" enum:"none,begin,end" default:"none"`
	Rate      int    `help:"Baseband sample rate" default:"48000"`
	Amplitude int16  `help:"Peak sample level" default:"8000"`
	Output    string `help:"Output file, raw 16-bit little endian samples" short:"o" type:"path"`
	WAV       bool   `help:"Write a WAV header before the samples" name:"wav"`
	Words     bool   `help:"Show the codeword sequence" name:"codewords"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("pocsagenc"),
		kong.Description("Encode a POCSAG page to baseband samples"),
	)

	msgType := map[string]pocsag.Type{
		"alpha":   pocsag.Alphanumeric,
		"numeric": pocsag.Numeric,
		"tone":    pocsag.Tone,
	}[cli.Type]
	charset := map[string]pocsag.Charset{
		"raw":      pocsag.Raw,
		"latin":    pocsag.Latin,
		"cyrillic": pocsag.Cyrillic,
	}[cli.Charset]
	function := pocsag.Function(strings.Index("ABCD", cli.Function))
	position := map[string]pocsag.DateTimePosition{
		"none":  pocsag.DateTimeNone,
		"begin": pocsag.DateTimeBegin,
		"end":   pocsag.DateTimeEnd,
	}[cli.DateTime]

	encoder := pocsag.NewEncoder()
	encoder.BasebandRate = cli.Rate
	encoder.SetAmplitude(cli.Amplitude)
	encoder.SetDateTimePosition(position)

	body := []byte(cli.Message)
	if msgType == pocsag.Tone {
		body = nil
	}

	fmt.Printf("Encoding POCSAG Page\n")
	fmt.Printf("====================\n")
	fmt.Printf("Capcode:  %d\n", cli.Capcode)
	fmt.Printf("Type:     %s\n", msgType)
	fmt.Printf("Function: %s\n", function)
	fmt.Printf("Charset:  %s\n", charset)
	fmt.Printf("Message:  %q\n", body)
	fmt.Printf("Bitrate:  %d bps\n", cli.Bitrate)
	fmt.Printf("Rate:     %d Hz\n", cli.Rate)
	fmt.Printf("\n")

	words, err := encoder.Codewords(cli.Capcode, msgType, body, charset, function)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encoding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Encoded to %d codewords\n", len(words))

	if cli.Words {
		fmt.Printf("\nCodewords:\n")
		fmt.Printf("==========\n")
		for i, word := range words {
			fmt.Printf("%3d: %08X%s\n", i, word, describe(word))
		}
		fmt.Printf("\n")
	}

	samples, err := encoder.Encode(cli.Capcode, msgType, body, pocsag.BPS(cli.Bitrate), charset, function)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encoding failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d samples (%s)\n", len(samples), pocsag.Duration(samples, cli.Rate))

	if cli.Output == "" {
		return
	}

	file, err := os.Create(cli.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	if cli.WAV {
		err = writeWAVHeader(w, cli.Rate, len(samples))
	}
	if err == nil {
		err = binary.Write(w, binary.LittleEndian, samples)
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %s\n", cli.Output)
}

// describe labels preamble, sync and idle codewords
func describe(word uint32) string {
	switch word {
	case pocsag.PreambleWord:
		return " (preamble)"
	case pocsag.SyncWord:
		return " (sync)"
	case pocsag.IdleWord:
		return " (idle)"
	}
	if word&0x80000000 != 0 {
		return " (message)"
	}
	return " (address)"
}

// writeWAVHeader writes a mono 16-bit PCM header
func writeWAVHeader(w io.Writer, rate, samples int) error {
	dataSize := uint32(samples * 2)
	header := []interface{}{
		[4]byte{'R', 'I', 'F', 'F'},
		36 + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1), // PCM
		uint16(1), // mono
		uint32(rate),
		uint32(rate * 2),
		uint16(2),
		uint16(16),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}
