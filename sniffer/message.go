package sniffer

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Message is one framed bit sequence. Messages are never modified after
// the framer seals them.
type Message struct {
	Bits []uint8 `json:"bits"`
	// Pause is the length in samples of the silence that preceded sealing.
	Pause int64 `json:"pause"`
	// Start is the sample index of the first bit; End is one past the last
	// sample of the final bit.
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (m Message) clone() Message {
	m.Bits = append([]uint8(nil), m.Bits...)
	return m
}

// Formatter renders the bits of a message for display or persistence.
type Formatter interface {
	Format(m Message) string
}

type FormatterFunc func(Message) string

func (f FormatterFunc) Format(m Message) string { return f(m) }

var (
	Bits  Formatter = FormatterFunc(formatBits)
	Hex   Formatter = FormatterFunc(formatHex)
	ASCII Formatter = FormatterFunc(formatASCII)
)

var formatters = map[string]Formatter{"bits": Bits, "hex": Hex, "ascii": ASCII}

func FormatterByName(name string) (Formatter, error) {
	if f, ok := formatters[strings.ToLower(name)]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown view %q", name)
}

func formatBits(m Message) string {
	var sb strings.Builder
	sb.Grow(len(m.Bits))
	for _, b := range m.Bits {
		sb.WriteByte('0' + b)
	}
	return sb.String()
}

// pack packs bits MSB first, zero padding the final partial group of width w.
func pack(bits []uint8, w int) []uint8 {
	out := make([]uint8, 0, (len(bits)+w-1)/w)
	for i := 0; i < len(bits); i += w {
		v := uint8(0)
		for j := 0; j < w; j++ {
			v <<= 1
			if i+j < len(bits) {
				v |= bits[i+j] & 1
			}
		}
		out = append(out, v)
	}
	return out
}

func formatHex(m Message) string {
	var sb strings.Builder
	for _, v := range pack(m.Bits, 4) {
		sb.WriteString(hex.EncodeToString([]byte{v})[1:])
	}
	return sb.String()
}

func formatASCII(m Message) string {
	var sb strings.Builder
	for _, v := range pack(m.Bits, 8) {
		if v >= 0x20 && v < 0x7f {
			sb.WriteByte(v)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}
