package sniffer

import (
	"testing"

	"github.com/chzchzchz/sniffrx/dsp"
)

func TestFormatters(t *testing.T) {
	tests := []struct {
		f    Formatter
		bits string
		out  string
	}{
		{Bits, "1011", "1011"},
		{Bits, "", ""},
		{Hex, "10110001", "b1"},
		{Hex, "101100011", "b18"},
		{ASCII, "0100000101000010", "AB"},
		{ASCII, "00000001", "."},
		{ASCII, "0100001", "B"},
	}
	for i, tt := range tests {
		m := Message{Bits: dsp.ParseBits(tt.bits)}
		if got := tt.f.Format(m); got != tt.out {
			t.Errorf("%d: expected %q, got %q", i, tt.out, got)
		}
	}
}

func TestFormatterByName(t *testing.T) {
	for _, name := range []string{"bits", "HEX", "Ascii"} {
		if _, err := FormatterByName(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := FormatterByName("morse"); err == nil {
		t.Fatal("expected error for unknown view")
	}
}

func TestMessageCloneIsolated(t *testing.T) {
	m := Message{Bits: []uint8{1, 0}}
	c := m.clone()
	c.Bits[0] = 0
	if m.Bits[0] != 1 {
		t.Fatal("clone shares bits")
	}
}
