package sniffer

import (
	"testing"

	"github.com/chzchzchz/sniffrx/dsp"
)

func ones(n int) []complex64 {
	s := make([]complex64, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func TestLiveBufferAppend(t *testing.T) {
	lb := NewLiveBuffer(0, 0)
	lb.Append(0, ones(10))
	// Overlapping append only adds the new tail.
	lb.Append(5, ones(10))
	if lb.Watermark() != 0 || lb.End() != 15 {
		t.Fatalf("window [%d,%d)", lb.Watermark(), lb.End())
	}
	// Stale append is ignored.
	lb.Append(0, ones(5))
	if lb.End() != 15 {
		t.Fatalf("end moved to %d", lb.End())
	}
	// A gap restarts the window.
	lb.Append(20, dsp.Silence(5))
	if lb.Watermark() != 20 || lb.End() != 25 {
		t.Fatalf("window [%d,%d) after gap", lb.Watermark(), lb.End())
	}
}

func TestLiveBufferCap(t *testing.T) {
	lb := NewLiveBuffer(0, 8)
	lb.Append(0, ones(5))
	lb.Append(5, ones(5))
	if lb.Watermark() != 2 || lb.End() != 10 {
		t.Fatalf("window [%d,%d)", lb.Watermark(), lb.End())
	}
}

func TestLiveBufferWindow(t *testing.T) {
	lb := NewLiveBuffer(100, 0)
	lb.Append(100, cat(ones(5), dsp.Silence(5)))
	lo, mags := lb.Window(0, 1000)
	if lo != 100 || len(mags) != 10 {
		t.Fatalf("got %d, %d mags", lo, len(mags))
	}
	lo, mags = lb.Window(103, 107)
	if lo != 103 || len(mags) != 4 || mags[0] != 1 || mags[3] != 0 {
		t.Fatalf("got %d, %v", lo, mags)
	}
	if _, mags = lb.Window(200, 300); mags != nil {
		t.Fatalf("expected empty window, got %v", mags)
	}
}

func TestLiveBufferRewind(t *testing.T) {
	lb := NewLiveBuffer(0, 0)
	lb.Append(0, ones(10))
	lb.Rewind(10)
	if lb.Watermark() != 10 || lb.End() != 10 {
		t.Fatalf("window [%d,%d)", lb.Watermark(), lb.End())
	}
	lb.Append(10, ones(3))
	if lb.End() != 13 {
		t.Fatalf("end %d", lb.End())
	}
}
