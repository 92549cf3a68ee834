package dsp

import (
	"context"
	"math"
	"math/cmplx"
	"testing"
)

func feed(batches ...[]complex64) <-chan []complex64 {
	c := make(chan []complex64, len(batches))
	for _, b := range batches {
		c <- b
	}
	close(c)
	return c
}

func TestMixDownTone(t *testing.T) {
	const sampHz, toneHz = 1000000, 25000
	w := 2 * math.Pi * toneHz / sampHz
	tone := make([]complex64, 4096)
	for i := range tone {
		tone[i] = complex64(cmplx.Exp(complex(0, w*float64(i))))
	}
	n := 0
	for out := range MixDown(toneHz, sampHz, feed(tone[:1000], tone[1000:])) {
		for _, v := range out {
			if d := cmplx.Abs(complex128(v) - 1); d > 1e-3 {
				t.Fatalf("sample %d: %v not at DC", n, v)
			}
			n++
		}
	}
	if n != len(tone) {
		t.Fatalf("expected %d samples, got %d", len(tone), n)
	}
}

func TestDCBlocker(t *testing.T) {
	dc := make([]complex64, 2000)
	for i := range dc {
		dc[i] = complex(0.5, -0.25)
	}
	var last complex64
	for out := range DCBlockerCtx(context.TODO(), 0.99, feed(dc)) {
		last = out[len(out)-1]
	}
	if cmplx.Abs(complex128(last)) > 1e-3 {
		t.Fatalf("DC not removed: %v", last)
	}
}
