package dsp

import (
	"context"
	"math"
)

// MixDown shifts sigc down by mixHz at a sample rate of sampHz.
func MixDown(mixHz float64, sampHz int, sigc <-chan []complex64) <-chan []complex64 {
	return MixDownCtx(context.TODO(), mixHz, sampHz, sigc)
}

func MixDownCtx(ctx context.Context, mixHz float64, sampHz int, sigc <-chan []complex64) <-chan []complex64 {
	outc := make(chan []complex64, 1)
	go func() {
		defer close(outc)
		radiansPerSample := mixHz * (2.0 * math.Pi / float64(sampHz))
		phase := 0.0
		for samp := range sigc {
			outsamp := make([]complex64, len(samp))
			for i, v := range samp {
				s, c := math.Sincos(phase)
				outsamp[i] = v * complex64(complex(c, -s))
				phase = math.Mod(phase+radiansPerSample, 2*math.Pi)
			}
			select {
			case outc <- outsamp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return outc
}

// DCBlockerCtx removes the DC component with a one pole high pass filter;
// pole closer to 1 means a narrower notch and a longer settling time.
func DCBlockerCtx(ctx context.Context, pole float64, sigc <-chan []complex64) <-chan []complex64 {
	outc := make(chan []complex64, 1)
	go func() {
		defer close(outc)
		var xprev, yprev complex128
		for samp := range sigc {
			outsamp := make([]complex64, len(samp))
			for i, v := range samp {
				x := complex128(v)
				y := x - xprev + complex(pole, 0)*yprev
				xprev, yprev = x, y
				outsamp[i] = complex64(y)
			}
			select {
			case outc <- outsamp:
			case <-ctx.Done():
				return
			}
		}
	}()
	return outc
}
