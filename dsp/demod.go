package dsp

import (
	"math"
	"math/cmplx"
)

// Symbol is the decision for one BitLength sub-window.
type Symbol struct {
	Bit uint8
	// Signal is false when the sub-window fell below the noise threshold;
	// Bit is meaningless in that case.
	Signal bool
	// Level is the mean sample magnitude of the sub-window.
	Level float64
}

// Demodulate decides one symbol per complete BitLength sub-window of samps.
// Trailing samples that do not fill a sub-window are not decoded; used
// reports how many samples were consumed so the caller can hold back the
// rest until more arrive.
func Demodulate(cfg Config, samps []complex64) (syms []Symbol, used int) {
	n := cfg.BitLength
	if n <= 0 {
		return nil, 0
	}
	windows := len(samps) / n
	syms = make([]Symbol, 0, windows)
	for w := 0; w < windows; w++ {
		syms = append(syms, decide(cfg, samps[w*n:(w+1)*n]))
	}
	return syms, windows * n
}

func decide(cfg Config, win []complex64) Symbol {
	lvl := meanMagnitude(win)
	if lvl < cfg.Noise {
		return Symbol{Level: lvl}
	}
	var v float64
	switch cfg.Modulation {
	case OOK:
		v = onFraction(win, cfg.Center)
		// Majority vote; compare against one half rather than Center.
		return Symbol{Bit: bit(v >= 0.5), Signal: true, Level: lvl}
	case ASK:
		v = lvl
	case FSK:
		v = meanFrequency(win)
	case PSK:
		v = phase(win)
	}
	return Symbol{Bit: bit(v >= cfg.Center), Signal: true, Level: lvl}
}

func bit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func magnitude(s complex64) float64 { return cmplx.Abs(complex128(s)) }

func meanMagnitude(win []complex64) float64 {
	sum := 0.0
	for _, s := range win {
		sum += magnitude(s)
	}
	return sum / float64(len(win))
}

func onFraction(win []complex64, center float64) float64 {
	on := 0
	for _, s := range win {
		if magnitude(s) >= center {
			on++
		}
	}
	return float64(on) / float64(len(win))
}

// meanFrequency is the average phase advance between consecutive samples,
// in radians per sample.
func meanFrequency(win []complex64) float64 {
	if len(win) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(win); i++ {
		d := complex128(win[i]) * cmplx.Conj(complex128(win[i-1]))
		sum += math.Atan2(imag(d), real(d))
	}
	return sum / float64(len(win)-1)
}

func phase(win []complex64) float64 {
	var sum complex128
	for _, s := range win {
		sum += complex128(s)
	}
	return math.Atan2(imag(sum), real(sum))
}

// Magnitudes maps samples to their magnitudes for display.
func Magnitudes(samps []complex64) []float32 {
	out := make([]float32, len(samps))
	for i, s := range samps {
		out[i] = float32(magnitude(s))
	}
	return out
}
