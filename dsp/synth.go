package dsp

import "math"

// Offsets used by Modulate to place symbols on either side of Center for
// the angle based modulations.
const (
	fskDeviation = 0.2 // radians/sample
	pskDeviation = 0.5 // radians
)

// Modulate produces BitLength samples per bit such that Demodulate with the
// same cfg recovers bits. Amplitude modulations put ones at amp and zeros
// halfway between the noise threshold and Center; angle modulations keep a
// constant amp.
func Modulate(cfg Config, bits []uint8, amp float64) []complex64 {
	out := make([]complex64, 0, len(bits)*cfg.BitLength)
	low := (cfg.Noise + cfg.Center) / 2
	ph := 0.0
	for _, b := range bits {
		for i := 0; i < cfg.BitLength; i++ {
			var s complex128
			switch cfg.Modulation {
			case OOK, ASK:
				if b != 0 {
					s = complex(amp, 0)
				} else {
					s = complex(low, 0)
				}
			case FSK:
				f := cfg.Center - fskDeviation
				if b != 0 {
					f = cfg.Center + fskDeviation
				}
				ph = math.Mod(ph+f, 2*math.Pi)
				s = complex(amp*math.Cos(ph), amp*math.Sin(ph))
			case PSK:
				p := cfg.Center - pskDeviation
				if b != 0 {
					p = cfg.Center + pskDeviation
				}
				s = complex(amp*math.Cos(p), amp*math.Sin(p))
			}
			out = append(out, complex64(s))
		}
	}
	return out
}

// Silence returns n zero samples.
func Silence(n int) []complex64 { return make([]complex64, n) }

// ParseBits reads a string of '0' and '1' characters, ignoring anything else.
func ParseBits(s string) []uint8 {
	bits := make([]uint8, 0, len(s))
	for _, c := range s {
		switch c {
		case '0':
			bits = append(bits, 0)
		case '1':
			bits = append(bits, 1)
		}
	}
	return bits
}
