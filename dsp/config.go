package dsp

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrBadConfig = errors.New("bad demodulation config")

type Modulation int

const (
	OOK Modulation = iota
	ASK
	FSK
	PSK
)

var modulationNames = [...]string{"OOK", "ASK", "FSK", "PSK"}

func (m Modulation) String() string {
	if m < 0 || int(m) >= len(modulationNames) {
		return fmt.Sprintf("Modulation(%d)", int(m))
	}
	return modulationNames[m]
}

func (m Modulation) Valid() bool { return m >= 0 && int(m) < len(modulationNames) }

// ParseModulation accepts a modulation name, case insensitive.
func ParseModulation(s string) (Modulation, error) {
	for i, n := range modulationNames {
		if strings.EqualFold(n, strings.TrimSpace(s)) {
			return Modulation(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown modulation %q", ErrBadConfig, s)
}

func (m Modulation) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Modulation) UnmarshalText(b []byte) (err error) {
	*m, err = ParseModulation(string(b))
	return err
}

// Config is a snapshot of the tunable demodulation parameters. A Config is
// never modified once handed to the engine; replace it instead.
type Config struct {
	// BitLength is the number of samples per bit.
	BitLength int `json:"bit_length"`
	// Center is the decision threshold of the discriminator.
	Center float64 `json:"center"`
	// Noise is the minimum mean magnitude of a sub-window to count as signal.
	Noise float64 `json:"noise"`
	// Tolerance is the number of consecutive silent sub-windows permitted
	// inside a message before a pause is declared.
	Tolerance  int        `json:"tolerance"`
	Modulation Modulation `json:"modulation"`
}

func DefaultConfig() Config {
	return Config{BitLength: 100, Center: 0, Noise: 0.1, Tolerance: 5, Modulation: ASK}
}

func (c Config) Validate() error {
	switch {
	case c.BitLength <= 0:
		return fmt.Errorf("%w: bit length %d must be positive", ErrBadConfig, c.BitLength)
	case c.Tolerance < 0:
		return fmt.Errorf("%w: tolerance %d must not be negative", ErrBadConfig, c.Tolerance)
	case math.IsNaN(c.Noise) || math.IsInf(c.Noise, 0) || c.Noise < 0:
		return fmt.Errorf("%w: noise threshold %v", ErrBadConfig, c.Noise)
	case math.IsNaN(c.Center) || math.IsInf(c.Center, 0):
		return fmt.Errorf("%w: center %v", ErrBadConfig, c.Center)
	case !c.Modulation.Valid():
		return fmt.Errorf("%w: %v", ErrBadConfig, c.Modulation)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%v bitlen=%d center=%g noise=%g tolerance=%d",
		c.Modulation, c.BitLength, c.Center, c.Noise, c.Tolerance)
}
