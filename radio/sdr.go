package radio

import (
	"errors"
)

var ErrRateOutOfRange = errors.New("sample rate out of range")
var ErrFrequencyOutOfRange = errors.New("frequency out of range")

var minFreqHz = uint32(25000000)
var maxFreqHz = uint32(1750000000)

func isValidRate(rate uint32) bool {
	return !((rate <= 225000) || (rate > 3200000) ||
		((rate > 300000) && (rate <= 900000)))
}

// Tuning is applied to an rtl_tcp connection before streaming.
type Tuning struct {
	HzBand
	// Gain in tenths of dB; zero selects automatic gain.
	Gain uint32
	PPM  uint32
	AGC  bool
}

func (t Tuning) Validate() error {
	if t.Center < uint64(minFreqHz) || t.Center > uint64(maxFreqHz) {
		return ErrFrequencyOutOfRange
	}
	if !isValidRate(uint32(t.Width)) {
		return ErrRateOutOfRange
	}
	return nil
}

// Tune applies t to sdr.
func Tune(sdr *RTLTCPSDR, t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := sdr.SetSampleRate(uint32(t.Width)); err != nil {
		return err
	}
	if err := sdr.SetCenterFreq(uint32(t.Center)); err != nil {
		return err
	}
	if t.PPM != 0 {
		if err := sdr.SetFreqCorrection(t.PPM); err != nil {
			return err
		}
	}
	if err := sdr.SetAGCMode(t.AGC); err != nil {
		return err
	}
	if err := sdr.SetGainMode(t.Gain == 0); err != nil {
		return err
	}
	if t.Gain != 0 {
		return sdr.SetGain(t.Gain)
	}
	return nil
}
