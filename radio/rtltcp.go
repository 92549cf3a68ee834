package radio

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

var dongleMagic = [...]byte{'R', 'T', 'L', '0'}

// RTLTCPSDR contains dongle information and an embedded tcp connection to the spectrum server.
type RTLTCPSDR struct {
	net.Conn
	Info DongleInfo
}

// DialRTLTCP connects to an rtl_tcp server at addr ("127.0.0.1:1234"),
// retrying until ctx expires. The caller closes the connection.
func DialRTLTCP(ctx context.Context, addr string) (*RTLTCPSDR, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			sdr := &RTLTCPSDR{Conn: conn}
			if err = sdr.handshake(); err != nil {
				conn.Close()
				return nil, err
			}
			return sdr, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("error connecting to spectrum server: %v", err)
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (sdr *RTLTCPSDR) handshake() error {
	if err := binary.Read(sdr.Conn, binary.BigEndian, &sdr.Info); err != nil {
		return fmt.Errorf("error getting dongle information: %v", err)
	}
	if !sdr.Info.Valid() {
		return fmt.Errorf("bad magic number: %q", sdr.Info.Magic)
	}
	return nil
}

// Reader streams the u8 I/Q samples following the handshake.
func (sdr *RTLTCPSDR) Reader() *IQReader { return NewIQReader(sdr.Conn) }

// DongleInfo is data pulled from the RTLTCPSDR on connection.
type DongleInfo struct {
	Magic     [4]byte
	Tuner     uint32
	GainCount uint32 // Useful for setting gain by index
}

// Valid checks the received magic number matches the expected byte string 'RTL0'.
func (d DongleInfo) Valid() bool {
	return d.Magic == dongleMagic
}

type command struct {
	command   uint8
	Parameter uint32
}

// Command constants defined in rtl_tcp.c
const (
	centerFreq = iota + 1
	sampleRate
	tunerGainMode
	tunerGain
	freqCorrection
	tunerIfGain
	testMode
	agcMode
)

func (sdr *RTLTCPSDR) do(cmd uint8, v uint32) error {
	return binary.Write(sdr.Conn, binary.BigEndian, command{cmd, v})
}

// Set the center frequency in Hz.
func (sdr *RTLTCPSDR) SetCenterFreq(freq uint32) error {
	if freq < minFreqHz || freq > maxFreqHz {
		return ErrFrequencyOutOfRange
	}
	return sdr.do(centerFreq, freq)
}

// Set the sample rate in Hz.
func (sdr *RTLTCPSDR) SetSampleRate(rate uint32) error {
	if !isValidRate(rate) {
		return ErrRateOutOfRange
	}
	return sdr.do(sampleRate, rate)
}

// Set gain in tenths of dB. (197 => 19.7dB)
func (sdr *RTLTCPSDR) SetGain(gain uint32) error {
	return sdr.do(tunerGain, gain)
}

// Set the Tuner AGC, true to enable.
func (sdr *RTLTCPSDR) SetGainMode(state bool) error {
	if state {
		return sdr.do(tunerGainMode, 0)
	}
	return sdr.do(tunerGainMode, 1)
}

// Set frequency correction in ppm.
func (sdr *RTLTCPSDR) SetFreqCorrection(ppm uint32) error {
	return sdr.do(freqCorrection, ppm)
}

// Set RTL AGC mode, true for enabled.
func (sdr *RTLTCPSDR) SetAGCMode(state bool) error {
	if state {
		return sdr.do(agcMode, 1)
	}
	return sdr.do(agcMode, 0)
}
