package sniffer

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/chzchzchz/sniffrx/radio"
	"github.com/chzchzchz/sniffrx/radio/wav"
)

const defaultRTLTCPPort = 1234

// OpenSource returns an OpenFunc for path, which is one of
//
//	-, -.iq8, -.wav         stdin
//	file.iq8, file.wav      a recording
//	rtltcp://host:port      a running rtl_tcp server
//	rtl://serial?port=N     a local dongle served by a spawned rtl_tcp
//
// Network sources are tuned with t; recordings ignore it.
func OpenSource(path string, t radio.Tuning) OpenFunc {
	if u, err := url.Parse(path); err == nil {
		switch u.Scheme {
		case "rtltcp":
			return openRTLTCP(u.Host, t)
		case "rtl":
			return openLocalRTL(*u, t)
		}
	}
	return func(ctx context.Context) (*radio.IQReader, func(), error) {
		r, closer, err := openInput(path)
		if err != nil {
			return nil, nil, err
		}
		if strings.HasSuffix(path, ".wav") {
			wr, err := wav.NewIQ8Reader(r)
			if err != nil {
				closer()
				return nil, nil, err
			}
			log.Printf("[open] %s: %d Hz I/Q", path, wr.SampleRate())
			r = wr
		}
		return radio.NewIQReader(r), closer, nil
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "-.wav" || path == "-.iq8" {
		r, closer := detachReader(os.Stdin)
		return r, closer, nil
	}
	fin, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return fin, func() { fin.Close() }, nil
}

// detachReader serves r through a pipe so closing unblocks readers even
// when r itself cannot be interrupted. The copier exits on r's next read.
func detachReader(r io.Reader) (io.Reader, func()) {
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(pw, r)
		pw.CloseWithError(err)
	}()
	return pr, func() { pr.Close() }
}

func openRTLTCP(addr string, t radio.Tuning) OpenFunc {
	return func(ctx context.Context) (*radio.IQReader, func(), error) {
		if addr == "" {
			return nil, nil, fmt.Errorf("no rtl_tcp address")
		}
		sdr, err := radio.DialRTLTCP(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		if t.Center != 0 {
			if err := radio.Tune(sdr, t); err != nil {
				sdr.Close()
				return nil, nil, err
			}
		}
		log.Printf("[open] connected to %s (tuner %d)", addr, sdr.Info.Tuner)
		return sdr.Reader(), func() { sdr.Close() }, nil
	}
}

func openLocalRTL(u url.URL, t radio.Tuning) OpenFunc {
	ser := u.Host
	if ser == "" {
		// rtl:serial
		ser = u.Opaque
	}
	port := defaultRTLTCPPort
	if p := u.Query().Get("port"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return func(ctx context.Context) (*radio.IQReader, func(), error) {
		if ser == "" {
			return nil, nil, fmt.Errorf("no rtl device defined in url %s", u.String())
		}
		l, err := radio.StartLocalRTL(ctx, ser, port, t)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("[open] rtl_tcp for device %s on port %d", l.Serial(), port)
		return l.Reader(), func() { l.Close() }, nil
	}
}

// OpenIQW opens an I/Q output; ".wav" paths get an 8-bit two-channel
// header for the given sample rate.
func OpenIQW(path string, rate int) (*radio.IQWriter, func(), error) {
	w, closer, err := openOutput(path)
	if err != nil {
		return nil, nil, err
	}
	if strings.HasSuffix(path, ".wav") {
		ww, err := wav.NewIQ8Writer(w, rate)
		if err != nil {
			closer()
			return nil, nil, err
		}
		wavCloser := func() {
			ww.Close()
			closer()
		}
		return radio.NewIQWriter(ww), wavCloser, nil
	}
	return radio.NewIQWriter(w), closer, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "-" || path == "-.wav" || path == "-.iq8" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
