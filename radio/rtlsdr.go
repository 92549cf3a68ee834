package radio

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"

	"github.com/kr/pty"
)

// LocalRTL is an rtl_tcp process serving one dongle on the loopback
// interface, plus the connection to it.
type LocalRTL struct {
	*RTLTCPSDR
	cmd  *exec.Cmd
	fpty *os.File
	// device serial number or device index
	serialNumber string

	closeOnce sync.Once
	closeErr  error
}

// StartLocalRTL spawns rtl_tcp for the given device under a pty and connects
// to it once it listens.
func StartLocalRTL(ctx context.Context, ser string, port int, t Tuning) (*LocalRTL, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	cmd := exec.CommandContext(ctx,
		"rtl_tcp", "-a", "127.0.0.1", "-p", fmt.Sprint(port), "-d", ser,
		"-s", fmt.Sprint(t.Width), "-f", fmt.Sprint(t.Center))
	fpty, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	// rtl_tcp chatter goes to the log; the tty keeps it line buffered.
	go io.Copy(log.Writer(), fpty)
	l := &LocalRTL{cmd: cmd, fpty: fpty, serialNumber: ser}
	if l.RTLTCPSDR, err = DialRTLTCP(ctx, addr); err != nil {
		l.Close()
		return nil, err
	}
	if err := Tune(l.RTLTCPSDR, t); err != nil {
		l.Close()
		return nil, err
	}
	log.Printf("[rtl %s] tuned %+v", ser, t.HzBand)
	return l, nil
}

func (l *LocalRTL) Serial() string { return l.serialNumber }

func (l *LocalRTL) Close() error {
	l.closeOnce.Do(func() {
		if l.RTLTCPSDR != nil {
			l.RTLTCPSDR.Close()
		}
		if l.cmd.Process != nil {
			l.cmd.Process.Kill()
		}
		l.fpty.Close()
		l.closeErr = l.cmd.Wait()
	})
	return l.closeErr
}
