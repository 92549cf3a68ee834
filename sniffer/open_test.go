package sniffer

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/chzchzchz/sniffrx/radio"
)

// idleReader blocks until unblock is closed, like a quiet stdin.
type idleReader struct{ unblock chan struct{} }

func (r *idleReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}

func TestDetachReaderCloseUnblocks(t *testing.T) {
	src := &idleReader{unblock: make(chan struct{})}
	defer close(src.unblock)
	r, closer := detachReader(src)
	errc := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 16))
		errc <- err
	}()
	closer()
	select {
	case err := <-errc:
		if err != io.ErrClosedPipe {
			t.Fatalf("expected closed pipe, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read still blocked after close")
	}
}

func TestStreamFeedStopsIdleSource(t *testing.T) {
	src := &idleReader{unblock: make(chan struct{})}
	defer close(src.unblock)
	open := func(ctx context.Context) (*radio.IQReader, func(), error) {
		r, closer := detachReader(src)
		return radio.NewIQReader(r), closer, nil
	}
	f := NewStreamFeed(open, 4)
	if err := f.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	stopped := make(chan struct{})
	go func() {
		f.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop blocked on idle source")
	}
	if errs := f.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
}

func TestDetachReaderPassesData(t *testing.T) {
	r, closer := detachReader(strings.NewReader("abc"))
	defer closer()
	b, err := io.ReadAll(r)
	if err != nil || string(b) != "abc" {
		t.Fatalf("got %q, %v", b, err)
	}
}
