package sniffer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/chzchzchz/sniffrx/radio"
)

func TestArenaReleasesConsumed(t *testing.T) {
	f := NewSliceFeed()
	f.Push(ones(10))
	if got := f.SamplesSince(0); len(got) != 10 {
		t.Fatalf("expected 10 samples, got %d", len(got))
	}
	f.Push(ones(5))
	if got := f.SamplesSince(10); len(got) != 5 {
		t.Fatalf("expected 5 new samples, got %d", len(got))
	}
	if f.Cursor() != 15 {
		t.Fatalf("cursor %d", f.Cursor())
	}
	if got := f.SamplesSince(15); got != nil {
		t.Fatalf("expected nothing, got %d", len(got))
	}
	// Released samples cannot be reread.
	if got := f.SamplesSince(0); got != nil {
		t.Fatalf("reread %d released samples", len(got))
	}
}

func TestSliceFeedErrors(t *testing.T) {
	f := NewSliceFeed()
	f.PushError("a")
	f.PushError("b")
	select {
	case <-f.Notify():
	default:
		t.Fatal("expected notification")
	}
	if errs := f.Errors(); len(errs) != 2 || errs[0] != "a" {
		t.Fatalf("got %v", errs)
	}
	if errs := f.Errors(); len(errs) != 0 {
		t.Fatalf("errors not drained: %v", errs)
	}
}

func bytesSource(b []byte) OpenFunc {
	return func(ctx context.Context) (*radio.IQReader, func(), error) {
		return radio.NewIQReader(bytes.NewReader(b)), func() {}, nil
	}
}

func waitDone(t *testing.T, c <-chan struct{}) {
	select {
	case <-c:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestStreamFeedReadsAll(t *testing.T) {
	f := NewStreamFeed(bytesSource(make([]byte, 2*1000)), 64)
	if err := f.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f.Done())
	if n := len(f.SamplesSince(0)); n != 1000 {
		t.Fatalf("expected 1000 samples, got %d", n)
	}
	if errs := f.Errors(); len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	// Feeds restart after ending.
	if err := f.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f.Done())
	if f.Cursor() != 2000 {
		t.Fatalf("cursor %d", f.Cursor())
	}
}

func TestStreamFeedTransportError(t *testing.T) {
	open := func(ctx context.Context) (*radio.IQReader, func(), error) {
		r := io.MultiReader(bytes.NewReader(make([]byte, 20)), iotest.ErrReader(errors.New("usb gone")))
		return radio.NewIQReader(r), func() {}, nil
	}
	f := NewStreamFeed(open, 4)
	if err := f.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f.Done())
	errs := f.Errors()
	if len(errs) != 1 || !strings.HasPrefix(errs[0], "DeviceTransportError: ") {
		t.Fatalf("got %v", errs)
	}
	if f.Cursor() != 10 {
		t.Fatalf("expected samples before the error, cursor %d", f.Cursor())
	}
}

func TestStreamFeedOpenFails(t *testing.T) {
	open := func(ctx context.Context) (*radio.IQReader, func(), error) {
		return nil, nil, errors.New("no device")
	}
	f := NewStreamFeed(open, 0)
	if err := f.Start(context.TODO()); err == nil {
		t.Fatal("expected error")
	}
	f.Stop()
}

func TestStreamFeedStop(t *testing.T) {
	pr, pw := io.Pipe()
	open := func(ctx context.Context) (*radio.IQReader, func(), error) {
		return radio.NewIQReader(pr), func() { pr.Close() }, nil
	}
	f := NewStreamFeed(open, 4)
	if err := f.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if err := f.Start(context.TODO()); err == nil {
		t.Fatal("expected error starting a running feed")
	}
	go pw.Write(make([]byte, 8))
	f.Stop()
	waitDone(t, f.Done())
	f.Stop()
	if errs := f.Errors(); len(errs) != 0 {
		t.Fatalf("stop reported errors %v", errs)
	}
}

func TestStreamFeedStages(t *testing.T) {
	double := func(ctx context.Context, in <-chan []complex64) <-chan []complex64 {
		out := make(chan []complex64)
		go func() {
			defer close(out)
			for samps := range in {
				out <- append(samps, samps...)
			}
		}()
		return out
	}
	f := NewStreamFeed(bytesSource(make([]byte, 2*100)), 10, double)
	if err := f.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f.Done())
	if f.Cursor() != 200 {
		t.Fatalf("expected stage output, cursor %d", f.Cursor())
	}
}
