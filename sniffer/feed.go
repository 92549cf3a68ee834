package sniffer

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/chzchzchz/sniffrx/radio"
)

// Feed is a growing, indexable sample source.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
	// SamplesSince copies the samples produced at or after cursor. Samples
	// before cursor are released and may not be requested again.
	SamplesSince(cursor int64) []complex64
	// Cursor is the number of samples produced so far.
	Cursor() int64
	// Errors drains transport error text without blocking.
	Errors() []string
	// Notify is signaled when new samples or errors are available.
	Notify() <-chan struct{}
	// Done is closed once the feed will produce nothing more.
	Done() <-chan struct{}
}

// arena is an append-only sample sequence that forgets what its single
// reader has already consumed.
type arena struct {
	base    int64
	buf     []complex64
	errs    []string
	notifyc chan struct{}
	mu      sync.Mutex
}

func newArena() *arena { return &arena{notifyc: make(chan struct{}, 1)} }

func (a *arena) push(samps []complex64) {
	a.mu.Lock()
	a.buf = append(a.buf, samps...)
	a.mu.Unlock()
	a.notify()
}

func (a *arena) pushError(txt string) {
	a.mu.Lock()
	a.errs = append(a.errs, txt)
	a.mu.Unlock()
	a.notify()
}

func (a *arena) notify() {
	select {
	case a.notifyc <- struct{}{}:
	default:
	}
}

func (a *arena) SamplesSince(cursor int64) []complex64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	off := cursor - a.base
	if off < 0 {
		off = 0
	}
	if off > int64(len(a.buf)) {
		off = int64(len(a.buf))
	}
	a.buf = a.buf[off:]
	a.base += off
	if len(a.buf) == 0 {
		// Let the backing array go.
		a.buf = nil
		return nil
	}
	return append([]complex64(nil), a.buf...)
}

func (a *arena) Cursor() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base + int64(len(a.buf))
}

func (a *arena) Errors() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	errs := a.errs
	a.errs = nil
	return errs
}

func (a *arena) Notify() <-chan struct{} { return a.notifyc }

// SliceFeed is a feed whose samples are pushed by the caller.
type SliceFeed struct {
	*arena
	// StartErr, if set, is returned by Start.
	StartErr error

	donec chan struct{}
	once  sync.Once
}

func NewSliceFeed() *SliceFeed {
	return &SliceFeed{arena: newArena(), donec: make(chan struct{})}
}

func (f *SliceFeed) Start(ctx context.Context) error { return f.StartErr }
func (f *SliceFeed) Stop()                           {}
func (f *SliceFeed) Push(samps []complex64)          { f.push(samps) }
func (f *SliceFeed) PushError(txt string)            { f.pushError(txt) }
func (f *SliceFeed) Done() <-chan struct{}           { return f.donec }

// Close marks the end of the stream.
func (f *SliceFeed) Close() { f.once.Do(func() { close(f.donec) }) }

// OpenFunc opens an I/Q source; the returned closer must unblock any
// pending reads.
type OpenFunc func(ctx context.Context) (*radio.IQReader, func(), error)

// Stage transforms a sample stream; it must close its output once its
// input closes or ctx is done.
type Stage func(ctx context.Context, in <-chan []complex64) <-chan []complex64

// StreamFeed pulls batches from an I/Q reader, through any stages, into an
// arena.
type StreamFeed struct {
	*arena
	open   OpenFunc
	batch  int
	stages []Stage

	cancel context.CancelFunc
	closer func()
	donec  chan struct{}
	mu     sync.Mutex
}

func NewStreamFeed(open OpenFunc, batch int, stages ...Stage) *StreamFeed {
	if batch <= 0 {
		batch = 16384
	}
	donec := make(chan struct{})
	close(donec)
	return &StreamFeed{arena: newArena(), open: open, batch: batch, stages: stages, donec: donec}
}

var errFeedRunning = errors.New("feed already running")

func (f *StreamFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.donec:
	default:
		return errFeedRunning
	}
	cctx, cancel := context.WithCancel(ctx)
	iqr, closer, err := f.open(cctx)
	if err != nil {
		cancel()
		return errors.Wrap(err, "open feed")
	}
	var once sync.Once
	f.cancel, f.closer = cancel, func() { once.Do(closer) }
	f.donec = make(chan struct{})
	go f.read(cctx, iqr, f.closer, f.donec)
	return nil
}

func (f *StreamFeed) read(ctx context.Context, iqr *radio.IQReader, closer func(), donec chan struct{}) {
	defer func() {
		closer()
		close(donec)
		f.notify()
	}()
	sampc := iqr.BatchStream64(ctx, f.batch, 0)
	for _, st := range f.stages {
		sampc = st(ctx, sampc)
	}
	for samps := range sampc {
		f.push(samps)
	}
	if ctx.Err() != nil {
		return
	}
	if err := iqr.Err(); err != nil && err != io.EOF {
		f.pushError("DeviceTransportError: " + err.Error())
	}
}

func (f *StreamFeed) Stop() {
	f.mu.Lock()
	cancel, closer, donec := f.cancel, f.closer, f.donec
	f.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	closer()
	<-donec
}

func (f *StreamFeed) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.donec
}
