package sniffer

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/chzchzchz/sniffrx/dsp"
)

var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrRunning           = errors.New("engine already running")
)

type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	default:
		return errors.Errorf("unknown state %q", b)
	}
	return nil
}

type Options struct {
	// LiveMaxSamples caps the live buffer between rewinds; zero disables.
	LiveMaxSamples int
	// SinkQueue is how many sealed messages may wait on a slow sink before
	// new ones are dropped. Defaults to 1024.
	SinkQueue int
	// SinkDrainTimeout bounds how long removing a sink, or stopping, waits
	// for queued messages. Defaults to 5s.
	SinkDrainTimeout time.Duration
}

// Engine drives a feed through the demodulator and framer. One goroutine
// (Start) or caller (Poll) produces; any number of readers may query the
// log and live buffer or Subscribe to events.
type Engine struct {
	feed  Feed
	cfg   atomic.Pointer[dsp.Config]
	state atomic.Int32

	// pollMu serializes drive cycles and owns framer.
	pollMu sync.Mutex
	framer *Framer
	cursor atomic.Int64

	msgs []Message
	mu   sync.RWMutex

	opts   Options
	sink   *sinkWriter
	sinkMu sync.Mutex

	live   *LiveBuffer
	events *broker

	cancel context.CancelFunc
	donec  chan struct{}
	runMu  sync.Mutex
}

func NewEngine(feed Feed, cfg dsp.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.SinkQueue <= 0 {
		opts.SinkQueue = defaultSinkQueue
	}
	if opts.SinkDrainTimeout <= 0 {
		opts.SinkDrainTimeout = defaultSinkDrainTimeout
	}
	e := &Engine{
		feed:   feed,
		opts:   opts,
		framer: NewFramer(0),
		live:   NewLiveBuffer(0, opts.LiveMaxSamples),
		events: newBroker(),
	}
	e.cfg.Store(&cfg)
	return e, nil
}

func (e *Engine) State() State { return State(e.state.Load()) }

// Cursor is the number of feed samples consumed.
func (e *Engine) Cursor() int64 { return e.cursor.Load() }

func (e *Engine) Config() dsp.Config { return *e.cfg.Load() }

// Reconfigure swaps the configuration used for sub-windows decoded from the
// next drive cycle on. Messages already sealed are unaffected.
func (e *Engine) Reconfigure(cfg dsp.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg.Store(&cfg)
	log.Printf("[sniffer] reconfigured: %v", cfg)
	return nil
}

// Start begins acquisition. On failure the engine stays idle.
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.State() == Running {
		return ErrRunning
	}
	if e.donec != nil {
		// Previous run ended on its own; reap it.
		e.cancel()
		<-e.donec
	}
	if err := e.feed.Start(ctx); err != nil {
		return errors.Wrapf(ErrDeviceUnavailable, "%v", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	e.cancel, e.donec = cancel, make(chan struct{})
	e.state.Store(int32(Running))
	go e.run(cctx, e.donec)
	log.Printf("[sniffer] started: %v", e.Config())
	return nil
}

// Stop ends acquisition, waiting for an in-flight cycle to finish, seals
// any partial message and closes the sink. Stopping an idle engine is a
// no-op.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.donec == nil {
		return
	}
	e.cancel()
	<-e.donec
	e.cancel, e.donec = nil, nil
}

// Done is closed once the current run has fully stopped, whether by Stop,
// cancellation or the feed ending. It is closed already when idle.
func (e *Engine) Done() <-chan struct{} {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.donec == nil {
		return closedc
	}
	return e.donec
}

var closedc = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func (e *Engine) run(ctx context.Context, donec chan struct{}) {
	defer close(donec)
	feedDone := e.feed.Done()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-feedDone:
			log.Printf("[sniffer] feed closed at sample %d", e.Cursor())
			done = true
		case <-e.feed.Notify():
			e.Poll()
		}
	}
	e.feed.Stop()
	e.pollMu.Lock()
	e.poll(true)
	e.pollMu.Unlock()
	e.SetOutputSink(nil)
	e.state.Store(int32(Idle))
	log.Printf("[sniffer] stopped at sample %d; %d messages", e.Cursor(), e.MessageCount())
}

// Poll runs one drive cycle over everything the feed produced since the
// last cycle and returns the number of messages sealed.
func (e *Engine) Poll() int {
	e.pollMu.Lock()
	defer e.pollMu.Unlock()
	return e.poll(false)
}

func (e *Engine) poll(flush bool) int {
	cfg := *e.cfg.Load()
	start := e.cursor.Load()
	samps := e.feed.SamplesSince(start)

	msgs, err := e.framer.Feed(cfg, start, samps)
	if err != nil {
		e.reportError(err.Error())
		e.framer = NewFramer(start + int64(len(samps)))
	}
	if flush {
		msgs = append(msgs, e.framer.Flush()...)
	}
	e.cursor.Store(start + int64(len(samps)))
	e.live.Append(start, samps)

	for _, txt := range e.feed.Errors() {
		e.reportError(txt)
	}
	if len(msgs) == 0 {
		return 0
	}

	e.mu.Lock()
	from := len(e.msgs)
	e.msgs = append(e.msgs, msgs...)
	e.events.publish(Event{Kind: NewMessages, From: from})
	e.mu.Unlock()

	e.writeSink(msgs)
	return len(msgs)
}

func (e *Engine) writeSink(msgs []Message) {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	if e.sink == nil {
		return
	}
	for _, m := range msgs {
		e.sink.enqueue(m.clone())
	}
}

func (e *Engine) reportError(txt string) {
	log.Printf("[sniffer] %s", txt)
	e.events.publish(Event{Kind: Error, Text: txt})
}

// SetOutputSink makes every subsequently sealed message go to s as well as
// the log. Writes happen off the drive loop. A nil s removes the sink. A
// replaced sink gets its queued messages, bounded by SinkDrainTimeout, and
// is then closed.
func (e *Engine) SetOutputSink(s Sink) {
	e.sinkMu.Lock()
	old := e.sink
	e.sink = nil
	if s != nil {
		e.sink = newSinkWriter(s, e.opts.SinkQueue, e.reportError)
	}
	e.sinkMu.Unlock()
	if old != nil {
		old.close(e.opts.SinkDrainTimeout)
	}
}

// SinkActive reports whether messages are persisted as they are sealed, in
// which case consumers should not offer a one-shot export of the log.
func (e *Engine) SinkActive() bool {
	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	return e.sink != nil
}

// Clear empties the log and the live window without touching the cursor.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.msgs = nil
	e.live.Rewind(e.cursor.Load())
	e.events.publish(Event{Kind: Redraw})
	e.mu.Unlock()
}

// Rewind drops the retained live window.
func (e *Engine) Rewind() {
	e.mu.Lock()
	e.live.Rewind(e.cursor.Load())
	e.events.publish(Event{Kind: Redraw})
	e.mu.Unlock()
}

// RunRewinder rewinds the live buffer every interval while running.
func (e *Engine) RunRewinder(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if e.State() == Running {
				e.Rewind()
			}
		}
	}
}

func (e *Engine) MessageCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.msgs)
}

// Messages copies the log entries in [from, to), clamped to the log.
func (e *Engine) Messages(from, to int) []Message {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	if to > len(e.msgs) {
		to = len(e.msgs)
	}
	if from >= to {
		return nil
	}
	out := make([]Message, 0, to-from)
	for _, m := range e.msgs[from:to] {
		out = append(out, m.clone())
	}
	return out
}

// Render formats log entries in [from, to).
func (e *Engine) Render(f Formatter, from, to int) []string {
	msgs := e.Messages(from, to)
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = f.Format(m)
	}
	return out
}

// LiveWindow returns the retained magnitudes intersecting [begin, end).
func (e *Engine) LiveWindow(begin, end int64) (int64, []float32) {
	return e.live.Window(begin, end)
}

func (e *Engine) Live() *LiveBuffer { return e.live }

func (e *Engine) Subscribe() *Subscription { return e.events.subscribe() }
