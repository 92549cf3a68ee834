package sniffer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chzchzchz/sniffrx/dsp"
)

type memSink struct {
	msgs   []Message
	err    error
	closed bool
	mu     sync.Mutex
}

func (s *memSink) WriteMessage(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return s.err
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *SliceFeed) {
	f := NewSliceFeed()
	e, err := NewEngine(f, testConfig(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	return e, f
}

func waitIdle(t *testing.T, e *Engine) {
	deadline := time.Now().Add(5 * time.Second)
	for e.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatal("engine did not stop")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BitLength = 0
	if _, err := NewEngine(NewSliceFeed(), cfg, Options{}); !errors.Is(err, dsp.ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
	e, _ := newTestEngine(t)
	if err := e.Reconfigure(cfg); !errors.Is(err, dsp.ErrBadConfig) {
		t.Fatalf("expected ErrBadConfig, got %v", err)
	}
	if e.Config() != testConfig() {
		t.Fatal("bad config was applied")
	}
}

func TestEngineStartFailure(t *testing.T) {
	e, f := newTestEngine(t)
	f.StartErr = errors.New("no dongle")
	err := e.Start(context.TODO())
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "no dongle") {
		t.Fatalf("cause missing from %q", err)
	}
	if e.State() != Idle {
		t.Fatal("engine running after failed start")
	}
	e.Stop()
}

func TestEnginePoll(t *testing.T) {
	e, f := newTestEngine(t)
	f.Push(twoBursts(testConfig()))
	if n := e.Poll(); n != 2 {
		t.Fatalf("expected 2 messages, got %d", n)
	}
	checkTwoBursts(t, e.Messages(0, 100))
	if e.Cursor() != 240 {
		t.Fatalf("cursor %d", e.Cursor())
	}
	if got := e.Render(Hex, 0, 2); len(got) != 2 || got[0] != "ff" || got[1] != "00" {
		t.Fatalf("render %v", got)
	}
	if got := e.Messages(1, 1); got != nil {
		t.Fatalf("expected empty range, got %v", got)
	}
	if lo, mags := e.LiveWindow(0, 240); lo != 0 || len(mags) != 240 {
		t.Fatalf("live window %d, %d", lo, len(mags))
	}
}

func TestEngineRunUntilFeedCloses(t *testing.T) {
	e, f := newTestEngine(t)
	sub := e.Subscribe()
	defer sub.Close()
	if err := e.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	if e.State() != Running {
		t.Fatal("expected running")
	}
	if err := e.Start(context.TODO()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	cfg := testConfig()
	// A burst with no trailing silence is only sealed when the feed ends.
	f.Push(dsp.Modulate(cfg, dsp.ParseBits("1011"), 1.0))
	f.Close()
	waitIdle(t, e)
	if ev := nextEvent(t, sub); ev.Kind != NewMessages || ev.From != 0 {
		t.Fatalf("unexpected event %+v", ev)
	}
	msgs := e.Messages(0, e.MessageCount())
	if len(msgs) != 1 || Bits.Format(msgs[0]) != "1011" {
		t.Fatalf("unexpected log %+v", msgs)
	}
	e.Stop()
	e.Stop()
}

func TestEngineStopSeals(t *testing.T) {
	e, f := newTestEngine(t)
	s := &memSink{}
	e.SetOutputSink(s)
	if err := e.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	f.Push(dsp.Modulate(testConfig(), dsp.ParseBits("11"), 1.0))
	e.Stop()
	if e.State() != Idle {
		t.Fatal("expected idle")
	}
	if e.MessageCount() != 1 {
		t.Fatalf("expected sealed message, got %d", e.MessageCount())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) != 1 || !s.closed {
		t.Fatalf("sink got %d messages, closed=%v", len(s.msgs), s.closed)
	}
	if e.SinkActive() {
		t.Fatal("sink still active after stop")
	}
}

func TestEngineSink(t *testing.T) {
	e, f := newTestEngine(t)
	s := &memSink{}
	e.SetOutputSink(s)
	if !e.SinkActive() {
		t.Fatal("expected active sink")
	}
	f.Push(twoBursts(testConfig()))
	e.Poll()

	// Replacing drains the old sink before closing it.
	s2 := &memSink{}
	e.SetOutputSink(s2)
	s.mu.Lock()
	if len(s.msgs) != 2 || s.msgs[0].Start > s.msgs[1].Start || !s.closed {
		t.Fatalf("sink got %+v, closed=%v", s.msgs, s.closed)
	}
	s.mu.Unlock()
	e.SetOutputSink(nil)
	s2.mu.Lock()
	if !s2.closed || e.SinkActive() {
		t.Fatal("removed sink not closed")
	}
	s2.mu.Unlock()
	f.Push(twoBursts(testConfig()))
	e.Poll()
	if len(s.msgs) != 2 || len(s2.msgs) != 0 {
		t.Fatal("removed sinks received messages")
	}
	if e.MessageCount() != 4 {
		t.Fatalf("expected 4 logged, got %d", e.MessageCount())
	}
}

// stuckSink blocks every write until release is closed.
type stuckSink struct {
	memSink
	release chan struct{}
}

func (s *stuckSink) WriteMessage(m Message) error {
	<-s.release
	return s.memSink.WriteMessage(m)
}

func TestEngineStopWithStuckSink(t *testing.T) {
	f := NewSliceFeed()
	e, err := NewEngine(f, testConfig(), Options{SinkDrainTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	s := &stuckSink{release: make(chan struct{})}
	e.SetOutputSink(s)
	if err := e.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	f.Push(twoBursts(testConfig()))
	deadline := time.Now().Add(5 * time.Second)
	for e.MessageCount() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("messages not logged while sink is stuck")
		}
		time.Sleep(time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop blocked on sink")
	}

	// The sink is closed once its write finally returns.
	close(s.release)
	for {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stuck sink never closed")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEngineSinkQueueFull(t *testing.T) {
	f := NewSliceFeed()
	e, err := NewEngine(f, testConfig(), Options{SinkQueue: 1})
	if err != nil {
		t.Fatal(err)
	}
	sub := e.Subscribe()
	defer sub.Close()
	s := &stuckSink{release: make(chan struct{})}
	e.SetOutputSink(s)
	f.Push(twoBursts(testConfig()))
	f.Push(twoBursts(testConfig()))
	if n := e.Poll(); n != 4 {
		t.Fatalf("expected 4 messages, got %d", n)
	}
	for {
		ev := nextEvent(t, sub)
		if ev.Kind == Error && strings.Contains(ev.Text, "queue full") {
			break
		}
	}
	if e.MessageCount() != 4 {
		t.Fatal("log lost messages the sink dropped")
	}
	close(s.release)
	e.SetOutputSink(nil)
}

func TestEngineSinkError(t *testing.T) {
	e, f := newTestEngine(t)
	sub := e.Subscribe()
	defer sub.Close()
	e.SetOutputSink(&memSink{err: errors.New("disk full")})
	f.Push(twoBursts(testConfig()))
	e.Poll()
	if ev := nextEvent(t, sub); ev.Kind != NewMessages {
		t.Fatalf("unexpected %+v", ev)
	}
	ev := nextEvent(t, sub)
	if ev.Kind != Error || ev.Text != "SinkWriteError: disk full" {
		t.Fatalf("unexpected %+v", ev)
	}
	// The log keeps messages the sink failed on.
	if e.MessageCount() != 2 {
		t.Fatalf("expected 2 logged, got %d", e.MessageCount())
	}
}

func TestEngineFeedErrors(t *testing.T) {
	e, f := newTestEngine(t)
	sub := e.Subscribe()
	defer sub.Close()
	f.PushError("DeviceTransportError: usb gone")
	e.Poll()
	if ev := nextEvent(t, sub); ev.Kind != Error || ev.Text != "DeviceTransportError: usb gone" {
		t.Fatalf("unexpected %+v", ev)
	}
}

func TestEngineClearKeepsRun(t *testing.T) {
	e, f := newTestEngine(t)
	cfg := testConfig()
	f.Push(twoBursts(cfg))
	f.Push(dsp.Modulate(cfg, dsp.ParseBits("111"), 1.0))
	e.Poll()
	if e.MessageCount() != 2 {
		t.Fatalf("expected 2 messages, got %d", e.MessageCount())
	}
	sub := e.Subscribe()
	defer sub.Close()
	cursor := e.Cursor()
	e.Clear()
	if ev := nextEvent(t, sub); ev.Kind != Redraw {
		t.Fatalf("unexpected %+v", ev)
	}
	if e.MessageCount() != 0 || e.Cursor() != cursor {
		t.Fatalf("count %d cursor %d", e.MessageCount(), e.Cursor())
	}
	if e.Live().Watermark() != cursor || e.Live().End() != cursor {
		t.Fatal("live window not reset")
	}
	f.Push(dsp.Silence(3 * cfg.BitLength))
	e.Poll()
	msgs := e.Messages(0, 10)
	if len(msgs) != 1 || Bits.Format(msgs[0]) != "111" || msgs[0].Start != 240 {
		t.Fatalf("in-progress run lost: %+v", msgs)
	}
}

func TestEngineReconfigure(t *testing.T) {
	e, f := newTestEngine(t)
	cfg := testConfig()
	samps := twoBursts(cfg)
	f.Push(samps[:130])
	e.Poll()
	cfg2 := cfg
	cfg2.Noise = 0.5
	if err := e.Reconfigure(cfg2); err != nil {
		t.Fatal(err)
	}
	f.Push(samps[130:])
	e.Poll()
	msgs := e.Messages(0, 10)
	if len(msgs) != 1 || Bits.Format(msgs[0]) != "11111111" {
		t.Fatalf("unexpected log %+v", msgs)
	}
}

func TestEngineRewinder(t *testing.T) {
	e, f := newTestEngine(t)
	if err := e.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}
	defer e.Stop()
	sub := e.Subscribe()
	defer sub.Close()
	f.Push(ones(50))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.RunRewinder(ctx, 10*time.Millisecond)
	for {
		if ev := nextEvent(t, sub); ev.Kind == Redraw {
			break
		}
	}
}

func TestEngineControlWhileRunning(t *testing.T) {
	f := NewSliceFeed()
	e, err := NewEngine(f, testConfig(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	s := &memSink{}
	e.SetOutputSink(s)
	if err := e.Start(context.TODO()); err != nil {
		t.Fatal(err)
	}

	const bursts = 50
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < bursts; i++ {
			f.Push(twoBursts(testConfig()))
		}
		f.Close()
	}()

	// Snapshots taken while the drive loop runs must never change.
	type snap struct {
		msg  Message
		bits string
	}
	var snaps []snap
	donec := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-donec:
				return
			default:
			}
			switch i % 4 {
			case 0:
				e.Clear()
			case 1:
				if err := e.Reconfigure(testConfig()); err != nil {
					t.Error(err)
					return
				}
			case 2:
				e.Rewind()
			case 3:
				for _, m := range e.Messages(0, e.MessageCount()) {
					snaps = append(snaps, snap{m, Bits.Format(m)})
				}
			}
		}
	}()

	waitIdle(t, e)
	close(donec)
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) != 2*bursts {
		t.Fatalf("sink got %d messages, expected %d", len(s.msgs), 2*bursts)
	}
	byStart := make(map[int64]string)
	for i, m := range s.msgs {
		if i > 0 && m.Start <= s.msgs[i-1].Start {
			t.Fatalf("message %d starts at %d after %d", i, m.Start, s.msgs[i-1].Start)
		}
		byStart[m.Start] = Bits.Format(m)
	}
	for _, sn := range snaps {
		if Bits.Format(sn.msg) != sn.bits || byStart[sn.msg.Start] != sn.bits {
			t.Fatalf("message at %d changed: %q, sink has %q", sn.msg.Start, sn.bits, byStart[sn.msg.Start])
		}
	}
}
