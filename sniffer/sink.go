package sniffer

import (
	"fmt"
	"time"
)

// Sink persists sealed messages as they are produced.
type Sink interface {
	WriteMessage(m Message) error
	Close() error
}

const (
	defaultSinkQueue        = 1024
	defaultSinkDrainTimeout = 5 * time.Second
)

// sinkWriter feeds a Sink from its own goroutine; drive cycles only ever
// enqueue.
type sinkWriter struct {
	sink   Sink
	msgc   chan Message
	donec  chan struct{}
	report func(string)
}

func newSinkWriter(s Sink, depth int, report func(string)) *sinkWriter {
	w := &sinkWriter{
		sink:   s,
		msgc:   make(chan Message, depth),
		donec:  make(chan struct{}),
		report: report,
	}
	go w.run()
	return w
}

func (w *sinkWriter) run() {
	defer close(w.donec)
	for m := range w.msgc {
		if err := w.sink.WriteMessage(m); err != nil {
			w.report("SinkWriteError: " + err.Error())
		}
	}
}

// enqueue drops m when the sink has fallen a full queue behind.
func (w *sinkWriter) enqueue(m Message) {
	select {
	case w.msgc <- m:
	default:
		w.report(fmt.Sprintf("SinkWriteError: queue full, dropped message at sample %d", m.Start))
	}
}

// close lets queued messages drain for up to timeout, then closes the
// sink. A sink still stuck after timeout is closed once its write returns.
func (w *sinkWriter) close(timeout time.Duration) {
	close(w.msgc)
	select {
	case <-w.donec:
		w.closeSink()
	case <-time.After(timeout):
		w.report(fmt.Sprintf("SinkWriteError: sink did not drain within %v", timeout))
		go func() {
			<-w.donec
			w.closeSink()
		}()
	}
}

func (w *sinkWriter) closeSink() {
	if err := w.sink.Close(); err != nil {
		w.report("SinkWriteError: " + err.Error())
	}
}
