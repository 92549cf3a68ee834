package sniffer

import (
	"fmt"
	"sync"
)

type EventKind int

const (
	// NewMessages means the log grew; From is the first new offset.
	NewMessages EventKind = iota
	// Error carries device or sink failure text.
	Error
	// Redraw means the live window or the log was reset.
	Redraw
)

var eventKindNames = [...]string{"messages", "error", "redraw"}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventKindNames) {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventKindNames[k]
}

func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EventKind) UnmarshalText(b []byte) error {
	for i, n := range eventKindNames {
		if n == string(b) {
			*k = EventKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", b)
}

type Event struct {
	Kind EventKind `json:"kind"`
	From int       `json:"from"`
	Text string    `json:"text,omitempty"`
}

// Subscription delivers events in publish order. Publishing never waits on
// a slow subscriber; events queue until read.
type Subscription struct {
	b     *broker
	q     []Event
	wakec chan struct{}
	c     chan Event
	donec chan struct{}
	once  sync.Once
	mu    sync.Mutex
}

func (s *Subscription) C() <-chan Event { return s.c }

// Close stops delivery; C is closed once the pump exits.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.donec)
	})
}

func (s *Subscription) push(ev Event) {
	s.mu.Lock()
	s.q = append(s.q, ev)
	s.mu.Unlock()
	select {
	case s.wakec <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.c)
	for {
		s.mu.Lock()
		q := s.q
		s.q = nil
		s.mu.Unlock()
		for _, ev := range q {
			select {
			case s.c <- ev:
			case <-s.donec:
				return
			}
		}
		select {
		case <-s.wakec:
		case <-s.donec:
			return
		}
	}
}

type broker struct {
	subs map[*Subscription]struct{}
	mu   sync.Mutex
}

func newBroker() *broker { return &broker{subs: make(map[*Subscription]struct{})} }

func (b *broker) subscribe() *Subscription {
	s := &Subscription{
		b:     b,
		wakec: make(chan struct{}, 1),
		c:     make(chan Event),
		donec: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.pump()
	return s
}

func (b *broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		s.push(ev)
	}
}
