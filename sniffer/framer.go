package sniffer

import (
	"fmt"

	"github.com/chzchzchz/sniffrx/dsp"
)

// bitRun is the message being assembled.
type bitRun struct {
	bits []uint8
	// idx holds the sample index each bit was decoded from.
	idx []int64
	end int64
}

func (r *bitRun) add(b uint8, at int64, n int) {
	r.bits = append(r.bits, b)
	r.idx = append(r.idx, at)
	r.end = at + int64(n)
}

// Framer turns demodulated sub-windows into messages, splitting on pauses.
// It owns the samples held back from an incomplete sub-window. A Framer is
// not safe for concurrent use.
type Framer struct {
	pending      []complex64
	pendingStart int64

	run     *bitRun
	silence int
	// silentSamples spans the silent sub-windows counted in silence, each
	// at the bit length it was decoded with.
	silentSamples int64
}

func NewFramer(start int64) *Framer { return &Framer{pendingStart: start} }

// Active is true while a bit run is accumulating.
func (f *Framer) Active() bool { return f.run != nil }

// Next is the sample index expected by the next Feed.
func (f *Framer) Next() int64 { return f.pendingStart + int64(len(f.pending)) }

// Feed frames samples beginning at sample index start using cfg and returns
// any messages sealed along the way.
func (f *Framer) Feed(cfg dsp.Config, start int64, samps []complex64) ([]Message, error) {
	if start != f.Next() {
		return nil, fmt.Errorf("framer expected sample %d, got %d", f.Next(), start)
	}
	f.pending = append(f.pending, samps...)
	syms, used := dsp.Demodulate(cfg, f.pending)

	var msgs []Message
	at := f.pendingStart
	for _, s := range syms {
		if m, ok := f.step(cfg, s, at); ok {
			msgs = append(msgs, m)
		}
		at += int64(cfg.BitLength)
	}

	// Keep only the incomplete tail; copy so the backing array can shrink.
	f.pending = append(f.pending[:0:0], f.pending[used:]...)
	f.pendingStart += int64(used)
	return msgs, nil
}

func (f *Framer) step(cfg dsp.Config, s dsp.Symbol, at int64) (Message, bool) {
	if s.Signal {
		if f.run == nil {
			f.run = &bitRun{}
		}
		f.run.add(s.Bit, at, cfg.BitLength)
		f.silence, f.silentSamples = 0, 0
		return Message{}, false
	}
	f.silence++
	f.silentSamples += int64(cfg.BitLength)
	if f.silence <= cfg.Tolerance {
		return Message{}, false
	}
	m, ok := f.seal()
	f.silence, f.silentSamples = 0, 0
	return m, ok
}

func (f *Framer) seal() (Message, bool) {
	if f.run == nil {
		return Message{}, false
	}
	r := f.run
	f.run = nil
	return Message{
		Bits:  r.bits,
		Pause: f.silentSamples,
		Start: r.idx[0],
		End:   r.end,
	}, true
}

// Flush force-seals the active run. Held back samples are dropped and the
// framer resumes at Next.
func (f *Framer) Flush() []Message {
	next := f.Next()
	f.pending, f.pendingStart = nil, next
	m, ok := f.seal()
	f.silence, f.silentSamples = 0, 0
	if !ok {
		return nil
	}
	return []Message{m}
}

