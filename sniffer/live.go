package sniffer

import (
	"sync"

	"github.com/chzchzchz/sniffrx/dsp"
)

// LiveBuffer mirrors the magnitudes of recently consumed samples for
// display. Its window [Watermark, End) is reset by Rewind to bound memory,
// so readers must tolerate the window jumping forward.
type LiveBuffer struct {
	watermark int64
	mags      []float32
	// max caps the retained samples; zero means only Rewind bounds memory.
	max int
	mu  sync.RWMutex
}

func NewLiveBuffer(start int64, maxSamples int) *LiveBuffer {
	return &LiveBuffer{watermark: start, max: maxSamples}
}

// Append extends the window with samples beginning at sample index start.
// Samples before the watermark are ignored.
func (lb *LiveBuffer) Append(start int64, samps []complex64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	end := lb.watermark + int64(len(lb.mags))
	if start+int64(len(samps)) <= end {
		return
	}
	if start < end {
		samps = samps[end-start:]
	} else if start > end {
		// Gap in the stream; restart the window.
		lb.watermark, lb.mags = start, lb.mags[:0]
	}
	lb.mags = append(lb.mags, dsp.Magnitudes(samps)...)
	if lb.max > 0 && len(lb.mags) > lb.max {
		drop := len(lb.mags) - lb.max
		lb.mags = append(lb.mags[:0:0], lb.mags[drop:]...)
		lb.watermark += int64(drop)
	}
}

// Rewind empties the window and anchors it at cursor.
func (lb *LiveBuffer) Rewind(cursor int64) {
	lb.mu.Lock()
	lb.watermark, lb.mags = cursor, nil
	lb.mu.Unlock()
}

func (lb *LiveBuffer) Watermark() int64 {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.watermark
}

func (lb *LiveBuffer) End() int64 {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	return lb.watermark + int64(len(lb.mags))
}

// Window copies the retained magnitudes intersecting [begin, end) and
// returns the sample index of the first one.
func (lb *LiveBuffer) Window(begin, end int64) (int64, []float32) {
	lb.mu.RLock()
	defer lb.mu.RUnlock()
	lo, hi := lb.watermark, lb.watermark+int64(len(lb.mags))
	if begin > lo {
		lo = begin
	}
	if end < hi {
		hi = end
	}
	if lo >= hi {
		return lo, nil
	}
	out := make([]float32, hi-lo)
	copy(out, lb.mags[lo-lb.watermark:hi-lb.watermark])
	return lo, out
}
