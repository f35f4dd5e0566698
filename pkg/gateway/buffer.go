package gateway

import (
	"container/heap"

	"github.com/seolgugu/edgeflow/pkg/frame"
)

// bufferCap bounds each jitter buffer; overflow drops the oldest entry.
const bufferCap = 60

// gcSlack is how far past the play deadline an entry may lag before it is
// collected without being delivered.
const gcSlack = 0.5

type bufferEntry struct {
	ts   float64
	data []byte
}

type entryHeap []bufferEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].ts < h[j].ts }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)         { *h = append(*h, x.(bufferEntry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// JitterBuffer reorders frames by capture timestamp for one topic.
//
// With delay 0 a pop returns the lowest-timestamp entry immediately. With a
// positive delay, entries are held back until their timestamp is at least
// delay seconds in the past, smoothing network jitter at the cost of
// latency. Not safe for concurrent use; the owning interface serializes
// access.
type JitterBuffer struct {
	delay   float64
	maxSize int
	h       entryHeap
}

// NewJitterBuffer creates a buffer releasing entries delay seconds after
// capture.
func NewJitterBuffer(delay float64) *JitterBuffer {
	return &JitterBuffer{delay: delay, maxSize: bufferCap}
}

// Push inserts the frame's payload keyed by its timestamp, evicting the
// oldest entries when full.
func (b *JitterBuffer) Push(f *frame.Frame) {
	for b.h.Len() >= b.maxSize {
		heap.Pop(&b.h)
	}
	heap.Push(&b.h, bufferEntry{ts: f.Timestamp, data: f.Payload})
}

// Pop returns the next deliverable payload, or nil when nothing is due.
func (b *JitterBuffer) Pop() []byte {
	if b.h.Len() == 0 {
		return nil
	}

	if b.delay == 0 {
		return heap.Pop(&b.h).(bufferEntry).data
	}

	deadline := frame.Now() - b.delay

	// Entries too stale to play are not worth delivering.
	for b.h.Len() > 0 && b.h[0].ts < deadline-gcSlack {
		heap.Pop(&b.h)
	}
	if b.h.Len() == 0 {
		return nil
	}

	if b.h[0].ts <= deadline {
		return heap.Pop(&b.h).(bufferEntry).data
	}
	return nil
}

// Len returns the buffered entry count.
func (b *JitterBuffer) Len() int { return b.h.Len() }

// Cap returns the buffer bound.
func (b *JitterBuffer) Cap() int { return b.maxSize }

// Clear drops every entry.
func (b *JitterBuffer) Clear() { b.h = nil }
