package gateway

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolgugu/edgeflow/pkg/frame"
)

func entry(ts float64, tag string) *frame.Frame {
	return &frame.Frame{Timestamp: ts, Payload: []byte(tag)}
}

func TestImmediateModeReturnsLowestTimestampFirst(t *testing.T) {
	b := NewJitterBuffer(0)
	b.Push(entry(3.0, "c"))
	b.Push(entry(1.0, "a"))
	b.Push(entry(2.0, "b"))

	assert.Equal(t, []byte("a"), b.Pop())
	assert.Equal(t, []byte("b"), b.Pop())
	assert.Equal(t, []byte("c"), b.Pop())
	assert.Nil(t, b.Pop())
}

func TestOverflowDropsOldest(t *testing.T) {
	b := NewJitterBuffer(0)
	for i := 0; i < bufferCap+10; i++ {
		b.Push(entry(float64(i), strconv.Itoa(i)))
	}
	assert.Equal(t, bufferCap, b.Len())

	// Survivors are the newest bufferCap entries: 10..69, lowest first.
	first := b.Pop()
	require.NotNil(t, first)
	assert.Equal(t, []byte("10"), first)
	assert.Equal(t, bufferCap, b.Len()+1)
}

func TestDelayedModeHoldsFrames(t *testing.T) {
	b := NewJitterBuffer(0.2)

	now := frame.Now()
	b.Push(entry(now, "fresh"))

	// A just-captured frame must not be released before now+delay.
	assert.Nil(t, b.Pop())

	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, []byte("fresh"), b.Pop())
}

func TestDelayedModeGCDropsStale(t *testing.T) {
	b := NewJitterBuffer(0.1)

	// Far past the play deadline plus slack: collected, not delivered.
	b.Push(entry(frame.Now()-5.0, "stale"))
	assert.Nil(t, b.Pop())
	assert.Equal(t, 0, b.Len())
}

func TestClear(t *testing.T) {
	b := NewJitterBuffer(0)
	b.Push(entry(1, "a"))
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Pop())
}

func TestFPSTrackerWindow(t *testing.T) {
	tr := newFPSTracker()
	now := 100.0

	for i := 0; i < 5; i++ {
		tr.Record("cam", "w1", now-0.5+float64(i)*0.05)
	}
	tr.Record("cam", "w2", now-2.0) // outside the window
	tr.Record("det", "", now-0.1)

	snap := tr.Snapshot(now)
	assert.Equal(t, 5.0, snap["cam"].Total)
	assert.Equal(t, 5.0, snap["cam"].Workers["w1"])
	assert.Equal(t, 0.0, snap["cam"].Workers["w2"])
	assert.Equal(t, 1.0, snap["det"].Total)
	assert.Empty(t, snap["det"].Workers)
}
