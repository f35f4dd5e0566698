package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/broker/adapters/memory"
	"github.com/seolgugu/edgeflow/pkg/frame"
)

func encoded(id uint32, payload []byte) []byte {
	return frame.Encode(&frame.Frame{ID: id, Timestamp: float64(id), Payload: payload})
}

func TestPushPop(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	sent := encoded(7, []byte{0xDE, 0xAD})
	b.Push(ctx, "cam", sent)

	got := b.Pop(ctx, "cam", time.Second)
	assert.Equal(t, sent, got)
	assert.Nil(t, b.Pop(ctx, "cam", 20*time.Millisecond))
}

func TestTrimCollapsesToLatest(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	require.NoError(t, b.Trim(ctx, "cam", 1))
	for id := uint32(1); id <= 5; id++ {
		b.Push(ctx, "cam", encoded(id, []byte("x")))
	}

	got := b.PopLatest(ctx, "cam", time.Second)
	require.NotNil(t, got)
	id, err := frame.PeekID(got)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), id)
}

func TestDurableOverflowDropsOldest(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	require.NoError(t, b.Trim(ctx, "log", 3))
	for id := uint32(1); id <= 10; id++ {
		b.Push(ctx, "log", encoded(id, []byte("x")))
	}

	var ids []uint32
	for {
		got := b.Pop(ctx, "log", 20*time.Millisecond)
		if got == nil {
			break
		}
		id, err := frame.PeekID(got)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []uint32{8, 9, 10}, ids)
}

func TestBlockingPopWakesOnPush(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		got = b.Pop(ctx, "cam", 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	b.Push(ctx, "cam", encoded(1, []byte("wake")))
	wg.Wait()

	require.NotNil(t, got)
	id, _ := frame.PeekID(got)
	assert.Equal(t, uint32(1), id)
}

func TestStatsAndReset(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	require.NoError(t, b.Trim(ctx, "a", 2))
	b.Push(ctx, "a", encoded(1, []byte("x")))

	stats := b.QueueStats(ctx)
	assert.Equal(t, broker.TopicStats{Current: 1, Max: 2}, stats["a"])

	require.NoError(t, b.Reset(ctx))
	assert.Empty(t, b.QueueStats(ctx))
}

func TestConfigRoundtrip(t *testing.T) {
	b := memory.New()
	rebuilt, err := broker.FromConfig(b.ToConfig())
	require.NoError(t, err)
	assert.IsType(t, &memory.Broker{}, rebuilt)
}
