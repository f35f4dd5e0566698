// Package memory implements the broker contract in process memory.
//
// It mirrors the dual-plane layout (id queues + TTL'd payload entries) so
// tests exercise the same eviction and miss paths as the Redis driver. State
// is per process: workers spawned into separate OS processes do not share a
// memory broker, so this driver serves tests and single-process runs.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// Driver is the name this adapter registers with broker.FromConfig.
const Driver = "memory"

func init() {
	broker.RegisterDriver(Driver, func(cfg map[string]any) (broker.Broker, error) {
		b := New()
		if n, ok := cfg["maxlen"].(float64); ok && n > 0 {
			b.maxlen = int(n)
		}
		return b, nil
	})
}

type payloadEntry struct {
	data    []byte
	expires time.Time
}

// Broker is an in-memory dual-plane broker.
type Broker struct {
	mu   sync.Mutex
	cond *sync.Cond

	queues   map[string][]string
	payloads map[string]payloadEntry
	limits   map[string]int

	maxlen int
	ttl    time.Duration
}

// New creates an empty memory broker with the default capacity and TTL.
func New() *Broker {
	b := &Broker{
		queues:   map[string][]string{},
		payloads: map[string]payloadEntry{},
		limits:   map[string]int{},
		maxlen:   broker.DefaultMaxLen,
		ttl:      60 * time.Second,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Broker) limitLocked(topic string) int {
	if n, ok := b.limits[topic]; ok {
		return n
	}
	return b.maxlen
}

// Push stores the payload and enqueues the id, trimming to capacity.
func (b *Broker) Push(_ context.Context, topic string, frameBytes []byte) {
	if len(frameBytes) < 4 {
		return
	}
	id, err := frame.PeekID(frameBytes)
	if err != nil {
		return
	}
	idVal := strconv.FormatUint(uint64(id), 10)

	stored := make([]byte, len(frameBytes))
	copy(stored, frameBytes)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.payloads[topic+":data:"+idVal] = payloadEntry{data: stored, expires: time.Now().Add(b.ttl)}
	q := append(b.queues[topic], idVal)
	if limit := b.limitLocked(topic); len(q) > limit {
		q = q[len(q)-limit:]
	}
	b.queues[topic] = q
	b.cond.Broadcast()
}

// Pop blocks up to timeout for the oldest id and resolves its payload.
func (b *Broker) Pop(ctx context.Context, topic string, timeout time.Duration) []byte {
	if timeout <= 0 {
		timeout = broker.DefaultPopTimeout
	}
	deadline := time.Now().Add(timeout)

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queues[topic]) == 0 {
		if ctx.Err() != nil || !time.Now().Before(deadline) {
			return nil
		}
		remaining := time.Until(deadline)
		timer := time.AfterFunc(remaining, b.cond.Broadcast)
		b.cond.Wait()
		timer.Stop()
	}

	q := b.queues[topic]
	idVal := q[0]
	b.queues[topic] = q[1:]

	key := topic + ":data:" + idVal
	entry, ok := b.payloads[key]
	delete(b.payloads, key)
	if !ok || time.Now().After(entry.expires) {
		logger.L().Warn("frame dropped", "error", broker.ErrPayloadMissing(key))
		return nil
	}
	return entry.data
}

// PopLatest coincides with Pop once the wiring has trimmed the topic to a
// single slot.
func (b *Broker) PopLatest(ctx context.Context, topic string, timeout time.Duration) []byte {
	return b.Pop(ctx, topic, timeout)
}

// Trim sets the topic capacity and applies it immediately.
func (b *Broker) Trim(_ context.Context, topic string, size int) error {
	if size < 1 {
		size = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[topic] = size
	if q := b.queues[topic]; len(q) > size {
		b.queues[topic] = q[len(q)-size:]
	}
	return nil
}

// QueueSize returns the control queue length.
func (b *Broker) QueueSize(_ context.Context, topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[topic])
}

// QueueStats reports current/max per topic with capacity metadata.
func (b *Broker) QueueStats(_ context.Context) map[string]broker.TopicStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	stats := make(map[string]broker.TopicStats, len(b.limits))
	for topic := range b.limits {
		stats[topic] = broker.TopicStats{Current: len(b.queues[topic]), Max: b.limitLocked(topic)}
	}
	return stats
}

// Reset clears control-plane state; payload entries stay until TTL.
func (b *Broker) Reset(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues = map[string][]string{}
	b.limits = map[string]int{}
	return nil
}

// ToConfig implements the serializable configuration protocol.
func (b *Broker) ToConfig() map[string]any {
	return map[string]any{
		"driver": Driver,
		"maxlen": b.maxlen,
	}
}

// Close wakes any blocked pops.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cond.Broadcast()
	return nil
}
