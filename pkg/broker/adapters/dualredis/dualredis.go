// Package dualredis implements the dual-plane broker on two Redis endpoints.
//
// The control plane keeps one bounded list per topic holding decimal frame
// ids, plus capacity metadata under edgeflow:meta:limit:{topic}. The data
// plane stores payloads under {topic}:data:{id} with a short TTL. When both
// planes resolve to the same endpoint a single pipelined batch covers the
// payload write, the enqueue and the trim.
package dualredis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/config"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
	"github.com/seolgugu/edgeflow/pkg/resilience"
)

// Driver is the name this adapter registers with broker.FromConfig.
const Driver = "dualredis"

const (
	metaLimitPrefix = "edgeflow:meta:limit:"

	dialTimeout   = 5 * time.Second
	socketTimeout = 5 * time.Second

	// Reconnect backoff: 1s doubling, capped at 30s.
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

func init() {
	broker.RegisterDriver(Driver, fromConfig)
}

// Config holds both plane endpoints.
type Config struct {
	CtrlHost string
	CtrlPort int
	DataHost string
	DataPort int

	// MaxLen is the default topic capacity when no trim was issued.
	MaxLen int

	// PayloadTTL bounds data-plane retention.
	PayloadTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxLen <= 0 {
		c.MaxLen = broker.DefaultMaxLen
	}
	if c.PayloadTTL <= 0 {
		c.PayloadTTL = 60 * time.Second
	}
	return c
}

// Broker is the dual-plane Redis client. Safe for concurrent use; the hot
// path of a node is single-threaded, concurrency comes from gateway stats.
type Broker struct {
	cfg       Config
	samePlane bool

	mu       sync.Mutex
	ctrl     *redis.Client
	data     *redis.Client
	limits   map[string]int
	attempts int
	nextDial time.Time
}

// New creates a lazily connecting broker; no dial happens until first use.
func New(cfg Config) *Broker {
	cfg = cfg.withDefaults()
	return &Broker{
		cfg:       cfg,
		samePlane: cfg.CtrlHost == cfg.DataHost && cfg.CtrlPort == cfg.DataPort,
		limits:    map[string]int{},
	}
}

// NewFromSettings builds a broker from the worker environment settings.
func NewFromSettings(s *config.Settings) *Broker {
	return New(Config{
		CtrlHost: s.RedisHost,
		CtrlPort: s.RedisPort,
		DataHost: s.DataRedisHost,
		DataPort: s.DataRedisPort,
	})
}

func fromConfig(cfg map[string]any) (broker.Broker, error) {
	c := Config{
		CtrlHost:   asString(cfg["ctrl_host"]),
		CtrlPort:   asInt(cfg["ctrl_port"]),
		DataHost:   asString(cfg["data_host"]),
		DataPort:   asInt(cfg["data_port"]),
		MaxLen:     asInt(cfg["maxlen"]),
		PayloadTTL: time.Duration(asInt(cfg["payload_ttl_seconds"])) * time.Second,
	}
	if c.CtrlHost == "" {
		return nil, broker.ErrInvalidConfig("ctrl_host missing", nil)
	}
	return New(c), nil
}

// ToConfig implements the serializable configuration protocol.
func (b *Broker) ToConfig() map[string]any {
	return map[string]any{
		"driver":              Driver,
		"ctrl_host":           b.cfg.CtrlHost,
		"ctrl_port":           b.cfg.CtrlPort,
		"data_host":           b.cfg.DataHost,
		"data_port":           b.cfg.DataPort,
		"maxlen":              b.cfg.MaxLen,
		"payload_ttl_seconds": int(b.cfg.PayloadTTL / time.Second),
	}
}

// clients returns connected control and data clients, dialing lazily.
// Reconnect attempts respect the capped exponential backoff window.
func (b *Broker) clients(ctx context.Context) (*redis.Client, *redis.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctrl != nil {
		if err := b.ctrl.Ping(ctx).Err(); err != nil {
			logger.L().WarnContext(ctx, "control redis connection lost, reconnecting", "error", err)
			b.dropLocked()
		}
	}
	if b.ctrl == nil {
		if time.Now().Before(b.nextDial) {
			return nil, nil, broker.ErrUnavailable(b.ctrlAddr(), nil)
		}
		if err := b.dialLocked(ctx); err != nil {
			b.nextDial = time.Now().Add(resilience.ExponentialBackoff(b.attempts, backoffBase, backoffMax, 0))
			b.attempts++
			return nil, nil, err
		}
		b.attempts = 0
		b.nextDial = time.Time{}
	}
	return b.ctrl, b.data, nil
}

func (b *Broker) dropLocked() {
	if b.ctrl != nil {
		_ = b.ctrl.Close()
	}
	if b.data != nil && b.data != b.ctrl {
		_ = b.data.Close()
	}
	b.ctrl, b.data = nil, nil
}

func (b *Broker) dialLocked(ctx context.Context) error {
	ctrl := redis.NewClient(&redis.Options{
		Addr:         b.ctrlAddr(),
		DialTimeout:  dialTimeout,
		ReadTimeout:  socketTimeout,
		WriteTimeout: socketTimeout,
	})
	if err := ctrl.Ping(ctx).Err(); err != nil {
		_ = ctrl.Close()
		return broker.ErrUnavailable(b.ctrlAddr(), err)
	}

	if b.samePlane {
		b.ctrl, b.data = ctrl, ctrl
		logger.L().InfoContext(ctx, "redis connected (shared plane)", "addr", b.ctrlAddr())
		return nil
	}

	data := redis.NewClient(&redis.Options{
		Addr:         b.dataAddr(),
		DialTimeout:  dialTimeout,
		ReadTimeout:  socketTimeout,
		WriteTimeout: socketTimeout,
	})
	if err := data.Ping(ctx).Err(); err != nil {
		_ = data.Close()
		// Local development runs a single Redis; fall back to the control
		// endpoint rather than refusing to start.
		if isLocal(b.cfg.DataHost) {
			logger.L().WarnContext(ctx, "data redis unreachable, falling back to control plane",
				"data_addr", b.dataAddr(), "error", err)
			b.ctrl, b.data = ctrl, ctrl
			return nil
		}
		_ = ctrl.Close()
		return broker.ErrUnavailable(b.dataAddr(), err)
	}

	b.ctrl, b.data = ctrl, data
	logger.L().InfoContext(ctx, "redis connected",
		"ctrl_addr", b.ctrlAddr(), "data_addr", b.dataAddr())
	return nil
}

func (b *Broker) ctrlAddr() string { return fmt.Sprintf("%s:%d", b.cfg.CtrlHost, b.cfg.CtrlPort) }
func (b *Broker) dataAddr() string { return fmt.Sprintf("%s:%d", b.cfg.DataHost, b.cfg.DataPort) }

func isLocal(host string) bool {
	return host == "localhost" || host == "127.0.0.1"
}

// invalidate drops the connections so the next call redials.
func (b *Broker) invalidate() {
	b.mu.Lock()
	b.dropLocked()
	b.mu.Unlock()
}

func isNetworkErr(err error) bool {
	if err == nil || err == redis.Nil {
		return false
	}
	// go-redis surfaces dial and socket failures as generic errors; anything
	// that is neither the nil-reply sentinel nor a server "ERR" reply is
	// treated as transport trouble.
	return !strings.HasPrefix(err.Error(), "ERR")
}

// limit resolves a topic's capacity through the local read-through cache.
func (b *Broker) limit(ctx context.Context, ctrl *redis.Client, topic string) int {
	b.mu.Lock()
	cached, ok := b.limits[topic]
	b.mu.Unlock()
	if ok {
		return cached
	}

	val, err := ctrl.Get(ctx, metaLimitPrefix+topic).Result()
	if err == nil {
		if n, perr := strconv.Atoi(val); perr == nil && n > 0 {
			b.mu.Lock()
			b.limits[topic] = n
			b.mu.Unlock()
			return n
		}
	}
	return b.cfg.MaxLen
}

func dataKey(topic string, id uint32) string {
	return fmt.Sprintf("%s:data:%d", topic, id)
}

// Push publishes the frame: payload to the data plane, id to the control
// queue, trim to capacity. One pipelined batch when the planes share an
// endpoint. Failures reconnect and retry once, then drop with a warning.
func (b *Broker) Push(ctx context.Context, topic string, frameBytes []byte) {
	if len(frameBytes) < 4 {
		return
	}
	id, err := frame.PeekID(frameBytes)
	if err != nil {
		return
	}

	err = b.withRetry(ctx, func(ctrl, data *redis.Client) error {
		limit := b.limit(ctx, ctrl, topic)
		key := dataKey(topic, id)
		idVal := strconv.FormatUint(uint64(id), 10)

		if ctrl == data {
			pipe := ctrl.Pipeline()
			pipe.Set(ctx, key, frameBytes, b.cfg.PayloadTTL)
			pipe.RPush(ctx, topic, idVal)
			pipe.LTrim(ctx, topic, int64(-limit), -1)
			_, err := pipe.Exec(ctx)
			return err
		}

		// Data plane first so the consumer only sees the id once the payload
		// exists.
		if err := data.Set(ctx, key, frameBytes, b.cfg.PayloadTTL).Err(); err != nil {
			return err
		}
		pipe := ctrl.Pipeline()
		pipe.RPush(ctx, topic, idVal)
		pipe.LTrim(ctx, topic, int64(-limit), -1)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		logger.L().WarnContext(ctx, "push dropped", "topic", topic, "frame_id", id, "error", err)
	}
}

// Pop blocks up to timeout for the oldest id, then fetches its payload.
func (b *Broker) Pop(ctx context.Context, topic string, timeout time.Duration) []byte {
	if timeout <= 0 {
		timeout = broker.DefaultPopTimeout
	}

	var payload []byte
	err := b.withRetry(ctx, func(ctrl, data *redis.Client) error {
		res, err := ctrl.BLPop(ctx, timeout, topic).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if len(res) < 2 {
			return nil
		}

		key := topic + ":data:" + res[1]
		raw, err := data.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// TTL expired or evicted between enqueue and fetch.
			logger.L().WarnContext(ctx, "frame dropped", "error", broker.ErrPayloadMissing(key))
			return nil
		}
		if err != nil {
			return err
		}
		payload = raw
		return nil
	})
	if err != nil {
		logger.L().WarnContext(ctx, "pop failed", "topic", topic, "error", err)
		return nil
	}
	return payload
}

// PopLatest returns the most recent frame. Wiring issues Trim(topic, 1) for
// REALTIME edges, which collapses the queue so the blocking pop always yields
// the latest entry.
func (b *Broker) PopLatest(ctx context.Context, topic string, timeout time.Duration) []byte {
	return b.Pop(ctx, topic, timeout)
}

// Trim sets and persists the topic capacity.
func (b *Broker) Trim(ctx context.Context, topic string, size int) error {
	if size < 1 {
		size = 1
	}
	b.mu.Lock()
	b.limits[topic] = size
	b.mu.Unlock()

	return b.withRetry(ctx, func(ctrl, _ *redis.Client) error {
		pipe := ctrl.Pipeline()
		pipe.Set(ctx, metaLimitPrefix+topic, strconv.Itoa(size), 0)
		pipe.LTrim(ctx, topic, int64(-size), -1)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// QueueSize returns the control queue length, 0 when unreachable.
func (b *Broker) QueueSize(ctx context.Context, topic string) int {
	var size int
	err := b.withRetry(ctx, func(ctrl, _ *redis.Client) error {
		n, err := ctrl.LLen(ctx, topic).Result()
		if err != nil {
			return err
		}
		size = int(n)
		return nil
	})
	if err != nil {
		return 0
	}
	return size
}

// QueueStats reports current/max for every topic that has capacity metadata.
func (b *Broker) QueueStats(ctx context.Context) map[string]broker.TopicStats {
	stats := map[string]broker.TopicStats{}
	err := b.withRetry(ctx, func(ctrl, _ *redis.Client) error {
		keys, err := ctrl.Keys(ctx, metaLimitPrefix+"*").Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			topic := strings.TrimPrefix(key, metaLimitPrefix)

			max := b.cfg.MaxLen
			if val, err := ctrl.Get(ctx, key).Result(); err == nil {
				if n, perr := strconv.Atoi(val); perr == nil {
					max = n
				}
			}
			current, _ := ctrl.LLen(ctx, topic).Result()
			stats[topic] = broker.TopicStats{Current: int(current), Max: max}
		}
		return nil
	})
	if err != nil {
		logger.L().WarnContext(ctx, "queue stats failed", "error", err)
	}
	return stats
}

// Reset clears control-plane state: capacity metadata and the id queues it
// names. Data-plane payloads age out on their own TTL.
func (b *Broker) Reset(ctx context.Context) error {
	b.mu.Lock()
	b.limits = map[string]int{}
	b.mu.Unlock()

	return b.withRetry(ctx, func(ctrl, _ *redis.Client) error {
		keys, err := ctrl.Keys(ctx, metaLimitPrefix+"*").Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			topic := strings.TrimPrefix(key, metaLimitPrefix)
			if err := ctrl.Del(ctx, key, topic).Err(); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases both plane connections.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked()
	return nil
}

// withRetry runs op against live clients, reconnecting and retrying once on
// transport failure.
func (b *Broker) withRetry(ctx context.Context, op func(ctrl, data *redis.Client) error) error {
	ctrl, data, err := b.clients(ctx)
	if err != nil {
		return err
	}
	if err := op(ctrl, data); err != nil {
		if !isNetworkErr(err) {
			return err
		}
		b.invalidate()
		ctrl, data, derr := b.clients(ctx)
		if derr != nil {
			return derr
		}
		return op(ctrl, data)
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
