// Package node implements the worker-side execution model for pipeline nodes.
//
// Every node follows the same lifecycle: an optional Setup hook runs once, a
// framework-provided driver loops, and an optional Teardown hook runs on
// exit. The wiring layer freezes a node's edges into a Config blob that the
// supervisor deposits in the worker's environment; Configure applies it,
// constructing one output handler per target edge and recording input topics
// with their QoS.
//
// Node implementations register a factory under their path (see Register) so
// a fresh worker process can rebuild them without reflective module scanning.
package node

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/config"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/handler"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// Kind classifies a node's driver.
type Kind string

const (
	KindProducer Kind = "producer"
	KindConsumer Kind = "consumer"
	KindGateway  Kind = "gateway"
	KindGeneric  Kind = "generic"
)

// QoS is the per-edge delivery preference.
type QoS string

const (
	// Realtime prefers freshness: topic capacity 1, oldest evicted.
	Realtime QoS = "realtime"

	// Durable prefers ordering: FIFO with a bounded buffer, lossy on overflow.
	Durable QoS = "durable"
)

// Protocol names for target edges.
const (
	ProtocolBroker = "broker"
	ProtocolTCP    = "tcp"
)

// SourceRef is an inbound edge: the topic to read and how.
type SourceRef struct {
	Name string `json:"name"`
	QoS  QoS    `json:"qos"`
}

// TargetRef is an outbound edge.
type TargetRef struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
	Channel  string `json:"channel,omitempty"`
	QoS      QoS    `json:"qos"`

	// QueueSize overrides the DURABLE topic capacity for this edge.
	QueueSize int `json:"queue_size,omitempty"`
}

// Config is the per-instance blob materialized by the supervisor. Frozen at
// worker spawn.
type Config struct {
	Name     string      `json:"name"`
	Type     Kind        `json:"type"`
	FPS      float64     `json:"fps,omitempty"`
	Replicas int         `json:"replicas,omitempty"`
	Port     int         `json:"port,omitempty"`
	Sources  []SourceRef `json:"sources,omitempty"`
	Targets  []TargetRef `json:"targets,omitempty"`

	// Broker carries the serialized broker configuration so the worker
	// re-establishes the same broker in its own process.
	Broker map[string]any `json:"broker,omitempty"`
}

// ParseConfig decodes a NODE_CONFIG environment blob.
func ParseConfig(blob string) (Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(blob), &cfg); err != nil {
		return Config{}, ErrBadConfig(err)
	}
	return cfg, nil
}

// Runner is a configured node ready to drive.
type Runner interface {
	// Kind reports which driver this node uses. Callable before Configure.
	Kind() Kind

	// Configure applies the frozen config and constructs the node's I/O.
	Configure(cfg Config, b broker.Broker) error

	// Execute runs setup, the driver loop, and teardown. Returns when ctx is
	// canceled.
	Execute(ctx context.Context) error
}

// SetupHook is implemented by nodes with one-time initialization.
type SetupHook interface {
	Setup(ctx context.Context) error
}

// TeardownHook is implemented by nodes with exit cleanup.
type TeardownHook interface {
	Teardown(ctx context.Context)
}

// Base carries the state shared by all drivers.
type Base struct {
	Name     string
	WorkerID string

	cfg      Config
	broker   broker.Broker
	settings *config.Settings
	handlers []handler.Handler
	inputs   []SourceRef
}

// Configure applies the wiring: one output handler per target edge, input
// topics with their QoS, and the worker identity.
func (b *Base) Configure(cfg Config, bk broker.Broker) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	b.cfg = cfg
	b.Name = cfg.Name
	if b.Name == "" {
		b.Name = settings.NodeName
	}
	b.broker = bk
	b.settings = settings
	b.inputs = cfg.Sources

	b.WorkerID = settings.WorkerID
	if b.WorkerID == "" {
		b.WorkerID = uuid.NewString()
	}

	brokerTopics := map[string]bool{}
	for _, tgt := range cfg.Targets {
		switch tgt.Protocol {
		case ProtocolTCP:
			sourceID := tgt.Channel
			if sourceID == "" {
				sourceID = b.Name
			}
			h := handler.NewTCPHandler(settings.GatewayHost, settings.GatewayTCPPort, sourceID)
			b.handlers = append(b.handlers, h)
			logger.L().Info("wired tcp edge",
				"node", b.Name, "target", tgt.Name, "source_id", sourceID)
		default:
			// Pub/sub uses this node's name as topic; edges sharing it
			// collapse into one handler.
			topic := b.Name
			if brokerTopics[topic] {
				continue
			}
			brokerTopics[topic] = true

			capacity := 1
			if tgt.QoS == Durable {
				capacity = tgt.QueueSize
				if capacity <= 0 {
					capacity = broker.DefaultMaxLen
				}
			}
			h := handler.NewBrokerHandler(bk, topic, capacity)
			b.handlers = append(b.handlers, h)
			logger.L().Info("wired broker edge",
				"node", b.Name, "target", tgt.Name, "qos", tgt.QoS, "capacity", capacity)
		}
	}
	return nil
}

// Broker returns the broker this node was configured with.
func (b *Base) Broker() broker.Broker { return b.broker }

// Settings returns the worker environment settings.
func (b *Base) Settings() *config.Settings { return b.settings }

// Inputs returns the wired source edges.
func (b *Base) Inputs() []SourceRef { return b.inputs }

// Dispatch stamps the worker id and sends the frame to every output handler.
func (b *Base) Dispatch(f *frame.Frame) {
	if f == nil {
		return
	}
	f.SetMeta("worker_id", b.WorkerID)
	for _, h := range b.handlers {
		h.Send(f)
	}
}

// CloseHandlers releases every output handler.
func (b *Base) CloseHandlers() {
	for _, h := range b.handlers {
		h.Close()
	}
}

func runSetup(ctx context.Context, impl any) error {
	if s, ok := impl.(SetupHook); ok {
		return s.Setup(ctx)
	}
	return nil
}

func runTeardown(ctx context.Context, impl any) {
	if td, ok := impl.(TeardownHook); ok {
		td.Teardown(ctx)
	}
}
