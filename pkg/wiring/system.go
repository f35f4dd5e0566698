package wiring

import (
	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/node"
)

// System is a named collection of node specs sharing one broker.
type System struct {
	Name   string
	Broker broker.Broker

	specs map[string]*Spec
}

// NewSystem creates an empty system over the given broker.
func NewSystem(name string, b broker.Broker) *System {
	return &System{Name: name, Broker: b, specs: map[string]*Spec{}}
}

// Node interns the spec for path and adds it to this system.
func (s *System) Node(path string, opts ...Option) *Spec {
	spec := intern(path, opts...)
	s.specs[path] = spec
	return spec
}

// Specs returns the system's specs keyed by path.
func (s *System) Specs() map[string]*Spec {
	return s.specs
}

// Link starts an edge chain at source.
func (s *System) Link(source *Spec) *Linker {
	return &Linker{system: s, anchor: source}
}

// LinkOption adjusts a single edge.
type LinkOption func(*edge)

type edge struct {
	qos       node.QoS
	channel   string
	queueSize int
}

// WithQoS sets the edge delivery preference. Defaults to REALTIME.
func WithQoS(q node.QoS) LinkOption {
	return func(e *edge) { e.qos = q }
}

// WithChannel names the logical TCP channel into the gateway; implies the
// tcp protocol.
func WithChannel(name string) LinkOption {
	return func(e *edge) { e.channel = name }
}

// WithQueueSize overrides the DURABLE topic capacity for this edge.
func WithQueueSize(n int) LinkOption {
	return func(e *edge) { e.queueSize = n }
}

// Linker chains edges; To returns a linker anchored at the target, so
// pipelines compose as Link(a).To(b).To(c).
type Linker struct {
	system *System
	anchor *Spec
}

// To appends an outbound edge on the anchor and an inbound edge on target.
// Protocol is tcp when the target is a gateway or a channel was given, else
// broker.
func (l *Linker) To(target *Spec, opts ...LinkOption) *Linker {
	e := edge{qos: node.Realtime}
	for _, opt := range opts {
		opt(&e)
	}

	protocol := node.ProtocolBroker
	if target.Config.Type == node.KindGateway || e.channel != "" {
		protocol = node.ProtocolTCP
	}

	l.anchor.Config.Targets = append(l.anchor.Config.Targets, node.TargetRef{
		Name:      target.Name,
		Protocol:  protocol,
		Channel:   e.channel,
		QoS:       e.qos,
		QueueSize: e.queueSize,
	})
	target.Config.Sources = append(target.Config.Sources, node.SourceRef{
		Name: l.anchor.Name,
		QoS:  e.qos,
	})

	return &Linker{system: l.system, anchor: target}
}
