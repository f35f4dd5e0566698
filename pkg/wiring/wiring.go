// Package wiring builds pipeline systems declaratively.
//
// A System is a named bag of node specs plus the broker they share. Specs
// are interned in a process-wide registry keyed by node path, so the same
// path used across several systems refers to one spec. Link chains edges
// with per-edge QoS:
//
//	sys := wiring.NewSystem("robot", dualredis.New(cfg))
//	cam := sys.Node("nodes/camera", wiring.WithFPS(30))
//	det := sys.Node("nodes/detector", wiring.WithReplicas(2))
//	gw := sys.Node("nodes/gateway")
//	sys.Link(cam).To(det, wiring.WithQoS(node.Durable)).To(gw)
//
//	wiring.Run(context.Background(), sys)
package wiring

import (
	"strings"
	"sync"

	"github.com/seolgugu/edgeflow/pkg/node"
)

// Spec is a frozen node description: identity, worker path and the config
// blob materialized into the worker's environment.
type Spec struct {
	Name   string
	Path   string
	Config node.Config
}

var (
	specsMu sync.Mutex
	specs   = map[string]*Spec{}
)

// Option adjusts a node spec at definition time.
type Option func(*Spec)

// WithName overrides the spec name derived from the path.
func WithName(name string) Option {
	return func(s *Spec) {
		s.Name = name
		s.Config.Name = name
	}
}

// WithFPS sets the producer pacing target.
func WithFPS(fps float64) Option {
	return func(s *Spec) { s.Config.FPS = fps }
}

// WithReplicas sets how many workers share this spec. Consumer replicas
// compete on the FIFO pop, so each frame is delivered to exactly one.
func WithReplicas(n int) Option {
	return func(s *Spec) { s.Config.Replicas = n }
}

// WithPort records a port in the spec's node config (Config.Port). The
// gateway node does not apply it: its Web interface takes the HTTP port from
// WebConfig or GATEWAY_HTTP_PORT.
func WithPort(port int) Option {
	return func(s *Spec) { s.Config.Port = port }
}

// intern returns the process-wide spec for path, creating it on first use.
// The node type is detected from the registered factory without running the
// node.
func intern(path string, opts ...Option) *Spec {
	specsMu.Lock()
	defer specsMu.Unlock()

	s, ok := specs[path]
	if !ok {
		kind, _ := node.ProbeKind(path)
		name := path
		if i := strings.LastIndexByte(path, '/'); i >= 0 {
			name = path[i+1:]
		}
		s = &Spec{
			Name: name,
			Path: path,
			Config: node.Config{
				Name: name,
				Type: kind,
			},
		}
		specs[path] = s
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResetRegistry clears the process-wide spec registry. Intended for program
// entry and tests.
func ResetRegistry() {
	specsMu.Lock()
	defer specsMu.Unlock()
	specs = map[string]*Spec{}
}
