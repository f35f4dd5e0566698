package wiring_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolgugu/edgeflow/pkg/broker/adapters/memory"
	"github.com/seolgugu/edgeflow/pkg/gateway"
	"github.com/seolgugu/edgeflow/pkg/node"
	"github.com/seolgugu/edgeflow/pkg/wiring"
)

type fakeProducer struct{}

func (fakeProducer) Loop(context.Context) ([]byte, error) { return []byte("x"), nil }

type fakeConsumer struct{}

func (fakeConsumer) Loop(_ context.Context, p []byte) ([]byte, map[string]any, error) {
	return p, nil, nil
}

func register(t *testing.T) {
	t.Helper()
	wiring.ResetRegistry()
	node.Register("nodes/camera", func() node.Runner { return node.NewProducer(fakeProducer{}) })
	node.Register("nodes/detector", func() node.Runner { return node.NewConsumer(fakeConsumer{}) })
	node.Register("nodes/gateway", func() node.Runner {
		return node.NewGateway(gateway.NewWeb(gateway.WebConfig{}))
	})
}

func TestNodeDetectsTypeAndName(t *testing.T) {
	register(t)
	sys := wiring.NewSystem("robot", memory.New())

	cam := sys.Node("nodes/camera", wiring.WithFPS(15))
	gw := sys.Node("nodes/gateway", wiring.WithPort(9000))

	assert.Equal(t, "camera", cam.Name)
	assert.Equal(t, node.KindProducer, cam.Config.Type)
	assert.Equal(t, 15.0, cam.Config.FPS)
	assert.Equal(t, node.KindGateway, gw.Config.Type)
	assert.Equal(t, 9000, gw.Config.Port)
}

func TestSpecsAreInternedAcrossSystems(t *testing.T) {
	register(t)
	b := memory.New()
	sysA := wiring.NewSystem("a", b)
	sysB := wiring.NewSystem("b", b)

	specA := sysA.Node("nodes/camera")
	specB := sysB.Node("nodes/camera")
	assert.Same(t, specA, specB)
}

func TestLinkPicksProtocolAndChains(t *testing.T) {
	register(t)
	sys := wiring.NewSystem("robot", memory.New())

	cam := sys.Node("nodes/camera")
	det := sys.Node("nodes/detector")
	gw := sys.Node("nodes/gateway")

	sys.Link(cam).To(det, wiring.WithQoS(node.Durable), wiring.WithQueueSize(50)).To(gw)

	// camera -> detector rides the broker with DURABLE QoS.
	require.Len(t, cam.Config.Targets, 1)
	assert.Equal(t, node.ProtocolBroker, cam.Config.Targets[0].Protocol)
	assert.Equal(t, node.Durable, cam.Config.Targets[0].QoS)
	assert.Equal(t, 50, cam.Config.Targets[0].QueueSize)
	require.Len(t, det.Config.Sources, 1)
	assert.Equal(t, "camera", det.Config.Sources[0].Name)
	assert.Equal(t, node.Durable, det.Config.Sources[0].QoS)

	// detector -> gateway switches to tcp because the target is a gateway.
	require.Len(t, det.Config.Targets, 1)
	assert.Equal(t, node.ProtocolTCP, det.Config.Targets[0].Protocol)
}

func TestChannelForcesTCP(t *testing.T) {
	register(t)
	sys := wiring.NewSystem("robot", memory.New())

	cam := sys.Node("nodes/camera")
	det := sys.Node("nodes/detector")

	sys.Link(cam).To(det, wiring.WithChannel("raw"))
	require.Len(t, cam.Config.Targets, 1)
	assert.Equal(t, node.ProtocolTCP, cam.Config.Targets[0].Protocol)
	assert.Equal(t, "raw", cam.Config.Targets[0].Channel)
}

func TestUnknownPathProbesGeneric(t *testing.T) {
	wiring.ResetRegistry()
	sys := wiring.NewSystem("x", memory.New())
	spec := sys.Node("nodes/unregistered")
	assert.Equal(t, node.KindGeneric, spec.Config.Type)
}
