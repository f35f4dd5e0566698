package node_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seolgugu/edgeflow/pkg/broker/adapters/memory"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/node"
)

type countingProducer struct {
	setupCalls int
	setupErr   error
	loopErr    error
}

func (p *countingProducer) Setup(context.Context) error {
	p.setupCalls++
	return p.setupErr
}

func (p *countingProducer) Loop(context.Context) ([]byte, error) {
	if p.loopErr != nil {
		return nil, p.loopErr
	}
	return []byte("tick"), nil
}

func producerConfig(name string, fps float64) node.Config {
	return node.Config{
		Name: name,
		Type: node.KindProducer,
		FPS:  fps,
		Targets: []node.TargetRef{
			{Name: "sink", Protocol: node.ProtocolBroker, QoS: node.Durable},
		},
	}
}

func runFor(t *testing.T, r node.Runner, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, r.Execute(ctx))
}

func TestProducerDispatchesIncreasingIDs(t *testing.T) {
	b := memory.New()
	p := node.NewProducer(&countingProducer{})
	require.NoError(t, p.Configure(producerConfig("cam", 100), b))

	runFor(t, p, 300*time.Millisecond)

	ctx := context.Background()
	var ids []uint32
	for {
		packet := b.Pop(ctx, "cam", 20*time.Millisecond)
		if packet == nil {
			break
		}
		f, err := frame.Decode(packet)
		require.NoError(t, err)
		ids = append(ids, f.ID)
		assert.Equal(t, []byte("tick"), f.Payload)
		assert.NotEmpty(t, f.Meta["worker_id"])
	}
	require.NotEmpty(t, ids)
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestProducerSetupFailureEmitsErrorFrames(t *testing.T) {
	b := memory.New()
	impl := &countingProducer{setupErr: errors.New("camera device not found")}
	p := node.NewProducer(impl)
	require.NoError(t, p.Configure(producerConfig("cam", 50), b))

	runFor(t, p, 200*time.Millisecond)

	// Setup ran exactly once; the node stayed alive emitting JPEG fallbacks.
	assert.Equal(t, 1, impl.setupCalls)

	packet := b.Pop(context.Background(), "cam", 100*time.Millisecond)
	require.NotNil(t, packet)
	f, err := frame.Decode(packet)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(f.Payload))
	assert.NoError(t, err, "setup-error payload must be a renderable JPEG")
}

func TestProducerRuntimeFailureCoolsDown(t *testing.T) {
	b := memory.New()
	impl := &countingProducer{loopErr: errors.New("boom")}
	p := node.NewProducer(impl)
	require.NoError(t, p.Configure(producerConfig("cam", 100), b))

	start := time.Now()
	runFor(t, p, 250*time.Millisecond)
	elapsed := time.Since(start)

	// With a 1s cooldown per failure, at most one error frame fits in 250ms.
	count := 0
	for b.Pop(context.Background(), "cam", 10*time.Millisecond) != nil {
		count++
	}
	assert.Equal(t, 1, count)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
}

type upperConsumer struct{}

func (upperConsumer) Loop(_ context.Context, payload []byte) ([]byte, map[string]any, error) {
	return bytes.ToUpper(payload), map[string]any{"stage": "upper"}, nil
}

func TestConsumerRepacksPreservingIdentity(t *testing.T) {
	b := memory.New()

	c := node.NewConsumer(upperConsumer{})
	require.NoError(t, c.Configure(node.Config{
		Name:    "proc",
		Type:    node.KindConsumer,
		Sources: []node.SourceRef{{Name: "cam", QoS: node.Durable}},
		Targets: []node.TargetRef{{Name: "sink", Protocol: node.ProtocolBroker, QoS: node.Durable}},
	}, b))

	ctx := context.Background()
	in := &frame.Frame{ID: 41, Timestamp: 12.25, Payload: []byte("abc")}
	b.Push(ctx, "cam", frame.Encode(in))

	runFor(t, c, 300*time.Millisecond)

	packet := b.Pop(ctx, "proc", 100*time.Millisecond)
	require.NotNil(t, packet)
	out, err := frame.Decode(packet)
	require.NoError(t, err)
	assert.Equal(t, uint32(41), out.ID)
	assert.Equal(t, 12.25, out.Timestamp)
	assert.Equal(t, []byte("ABC"), out.Payload)
	assert.Equal(t, "upper", out.Meta["stage"])
}

type failingConsumer struct{ calls int }

func (f *failingConsumer) Loop(context.Context, []byte) ([]byte, map[string]any, error) {
	f.calls++
	return nil, nil, errors.New("inference failed")
}

func TestConsumerSkipsFailingIterations(t *testing.T) {
	b := memory.New()
	impl := &failingConsumer{}
	c := node.NewConsumer(impl)
	require.NoError(t, c.Configure(node.Config{
		Name:    "proc",
		Sources: []node.SourceRef{{Name: "cam", QoS: node.Durable}},
		Targets: []node.TargetRef{{Name: "sink", Protocol: node.ProtocolBroker, QoS: node.Durable}},
	}, b))

	ctx := context.Background()
	for id := uint32(1); id <= 3; id++ {
		b.Push(ctx, "cam", frame.Encode(frame.New(id, []byte("x"))))
	}

	runFor(t, c, 300*time.Millisecond)

	assert.Equal(t, 3, impl.calls)
	assert.Nil(t, b.Pop(ctx, "proc", 20*time.Millisecond))
}

func TestConsumerWithoutInputFails(t *testing.T) {
	c := node.NewConsumer(upperConsumer{})
	require.NoError(t, c.Configure(node.Config{Name: "proc"}, memory.New()))
	assert.Error(t, c.Execute(context.Background()))
}

func TestRegistryBuildFallsBackToLoadError(t *testing.T) {
	node.Register("nodes/known", func() node.Runner { return node.NewProducer(&countingProducer{}) })

	kind, ok := node.ProbeKind("nodes/known")
	assert.True(t, ok)
	assert.Equal(t, node.KindProducer, kind)

	r := node.Build("nodes/missing")
	require.NotNil(t, r)
	assert.Equal(t, node.KindProducer, r.Kind())

	b := memory.New()
	require.NoError(t, r.Configure(producerConfig("ghost", 0), b))
	runFor(t, r, 150*time.Millisecond)

	packet := b.Pop(context.Background(), "ghost", 100*time.Millisecond)
	require.NotNil(t, packet, "load-error node must keep publishing")
	f, err := frame.Decode(packet)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(f.Payload))
	assert.NoError(t, err)
}

func TestParseConfig(t *testing.T) {
	blob := `{"name":"cam","type":"producer","fps":15,
		"sources":[{"name":"a","qos":"durable"}],
		"targets":[{"name":"gw","protocol":"tcp","channel":"cam0","qos":"realtime"}],
		"broker":{"driver":"memory","maxlen":100}}`

	cfg, err := node.ParseConfig(blob)
	require.NoError(t, err)
	assert.Equal(t, "cam", cfg.Name)
	assert.Equal(t, node.KindProducer, cfg.Type)
	assert.Equal(t, 15.0, cfg.FPS)
	assert.Equal(t, node.Durable, cfg.Sources[0].QoS)
	assert.Equal(t, "cam0", cfg.Targets[0].Channel)
	assert.Equal(t, "memory", cfg.Broker["driver"])

	_, err = node.ParseConfig("{not json")
	assert.Error(t, err)
}
