package node

import (
	"context"
	"time"

	"github.com/seolgugu/edgeflow/pkg/errframe"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// ConsumerLoop is the user hook of a consumer node. It receives the input
// payload and returns the transformed payload plus optional metadata to
// merge into the outgoing frame. A nil payload skips dispatch.
type ConsumerLoop interface {
	Loop(ctx context.Context, payload []byte) ([]byte, map[string]any, error)
}

// popTimeout bounds each blocking read so the driver observes cancellation.
const popTimeout = time.Second

// Consumer reads its single wired input topic, runs the user loop and
// repacks non-nil results preserving the inbound frame id and timestamp.
// Iteration errors are logged and skipped; the stream continues.
type Consumer struct {
	Base

	impl ConsumerLoop
}

// NewConsumer wraps the user implementation.
func NewConsumer(impl ConsumerLoop) *Consumer {
	return &Consumer{impl: impl}
}

func (c *Consumer) Kind() Kind { return KindConsumer }

// Execute drives the consumer until ctx is canceled.
func (c *Consumer) Execute(ctx context.Context) error {
	defer c.CloseHandlers()
	defer runTeardown(ctx, c.impl)

	inputs := c.Inputs()
	if len(inputs) == 0 {
		return ErrNoInput(c.Name)
	}
	input := inputs[0]

	if err := runSetup(ctx, c.impl); err != nil {
		// Keep the stream visible downstream instead of dying silently.
		logger.L().ErrorContext(ctx, "entering setup-error loop",
			"error", ErrSetupFailure(c.Name, err))
		c.setupErrorLoop(ctx, err)
		return nil
	}

	// The wired input QoS picks the pop flavor once, before the loop.
	pop := c.Broker().Pop
	if input.QoS == Realtime || input.QoS == "" {
		pop = c.Broker().PopLatest
	}

	logger.L().InfoContext(ctx, "consumer started",
		"node", c.Name, "topic", input.Name, "qos", input.QoS)

	for ctx.Err() == nil {
		packet := pop(ctx, input.Name, popTimeout)
		if packet == nil {
			continue
		}

		f, err := frame.Decode(packet)
		if err != nil {
			logger.L().WarnContext(ctx, "discarding undecodable frame",
				"topic", input.Name, "error", err)
			continue
		}

		out, meta, err := c.impl.Loop(ctx, f.Payload)
		if err != nil {
			logger.L().ErrorContext(ctx, "consumer iteration failed",
				"error", ErrRuntimeFailure(c.Name, err))
			continue
		}
		if out == nil {
			continue
		}

		// Repack preserving identity and capture time.
		resp := &frame.Frame{
			ID:        f.ID,
			Timestamp: f.Timestamp,
			Meta:      map[string]any{},
			Payload:   out,
		}
		for k, v := range meta {
			resp.Meta[k] = v
		}
		c.Dispatch(resp)
	}
	return nil
}

// setupErrorLoop emits a setup-error frame every second until shutdown.
func (c *Consumer) setupErrorLoop(ctx context.Context, setupErr error) {
	var id uint32
	for ctx.Err() == nil {
		f := &frame.Frame{
			ID:        id,
			Timestamp: frame.Now(),
			Meta:      map[string]any{},
			Payload:   errframe.Render(errframe.Setup, setupErr.Error()),
		}
		id++
		c.Dispatch(f)

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}
