package node

import (
	"context"
	"time"

	"github.com/seolgugu/edgeflow/pkg/broker"
	"github.com/seolgugu/edgeflow/pkg/errframe"
	"github.com/seolgugu/edgeflow/pkg/frame"
	"github.com/seolgugu/edgeflow/pkg/logger"
)

// ProducerLoop is the user hook of a producer node. Returning a nil payload
// with a nil error skips the iteration.
type ProducerLoop interface {
	Loop(ctx context.Context) ([]byte, error)
}

// producerState tags the driver behavior after setup.
type producerState int

const (
	healthy producerState = iota
	setupFailed
)

// runtimeCooldown holds a crashing loop back from spinning hot.
const runtimeCooldown = time.Second

// Producer paces the user loop at a target fps and dispatches each payload
// as a frame with an incrementing id. A failed setup permanently switches
// the driver to emitting setup-error frames instead of crashing the worker;
// a failing iteration emits one runtime-error frame and cools down for a
// second.
type Producer struct {
	Base

	impl ProducerLoop
	fps  float64

	state    producerState
	setupErr error
	nextID   uint32
}

// NewProducer wraps the user implementation. Defaults to 30 fps until the
// wiring config overrides it.
func NewProducer(impl ProducerLoop) *Producer {
	return &Producer{impl: impl, fps: 30}
}

func (p *Producer) Kind() Kind { return KindProducer }

func (p *Producer) Configure(cfg Config, bk broker.Broker) error {
	if err := p.Base.Configure(cfg, bk); err != nil {
		return err
	}
	if cfg.FPS > 0 {
		p.fps = cfg.FPS
	}
	return nil
}

// Execute drives the producer until ctx is canceled.
func (p *Producer) Execute(ctx context.Context) error {
	defer p.CloseHandlers()
	defer runTeardown(ctx, p.impl)

	if err := runSetup(ctx, p.impl); err != nil {
		// The node stays alive and visible rather than crash-looping.
		p.state = setupFailed
		p.setupErr = err
		logger.L().ErrorContext(ctx, "entering setup-error loop",
			"error", ErrSetupFailure(p.Name, err))
	}

	logger.L().InfoContext(ctx, "producer started", "node", p.Name, "fps", p.fps)
	period := time.Duration(float64(time.Second) / p.fps)

	for ctx.Err() == nil {
		start := time.Now()

		payload, cooldown := p.produce(ctx)
		if payload != nil {
			f := &frame.Frame{
				ID:        p.nextID,
				Timestamp: frame.Now(),
				Meta:      map[string]any{},
				Payload:   payload,
			}
			p.nextID++ // wraps at 2^32 by uint32 arithmetic
			p.Dispatch(f)
		}

		wait := period - time.Since(start)
		if cooldown > wait {
			wait = cooldown
		}
		if wait > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
	return nil
}

// produce runs one iteration and returns the payload to dispatch plus an
// extra cooldown for failure backpressure.
func (p *Producer) produce(ctx context.Context) ([]byte, time.Duration) {
	if p.state == setupFailed {
		return errframe.Render(errframe.Setup, p.setupErr.Error()), 0
	}

	payload, err := p.impl.Loop(ctx)
	if err != nil {
		logger.L().ErrorContext(ctx, "producer iteration failed",
			"error", ErrRuntimeFailure(p.Name, err))
		return errframe.Render(errframe.Runtime, err.Error()), runtimeCooldown
	}
	return payload, 0
}
