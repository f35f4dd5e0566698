package node

import (
	"context"

	"github.com/seolgugu/edgeflow/pkg/errframe"
)

// loadErrorLoop is the producer-shaped fallback for workers that cannot
// build their node: it emits a load-failure frame every cycle so the
// pipeline shows the failure instead of starving downstream.
type loadErrorLoop struct {
	message string
}

func (l *loadErrorLoop) Loop(context.Context) ([]byte, error) {
	return errframe.Render(errframe.Load, l.message), nil
}

// NewLoadError builds the framework-error node carrying the load failure
// message, paced at 1 fps.
func NewLoadError(message string) Runner {
	p := NewProducer(&loadErrorLoop{message: message})
	p.fps = 1
	return p
}
