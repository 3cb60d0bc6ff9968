package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/DarrenZal/koi-node/internal/logger"
	"github.com/DarrenZal/koi-node/internal/metrics"
)

// Pipeline runs an Object through the five fixed phases in order, applying
// every Handler registered for a phase (in registration order) before
// advancing to the next.
type Pipeline struct {
	ctx      *Context
	handlers []Handler
	log      logger.Logger
}

// New builds a Pipeline bound to hctx, running handlers in the order given.
func New(hctx *Context, handlers []Handler, log logger.Logger) *Pipeline {
	return &Pipeline{ctx: hctx, handlers: handlers, log: log}
}

// Process runs obj through every phase. A nil Object with a nil error means
// some handler stopped the chain; the object should be considered dropped,
// not failed.
func (p *Pipeline) Process(ctx context.Context, obj *Object) (*Object, error) {
	for _, phase := range phases {
		start := time.Now()
		stopped, err := p.runPhase(ctx, phase, obj)
		metrics.PipelinePhaseDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}
		if stopped {
			return nil, nil
		}
	}
	metrics.PipelineObjectsProcessed.Inc()
	return obj, nil
}

func (p *Pipeline) runPhase(ctx context.Context, phase Phase, obj *Object) (stopped bool, err error) {
	for _, h := range p.handlers {
		if h.Phase != phase || !h.matches(obj) {
			continue
		}
		if err := h.Fn(ctx, p.ctx, obj); err != nil {
			if errors.Is(err, ErrStopChain) {
				metrics.PipelineStopChain.WithLabelValues(string(phase), h.Name).Inc()
				return true, nil
			}
			return false, err
		}
	}
	return false, nil
}
