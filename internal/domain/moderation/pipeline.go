package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/salehop/salehop-api/internal/pkg/logger"
)

// Pipeline normalizes and processes one event.
type Pipeline struct {
	normalizer *Normalizer
	engine     *Engine
	deadline   time.Duration
}

// NewPipeline creates a Pipeline. A zero deadline means no deadline.
func NewPipeline(normalizer *Normalizer, engine *Engine, deadline time.Duration) *Pipeline {
	return &Pipeline{normalizer: normalizer, engine: engine, deadline: deadline}
}

// Handle processes body. The error is non-nil only for malformed events.
func (p *Pipeline) Handle(ctx context.Context, body []byte) (Outcome, error) {
	if p.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}

	obj, err := p.normalizer.Normalize(ctx, body)
	switch {
	case errors.Is(err, ErrMalformedEvent):
		return Outcome{}, err
	case errors.Is(err, ErrUnroutableEvent):
		logger.FromContext(ctx).Debug().Err(err).Msg("Event ignored")
		return Ack(ResolutionIgnored), nil
	case err != nil:
		return Retry(err), nil
	}

	outcome := p.engine.Process(ctx, obj)
	if outcome.Retry && ctx.Err() != nil {
		outcome.Reason = errors.Join(outcome.Reason, ctx.Err())
	}
	return outcome, nil
}

// Provider supplies the pipeline for an invocation.
type Provider interface {
	Pipeline(ctx context.Context) (*Pipeline, error)
}

// StaticProvider always returns the same pipeline.
type StaticProvider struct {
	P *Pipeline
}

func (s StaticProvider) Pipeline(context.Context) (*Pipeline, error) {
	if s.P == nil {
		return nil, ErrNotConfigured
	}
	return s.P, nil
}

// BuildFunc constructs a pipeline and the function releasing its resources.
type BuildFunc func(ctx context.Context) (*Pipeline, func(), error)

// LazyProvider builds the pipeline on first use. A failed build is retried by
// the next invocation, so a missing setting fails each request instead of
// the process.
type LazyProvider struct {
	build BuildFunc

	mu      sync.Mutex
	p       *Pipeline
	closeFn func()
}

func NewLazyProvider(build BuildFunc) *LazyProvider {
	return &LazyProvider{build: build}
}

func (l *LazyProvider) Pipeline(ctx context.Context) (*Pipeline, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.p != nil {
		return l.p, nil
	}

	p, closeFn, err := l.build(ctx)
	if err != nil {
		return nil, errors.Join(ErrNotConfigured, err)
	}
	l.p, l.closeFn = p, closeFn
	return p, nil
}

// Close releases the resources of a built pipeline.
func (l *LazyProvider) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closeFn != nil {
		l.closeFn()
	}
	l.p, l.closeFn = nil, nil
}
