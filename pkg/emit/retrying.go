package emit

import (
	"context"

	"github.com/queuebridge/sqlblocks/pkg/events"
	"github.com/queuebridge/sqlblocks/pkg/retry"
)

// Retrying wraps an emitter with a retry policy. Events that exhaust their
// attempts land in the retryer's DLQ with the full envelope, so they can be
// replayed later.
type Retrying struct {
	inner   Emitter
	retryer *retry.Retryer
}

// WithRetry wraps e. A nil retryer returns e unchanged.
func WithRetry(e Emitter, r *retry.Retryer) Emitter {
	if r == nil {
		return e
	}
	return &Retrying{inner: e, retryer: r}
}

func (r *Retrying) Connect(ctx context.Context) error {
	return r.retryer.Do(ctx, r.inner.Connect)
}

func (r *Retrying) Emit(ctx context.Context, ev *events.Event) error {
	return r.retryer.DoWithData(ctx, func(ctx context.Context) error {
		return r.inner.Emit(ctx, ev)
	}, ev)
}

func (r *Retrying) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }
func (r *Retrying) Close() error                   { return r.inner.Close() }
func (r *Retrying) Type() string                   { return r.inner.Type() }
