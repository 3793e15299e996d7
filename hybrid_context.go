package compose

import (
	"context"
	"time"
)

// hybridContext takes its values from valueContext and its deadline and cancellation from
// timingContext. Recipes of shared parts run on one whose timing side is never cancelled, so the
// caller that happened to claim the construction cannot abort it halfway.
type hybridContext struct {
	valueContext  context.Context
	timingContext context.Context
}

func detach(ctx context.Context) context.Context {
	return &hybridContext{
		valueContext:  ctx,
		timingContext: context.Background(),
	}
}

func (h *hybridContext) Deadline() (deadline time.Time, ok bool) {
	return h.timingContext.Deadline()
}

func (h *hybridContext) Done() <-chan struct{} {
	return h.timingContext.Done()
}

func (h *hybridContext) Err() error {
	return h.timingContext.Err()
}

func (h *hybridContext) Value(key any) any {
	return h.valueContext.Value(key)
}
