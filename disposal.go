package compose

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Disposer is implemented by instances that need to release resources when their scope closes.
// A part's DisposeWith function takes precedence; io.Closer is used when neither is present.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// dispose releases the instance at most once, however many times it is called.
func (a *Activation) dispose(ctx context.Context) (err error) {
	if !a.disposed.CompareAndSwap(false, true) {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch {
	case a.part.dispose != nil:
		return a.part.dispose(ctx, a.instance)
	default:
		if d, ok := a.instance.(Disposer); ok {
			return d.Dispose(ctx)
		}
		if closer, ok := a.instance.(io.Closer); ok {
			return closer.Close()
		}
	}
	return nil
}

// Disposed reports whether the activation has been released.
func (a *Activation) Disposed() bool {
	return a.disposed.Load()
}

// Close tears the scope down: still-open children are closed first, newest first, then every
// activation the scope owns is disposed in reverse creation order. A failing disposal never stops
// the sweep; all failures come back together as a *DisposalError.
//
// Close is idempotent. Concurrent and repeated calls wait for the one sweep and return its result.
func (s *Scope) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closing {
		done := s.closeDone
		s.mu.Unlock()
		<-done
		return s.closeErr
	}
	s.closing = true
	s.closeDone = make(chan struct{})
	children := s.children
	s.children = nil
	activations := s.activations
	s.activations = nil
	s.shared = map[PartID]*Activation{}
	s.mu.Unlock()

	c := s.container
	var errs error
	for i := len(children) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, children[i].Close(ctx))
	}

	disposed := 0
	for i := len(activations) - 1; i >= 0; i-- {
		a := activations[i]
		err := a.dispose(ctx)
		c.metrics.disposed(err)
		if err != nil {
			c.logger.Warn("disposal failed",
				zap.String("part", string(a.part.id)),
				zap.String("scope", s.id.String()),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("dispose %s: %w", a.part.id, err))
			continue
		}
		disposed++
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}
	c.metrics.scopeClosed(s.boundary)
	c.logger.Debug("scope closed",
		zap.String("scope", s.id.String()),
		zap.String("boundary", string(s.boundary)),
		zap.Int("disposed", disposed),
		zap.Int("failures", len(multierr.Errors(errs))))

	if errs != nil {
		s.closeErr = &DisposalError{Scope: s.id.String(), Boundary: s.boundary, Err: errs}
	}
	close(s.closeDone)
	return s.closeErr
}
