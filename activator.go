package compose

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gburgyan/go-timing"
	"go.uber.org/zap"
)

// activateBinding produces the value of one import as seen from the requesting scope.
func (c *Container) activateBinding(ctx context.Context, requester *Scope, b Binding) (*importValue, error) {
	iv := &importValue{desc: b.Import}
	if b.Deferred {
		iv.deferred = newDeferredRef(requester, b)
		return iv, nil
	}

	values := make([]any, 0, len(b.Targets))
	for _, t := range b.Targets {
		a, err := c.activateNode(ctx, requester, t)
		if err != nil {
			return nil, err
		}
		values = append(values, a.instance)
	}

	if b.Import.Cardinality == ZeroOrMore {
		iv.many = values
	} else if len(values) == 1 {
		iv.single = values[0]
		iv.present = true
	}
	return iv, nil
}

// activateNode returns the activation of the node's part for a request coming from requester.
// Non-shared parts are always constructed anew and owned by the requester. Shared parts are
// claimed in the nearest scope of their boundary: the first caller constructs, everyone arriving
// while that is in progress waits for the same result.
func (c *Container) activateNode(ctx context.Context, requester *Scope, n *GraphNode) (*Activation, error) {
	p := n.part
	if !p.shared {
		a, err := c.construct(ctx, requester, n)
		if err != nil {
			return nil, err
		}
		if err := requester.publish(a); err != nil {
			c.disposeOrphan(ctx, a)
			return nil, err
		}
		c.logger.Debug("activated part",
			zap.String("part", string(p.id)),
			zap.String("scope", requester.id.String()),
			zap.String("boundary", string(requester.boundary)),
			zap.Bool("shared", false))
		return a, nil
	}

	owner := requester.nearest(p.boundary)
	if owner == nil {
		err := &CompositionError{
			Kind:    ErrBoundaryNotAvailable,
			Message: fmt.Sprintf("boundary %q is not open on scope chain %v", p.boundary, requester.Chain()),
			Part:    p.id,
		}
		c.compositionFailed(err)
		return nil, err
	}
	if a, ok := owner.cached(p.id); ok {
		return a, nil
	}

	claimCtx, err := enterClaim(ctx, claimKey{scope: owner, part: p.id}, p.id)
	if err != nil {
		c.compositionFailed(err)
		return nil, err
	}

	result, err, _ := owner.flight.Do(string(p.id), func() (any, error) {
		// Another claimant may have published between our cache check and winning the flight.
		if a, ok := owner.cached(p.id); ok {
			return a, nil
		}
		a, err := c.construct(claimCtx, owner, n)
		if err != nil {
			return nil, err
		}
		if err := owner.publish(a); err != nil {
			c.disposeOrphan(claimCtx, a)
			return nil, err
		}
		c.logger.Debug("activated part",
			zap.String("part", string(p.id)),
			zap.String("scope", owner.id.String()),
			zap.String("boundary", string(owner.boundary)),
			zap.Bool("shared", true))
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Activation), nil
}

// construct resolves every direct import of the node from owner, then runs the recipe. Nothing
// is recorded here; the caller publishes the activation.
func (c *Container) construct(ctx context.Context, owner *Scope, n *GraphNode) (*Activation, error) {
	p := n.part
	in := Imports{part: p.id, values: make(map[string]*importValue, len(n.bindings))}
	for _, b := range n.bindings {
		iv, err := c.activateBinding(ctx, owner, b)
		if err != nil {
			return nil, err
		}
		in.values[b.Import.Name] = iv
	}

	start := time.Now()
	instance, err := c.runRecipe(ctx, p, in)
	c.metrics.activated(p, time.Since(start), err)
	if err != nil {
		c.logger.Debug("activation failed",
			zap.String("part", string(p.id)),
			zap.String("scope", owner.id.String()),
			zap.Error(err))
		return nil, &CompositionError{
			Kind:        ErrActivationFailed,
			Message:     "recipe failed",
			Part:        p.id,
			SourceError: err,
		}
	}
	return &Activation{instance: instance, part: p, scope: owner}, nil
}

func (c *Container) runRecipe(ctx context.Context, p *PartDescriptor, in Imports) (instance any, err error) {
	if c.timing == TimingActivations {
		timingCtx, complete := timing.Start(ctx, "part:"+string(p.id))
		defer complete()
		ctx = timingCtx
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in activation recipe",
				zap.String("part", string(p.id)),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			instance = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return p.recipe(detach(ctx), in)
}

// disposeOrphan releases an instance that was constructed but could not be published because its
// scope started closing in the meantime.
func (c *Container) disposeOrphan(ctx context.Context, a *Activation) {
	if err := a.dispose(ctx); err != nil {
		c.logger.Warn("failed to dispose orphaned activation",
			zap.String("part", string(a.part.id)),
			zap.Error(err))
	}
}
