package compose

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DeferredRef is the value handed to a recipe for a lazy import. Its targets are activated on first
// access, from the scope the importing part was constructed in. Concurrent first accesses from
// outside any construction share one activation; a failed access leaves the reference unresolved so
// a later access can try again.
type DeferredRef struct {
	scope   *Scope
	binding Binding

	flight singleflight.Group
	mu     sync.Mutex
	done   bool
	values []any
}

func newDeferredRef(scope *Scope, b Binding) *DeferredRef {
	return &DeferredRef{scope: scope, binding: b}
}

// Available reports whether the reference has anything to resolve to.
func (d *DeferredRef) Available() bool {
	return len(d.binding.Targets) > 0
}

// Resolved reports whether the reference has been accessed successfully.
func (d *DeferredRef) Resolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Value activates the single target of the reference on first use. An optional import with no
// target yields nil.
func (d *DeferredRef) Value(ctx context.Context) (any, error) {
	values, err := d.resolve(ctx)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

// Values activates every target of a ZeroOrMore reference on first use.
func (d *DeferredRef) Values(ctx context.Context) ([]any, error) {
	values, err := d.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return append([]any(nil), values...), nil
}

func (d *DeferredRef) resolve(ctx context.Context) ([]any, error) {
	if values, ok := d.published(); ok {
		return values, nil
	}
	claimCtx, err := enterClaim(ctx, d, d.label())
	if err != nil {
		return nil, err
	}

	// A caller that is itself inside a construction must not wait on another goroutine's access to
	// this reference: that goroutine may be waiting for the very construction this caller is in.
	// It activates on its own and the claim chain reports any re-entry as a cycle.
	if currentClaims(ctx) != nil {
		values, err := d.activate(claimCtx)
		if err != nil {
			return nil, err
		}
		return d.publish(values), nil
	}

	result, err, _ := d.flight.Do("", func() (any, error) {
		if values, ok := d.published(); ok {
			return values, nil
		}
		values, err := d.activate(claimCtx)
		if err != nil {
			return nil, err
		}
		return d.publish(values), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]any), nil
}

func (d *DeferredRef) activate(ctx context.Context) ([]any, error) {
	c := d.scope.container
	values := make([]any, 0, len(d.binding.Targets))
	for _, t := range d.binding.Targets {
		a, err := c.activateNode(ctx, d.scope, t)
		if err != nil {
			return nil, err
		}
		values = append(values, a.instance)
	}
	return values, nil
}

func (d *DeferredRef) published() ([]any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values, d.done
}

// publish records values unless another access got there first, and returns whichever won.
func (d *DeferredRef) publish(values []any) []any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.done {
		d.values = values
		d.done = true
	}
	return d.values
}

func (d *DeferredRef) label() PartID {
	if len(d.binding.Targets) > 0 {
		return d.binding.Targets[0].part.id
	}
	return PartID(d.binding.Import.Name)
}

// Lazy is a typed view over a DeferredRef.
type Lazy[T any] struct {
	ref *DeferredRef
}

// Get activates the target on first use and returns it as T.
func (l Lazy[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if l.ref == nil {
		return zero, fmt.Errorf("compose: uninitialized Lazy[%v]", reflect.TypeOf(&zero).Elem())
	}
	raw, err := l.ref.Value(ctx)
	if err != nil || raw == nil {
		return zero, err
	}
	val, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("compose: deferred import %q resolved to %T, not %v", l.ref.binding.Import.Name, raw, reflect.TypeOf(&zero).Elem())
	}
	return val, nil
}

// MustGet is Get that panics on error.
func (l Lazy[T]) MustGet(ctx context.Context) T {
	v, err := l.Get(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

func (l Lazy[T]) Ref() *DeferredRef { return l.ref }
