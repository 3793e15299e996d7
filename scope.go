package compose

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Scope is one open sharing boundary. Shared parts whose boundary matches are cached here, and every
// activation owned by the scope is disposed when it closes. Scopes nest: a child never outlives its
// parent, and closing a parent closes the children first.
type Scope struct {
	id        uuid.UUID
	boundary  Boundary
	parent    *Scope
	container *Container
	flight    singleflight.Group

	mu          sync.Mutex
	shared      map[PartID]*Activation
	activations []*Activation
	children    []*Scope
	closing     bool
	closeDone   chan struct{}
	closeErr    error
}

// Activation is a constructed instance of a part, owned by exactly one scope.
type Activation struct {
	instance any
	part     *PartDescriptor
	scope    *Scope
	disposed atomic.Bool
}

func (a *Activation) Instance() any { return a.instance }

func (a *Activation) Part() *PartDescriptor { return a.part }

func (a *Activation) Scope() *Scope { return a.scope }

func newScope(c *Container, boundary Boundary, parent *Scope) *Scope {
	return &Scope{
		id:        uuid.New(),
		boundary:  boundary,
		parent:    parent,
		container: c,
		shared:    map[PartID]*Activation{},
	}
}

func (s *Scope) ID() uuid.UUID { return s.id }

func (s *Scope) Boundary() Boundary { return s.boundary }

// Parent returns the enclosing scope, or nil for a container's root scope.
func (s *Scope) Parent() *Scope { return s.parent }

func (s *Scope) Container() *Container { return s.container }

// Closed reports whether the scope has started closing.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Chain lists the boundaries visible from this scope, innermost first.
func (s *Scope) Chain() []Boundary {
	var chain []Boundary
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur.boundary)
	}
	return chain
}

// Open starts a nested scope for the boundary.
func (s *Scope) Open(boundary Boundary) (*Scope, error) {
	if boundary == "" {
		return nil, fmt.Errorf("compose: scope boundary must not be empty")
	}
	child := newScope(s.container, boundary, s)

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, fmt.Errorf("compose: open %q under %s: %w", boundary, s.describe(), ErrScopeClosed)
	}
	s.children = append(s.children, child)
	s.mu.Unlock()

	s.container.metrics.scopeOpened(boundary)
	s.container.logger.Debug("scope opened",
		zap.String("scope", child.id.String()),
		zap.String("boundary", string(boundary)),
		zap.String("parent", s.id.String()))
	return child, nil
}

// nearest finds the closest scope, starting at s, that is open for the boundary.
func (s *Scope) nearest(boundary Boundary) *Scope {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.boundary == boundary {
			return cur
		}
	}
	return nil
}

// Resolve composes imp against the container's catalog from this scope and activates whatever it
// binds to. Composition errors are reported before anything is constructed. A deferred import
// yields a single *DeferredRef.
func (s *Scope) Resolve(ctx context.Context, imp ImportDescriptor) ([]any, error) {
	if s.Closed() {
		return nil, fmt.Errorf("compose: resolve %v in %s: %w", imp.Contract, s.describe(), ErrScopeClosed)
	}
	g, err := BuildGraph(s.container.catalog, imp, s.Chain())
	if err != nil {
		if ce, ok := err.(*CompositionError); ok {
			ce.Status = s.Status()
		}
		s.container.compositionFailed(err)
		return nil, err
	}
	iv, err := s.container.activateBinding(ctx, s, g.root)
	if err != nil {
		return nil, err
	}
	if iv.deferred != nil {
		return []any{iv.deferred}, nil
	}
	if imp.Cardinality == ZeroOrMore {
		return iv.many, nil
	}
	if !iv.present {
		return nil, nil
	}
	return []any{iv.single}, nil
}

// Activate composes and activates a specific part from this scope, honoring its sharing boundary.
func (s *Scope) Activate(ctx context.Context, p *PartDescriptor) (*Activation, error) {
	if s.Closed() {
		return nil, fmt.Errorf("compose: activate %s in %s: %w", p.id, s.describe(), ErrScopeClosed)
	}
	g, err := buildPartGraph(s.container.catalog, p, s.Chain())
	if err != nil {
		s.container.compositionFailed(err)
		return nil, err
	}
	return s.container.activateNode(ctx, s, g.nodes[0])
}

// cached returns the shared activation of the part in this scope, if it has been published.
func (s *Scope) cached(id PartID) (*Activation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.shared[id]
	return a, ok
}

// publish records an activation. Shared activations are also cached. Once the scope has started
// closing nothing more is recorded; the caller owns disposing the orphan.
func (s *Scope) publish(a *Activation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return fmt.Errorf("compose: publish %s in %s: %w", a.part.id, s.describe(), ErrScopeClosed)
	}
	if a.part.shared {
		s.shared[a.part.id] = a
	}
	s.activations = append(s.activations, a)
	return nil
}

func (s *Scope) removeChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

func (s *Scope) describe() string {
	return fmt.Sprintf("scope %s (%s)", s.id, s.boundary)
}
