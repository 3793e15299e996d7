package compose

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type TimingMode int

const (
	// TimingDisable will not record timing information.
	TimingDisable TimingMode = iota

	// TimingActivations runs every recipe inside a go-timing span named after the part. Spans are
	// attached to whatever timing context the resolving context carries.
	TimingActivations
)

// Container owns a catalog and the root scope of the ContainerBoundary. It is safe for concurrent
// use by any number of callers.
type Container struct {
	catalog *Catalog
	root    *Scope
	logger  *zap.Logger
	metrics *metrics
	timing  TimingMode

	immediate sync.WaitGroup
}

type options struct {
	logger          *zap.Logger
	registerer      prometheus.Registerer
	timing          *TimingMode
	config          *Config
	validateOnStart bool
}

// Option configures a Container.
type Option func(*options)

// WithLogger sets the structured logger used for scope, activation and disposal events.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers the container's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTiming sets the timing mode for recipes.
func WithTiming(mode TimingMode) Option {
	return func(o *options) {
		o.timing = &mode
	}
}

// WithValidation makes New compose every part of the catalog against the container boundary before
// returning, failing if any of them cannot be composed.
func WithValidation() Option {
	return func(o *options) {
		o.validateOnStart = true
	}
}

// WithConfig applies a loaded Config. Explicit WithLogger and WithTiming options win over it.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = &cfg
	}
}

// New creates a container over the catalog and opens its root scope. Parts marked Immediate that are
// shared in the ContainerBoundary start activating in the background before New returns.
func New(catalog *Catalog, opts ...Option) (*Container, error) {
	if catalog == nil {
		return nil, errors.New("compose: catalog must not be nil")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	c := &Container{
		catalog: catalog,
		logger:  zap.NewNop(),
	}

	namespace := "compose"
	var validateBoundaries []Boundary
	if o.config != nil {
		if err := o.config.Validate(); err != nil {
			return nil, err
		}
		logger, err := o.config.buildLogger()
		if err != nil {
			return nil, err
		}
		c.logger = logger
		c.timing = o.config.timingMode()
		if o.config.MetricsNamespace != "" {
			namespace = o.config.MetricsNamespace
		}
		if o.config.ValidateOnStart {
			o.validateOnStart = true
		}
		for _, b := range o.config.ValidateBoundaries {
			validateBoundaries = append(validateBoundaries, Boundary(b))
		}
	}
	if o.logger != nil {
		c.logger = o.logger
	}
	if o.timing != nil {
		c.timing = *o.timing
	}
	if o.registerer != nil {
		m, err := newMetrics(namespace, o.registerer)
		if err != nil {
			return nil, fmt.Errorf("compose: register metrics: %w", err)
		}
		c.metrics = m
	}

	if o.validateOnStart {
		if err := c.Validate(validateBoundaries...); err != nil {
			return nil, err
		}
	}

	c.root = newScope(c, ContainerBoundary, nil)
	c.metrics.scopeOpened(ContainerBoundary)
	c.logger.Debug("container created",
		zap.String("catalog", catalog.Name()),
		zap.Int("parts", catalog.Len()),
		zap.String("scope", c.root.id.String()))

	c.resolveImmediateParts()
	return c, nil
}

func (c *Container) Catalog() *Catalog { return c.catalog }

// Root returns the scope of the ContainerBoundary.
func (c *Container) Root() *Scope { return c.root }

func (c *Container) Logger() *zap.Logger { return c.logger }

// OpenScope opens a nested scope for boundary under parent. A nil parent means the root scope.
func (c *Container) OpenScope(boundary Boundary, parent *Scope) (*Scope, error) {
	if parent == nil {
		parent = c.root
	}
	if parent.container != c {
		return nil, fmt.Errorf("compose: parent %s belongs to a different container", parent.describe())
	}
	return parent.Open(boundary)
}

// CloseScope closes scope and everything nested in it.
func (c *Container) CloseScope(ctx context.Context, scope *Scope) error {
	return scope.Close(ctx)
}

// Close waits for background immediate activations to settle, then closes the root scope.
func (c *Container) Close(ctx context.Context) error {
	c.immediate.Wait()
	return c.root.Close(ctx)
}

func (c *Container) compositionFailed(err error) {
	c.metrics.compositionFailed(err)
	c.logger.Debug("composition failed", zap.Error(err))
}
