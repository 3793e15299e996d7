package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMetrics_Activations(t *testing.T) {
	reg := prometheus.NewRegistry()
	var loggerCalls, handlerCalls int64
	failing := MustNewPart("failing",
		Exports(widgetContract),
		Activator(func(ctx context.Context, in Imports) (any, error) {
			return nil, errors.New("expected error")
		}))
	parts := append(loggerAndHandler(&loggerCalls, &handlerCalls), failing)
	c := newTestContainer(t, parts, WithMetrics(reg))
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.openScopes.WithLabelValues("request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.openScopes.WithLabelValues(string(ContainerBoundary))))

	_, err = GetExport[*testHandler](ctx, req, "")
	require.NoError(t, err)
	_, err = GetExport[*testWidget](ctx, req, "")
	require.Error(t, err)
	_, err = GetExport[*testHandler](ctx, c.Root(), "")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.activations.WithLabelValues("logger", string(ContainerBoundary))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.activations.WithLabelValues("handler", "request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.activationFailures.WithLabelValues("failing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.compositionErrors.WithLabelValues("boundary")))

	require.NoError(t, req.Close(ctx))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.openScopes.WithLabelValues("request")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.disposals))
	assert.Zero(t, testutil.ToFloat64(c.metrics.disposalFailures))
}

func TestMetrics_Namespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	newTestContainer(t, nil, WithMetrics(reg), WithConfig(Config{MetricsNamespace: "app"}))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["app_open_scopes"])
}

func TestMetrics_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	newTestContainer(t, nil, WithMetrics(reg))

	_, err := New(MustNewCatalog("second", nil), WithMetrics(reg))
	assert.Error(t, err)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "cycle", errorKind(&CompositionError{Kind: ErrCompositionCycle}))
	assert.Equal(t, "cardinality", errorKind(&CompositionError{Kind: ErrCardinalityViolation}))
	assert.Equal(t, "boundary", errorKind(&CompositionError{Kind: ErrBoundaryNotAvailable}))
	assert.Equal(t, "catalog", errorKind(&CompositionError{Kind: ErrCatalogConflict}))
	assert.Equal(t, "other", errorKind(errors.New("anything")))
}

func TestLogging_ScopeAndActivationEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	var loggerCalls, handlerCalls int64
	c := newTestContainer(t, loggerAndHandler(&loggerCalls, &handlerCalls), WithLogger(zap.New(core)))
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*testHandler](ctx, req, "")
	require.NoError(t, err)
	require.NoError(t, req.Close(ctx))

	assert.Equal(t, 1, logs.FilterMessage("container created").Len())
	assert.Equal(t, 1, logs.FilterMessage("scope opened").Len())
	assert.Equal(t, 1, logs.FilterMessage("scope closed").Len())

	activated := logs.FilterMessage("activated part").All()
	require.Len(t, activated, 2)
	assert.Equal(t, "logger", activated[0].ContextMap()["part"])
	assert.Equal(t, "handler", activated[1].ContextMap()["part"])
	assert.Equal(t, "request", activated[1].ContextMap()["boundary"])
}

func TestLogging_DisposalFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	record := &disposalRecord{}
	part := closerPart("broken", ContractOf[*TestCloser](""), record, errors.New("expected error"), SharedIn("request"))
	c := newTestContainer(t, []*PartDescriptor{part}, WithLogger(zap.New(core)))
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "")
	require.NoError(t, err)
	assert.Error(t, req.Close(ctx))

	entries := logs.FilterMessage("disposal failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["part"])
}
