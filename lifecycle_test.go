package compose

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestCloser struct {
	name   string
	record *disposalRecord
	err    error
}

func (tc *TestCloser) Close() error {
	tc.record.add(tc.name)
	return tc.err
}

type testDisposer struct {
	name   string
	record *disposalRecord
}

func (td *testDisposer) Dispose(ctx context.Context) error {
	td.record.add("dispose:" + td.name)
	return nil
}

func (td *testDisposer) Close() error {
	td.record.add("close:" + td.name)
	return nil
}

type disposalRecord struct {
	mu    sync.Mutex
	order []string
}

func (r *disposalRecord) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *disposalRecord) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func closerPart(id PartID, contract Contract, record *disposalRecord, err error, opts ...PartOption) *PartDescriptor {
	base := []PartOption{
		Exports(contract),
		Activator(func(ctx context.Context, in Imports) (any, error) {
			return &TestCloser{name: string(id), record: record, err: err}, nil
		}),
	}
	return MustNewPart(id, append(base, opts...)...)
}

func TestScope_DisposesInReverseOrder(t *testing.T) {
	record := &disposalRecord{}
	first := closerPart("first", ContractOf[*TestCloser]("first"), record, nil, SharedIn("request"))
	second := closerPart("second", ContractOf[*TestCloser]("second"), record, nil,
		SharedIn("request"),
		Requires(Import("first", ContractOf[*TestCloser]("first"))))
	c := newTestContainer(t, []*PartDescriptor{first, second})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "second")
	require.NoError(t, err)

	require.NoError(t, req.Close(ctx))
	// first was constructed before second, so it is disposed after it.
	assert.Equal(t, []string{"second", "first"}, record.get())
}

func TestScope_CloseIsIdempotent(t *testing.T) {
	record := &disposalRecord{}
	part := closerPart("closer", ContractOf[*TestCloser](""), record, nil, SharedIn("request"))
	c := newTestContainer(t, []*PartDescriptor{part})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "")
	require.NoError(t, err)

	require.NoError(t, req.Close(ctx))
	require.NoError(t, req.Close(ctx))
	assert.True(t, req.Closed())
	assert.Equal(t, []string{"closer"}, record.get())
}

func TestScope_ConcurrentCloseDisposesOnce(t *testing.T) {
	record := &disposalRecord{}
	part := closerPart("closer", ContractOf[*TestCloser](""), record, errors.New("expected error"), SharedIn("request"))
	c := newTestContainer(t, []*PartDescriptor{part})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "")
	require.NoError(t, err)

	const closers = 20
	errs := make([]error, closers)
	wg := sync.WaitGroup{}
	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = req.Close(ctx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []string{"closer"}, record.get())
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrDisposalFailed)
		assert.Same(t, errs[0], err)
	}
}

func TestScope_DisposalFailuresAreAggregated(t *testing.T) {
	record := &disposalRecord{}
	a := closerPart("a", ContractOf[*TestCloser]("a"), record, errors.New("a failed"), SharedIn("request"))
	b := closerPart("b", ContractOf[*TestCloser]("b"), record, nil, SharedIn("request"))
	cc := closerPart("c", ContractOf[*TestCloser]("c"), record, errors.New("c failed"), SharedIn("request"))
	c := newTestContainer(t, []*PartDescriptor{a, b, cc})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	for _, name := range []string{"a", "b", "c"} {
		_, err := GetExport[*TestCloser](ctx, req, name)
		require.NoError(t, err)
	}

	err = req.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisposalFailed)

	var de *DisposalError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, Boundary("request"), de.Boundary)
	require.Len(t, de.Errors(), 2)
	assert.Contains(t, de.Errors()[0].Error(), "c failed")
	assert.Contains(t, de.Errors()[1].Error(), "a failed")

	// The sweep ran to completion despite the failures.
	assert.Equal(t, []string{"c", "b", "a"}, record.get())
}

func TestScope_ChildrenCloseFirst(t *testing.T) {
	record := &disposalRecord{}
	session := closerPart("session-part", ContractOf[*TestCloser]("session"), record, nil, SharedIn("session"))
	request := closerPart("request-part", ContractOf[*TestCloser]("request"), record, nil, SharedIn("request"))
	c := newTestContainer(t, []*PartDescriptor{session, request})
	ctx := context.Background()

	sess, err := c.OpenScope("session", nil)
	require.NoError(t, err)
	r1, err := sess.Open("request")
	require.NoError(t, err)
	r2, err := sess.Open("request")
	require.NoError(t, err)

	_, err = GetExport[*TestCloser](ctx, sess, "session")
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, r1, "request")
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, r2, "request")
	require.NoError(t, err)

	require.NoError(t, sess.Close(ctx))
	assert.Equal(t, []string{"request-part", "request-part", "session-part"}, record.get())
	assert.True(t, r1.Closed())
	assert.True(t, r2.Closed())
}

func TestScope_ClosedChildIsForgotten(t *testing.T) {
	c := newTestContainer(t, nil)
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	assert.Contains(t, c.Root().Status(), "children: 1")

	require.NoError(t, req.Close(ctx))
	assert.Contains(t, c.Root().Status(), "children: 0")
}

func TestScope_DisposalPreference(t *testing.T) {
	record := &disposalRecord{}
	viaDisposer := MustNewPart("disposer",
		Exports(ContractOf[*testDisposer]("plain")),
		SharedIn("request"),
		Activator(func(ctx context.Context, in Imports) (any, error) {
			return &testDisposer{name: "plain", record: record}, nil
		}))
	viaFunc := MustNewPart("func",
		Exports(ContractOf[*testDisposer]("custom")),
		SharedIn("request"),
		Activator(func(ctx context.Context, in Imports) (any, error) {
			return &testDisposer{name: "custom", record: record}, nil
		}),
		DisposeWith(func(ctx context.Context, instance any) error {
			record.add("func:" + instance.(*testDisposer).name)
			return nil
		}))
	c := newTestContainer(t, []*PartDescriptor{viaDisposer, viaFunc})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*testDisposer](ctx, req, "plain")
	require.NoError(t, err)
	_, err = GetExport[*testDisposer](ctx, req, "custom")
	require.NoError(t, err)

	require.NoError(t, req.Close(ctx))
	assert.Equal(t, []string{"func:custom", "dispose:plain"}, record.get())
}

func TestScope_DisposalPanicIsReported(t *testing.T) {
	part := MustNewPart("panicky",
		Exports(widgetContract),
		SharedIn("request"),
		Activator(func(ctx context.Context, in Imports) (any, error) {
			return &testWidget{}, nil
		}),
		DisposeWith(func(ctx context.Context, instance any) error {
			panic("boom")
		}))
	c := newTestContainer(t, []*PartDescriptor{part})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*testWidget](ctx, req, "")
	require.NoError(t, err)

	err = req.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisposalFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestScope_NonSharedOwnedByRequester(t *testing.T) {
	record := &disposalRecord{}
	part := closerPart("transient", ContractOf[*TestCloser](""), record, nil)
	c := newTestContainer(t, []*PartDescriptor{part})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "")
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "")
	require.NoError(t, err)

	require.NoError(t, req.Close(ctx))
	assert.Equal(t, []string{"transient", "transient"}, record.get())
}

func TestScope_PublishAfterCloseDisposesOrphan(t *testing.T) {
	record := &disposalRecord{}
	release := make(chan struct{})
	entered := make(chan struct{})
	part := MustNewPart("late",
		Exports(ContractOf[*TestCloser]("")),
		SharedIn("request"),
		Activator(func(ctx context.Context, in Imports) (any, error) {
			close(entered)
			<-release
			return &TestCloser{name: "late", record: record}, nil
		}))
	c := newTestContainer(t, []*PartDescriptor{part})
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)

	done := make(chan error)
	go func() {
		_, err := GetExport[*TestCloser](ctx, req, "")
		done <- err
	}()

	<-entered
	require.NoError(t, req.Close(ctx))
	close(release)

	err = <-done
	assert.ErrorIs(t, err, ErrScopeClosed)
	assert.Equal(t, []string{"late"}, record.get())
}

func TestContainer_CloseDisposesEverything(t *testing.T) {
	record := &disposalRecord{}
	root := closerPart("root-part", ContractOf[*TestCloser]("root"), record, nil, SharedIn(ContainerBoundary))
	request := closerPart("request-part", ContractOf[*TestCloser]("request"), record, nil, SharedIn("request"))
	c, err := New(MustNewCatalog("test", []*PartDescriptor{root, request}))
	require.NoError(t, err)
	ctx := context.Background()

	req, err := c.OpenScope("request", nil)
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, c.Root(), "root")
	require.NoError(t, err)
	_, err = GetExport[*TestCloser](ctx, req, "request")
	require.NoError(t, err)

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{"request-part", "root-part"}, record.get())
	assert.True(t, req.Closed())

	_, err = c.OpenScope("request", nil)
	assert.ErrorIs(t, err, ErrScopeClosed)
}
