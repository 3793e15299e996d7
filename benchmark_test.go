package compose

import (
	"context"
	"testing"
)

func BenchmarkGetShared(b *testing.B) {
	c, _ := New(MustNewCatalog("bench", []*PartDescriptor{
		widgetPart("widget", 42, nil, SharedIn(ContainerBoundary)),
	}))
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		_ = MustGetExport[*testWidget](ctx, c.Root(), "")
	}
}

func BenchmarkGetNonShared(b *testing.B) {
	c, _ := New(MustNewCatalog("bench", []*PartDescriptor{
		widgetPart("widget", 42, nil),
	}))
	ctx := NewContext(context.Background(), c.Root())

	for i := 0; i < b.N; i++ {
		_ = Get[*testWidget](ctx)
	}
}

func BenchmarkRequestScope(b *testing.B) {
	var loggerCalls, handlerCalls int64
	c, _ := New(MustNewCatalog("bench", loggerAndHandler(&loggerCalls, &handlerCalls)))
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		req, _ := c.OpenScope("request", nil)
		_ = MustGetExport[*testHandler](ctx, req, "")
		_ = req.Close(ctx)
	}
}
