// Package compose is a contract-based composition engine. Parts describe the contracts they export
// and the contracts they import; a Container matches imports to exports over an immutable Catalog,
// validates the resulting graph before anything is constructed, and then activates parts on demand
// inside nested sharing scopes.
//
// A part is shared within a named Boundary (for instance the always-open ContainerBoundary, or a
// caller-defined "request" boundary) or it is non-shared, in which case every import receives a fresh
// instance. Shared instances are constructed exactly once per (part, scope) even under concurrent
// resolution, and every activation is disposed in reverse creation order when its scope closes.
//
// Cycles between parts are rejected unless one of the edges on the cycle is a deferred (lazy) import.
// Deferred imports are handed to the recipe as a Lazy value that activates its target on first access.
//
// Resolution is driven by an explicit context rather than global state:
//
//	c, err := compose.New(catalog, compose.WithLogger(logger))
//	req, _ := c.OpenScope("request", c.Root())
//	defer req.Close(ctx)
//
//	handler, err := compose.GetExport[*Handler](ctx, req, "")
package compose
