package compose

import (
	"context"
	"fmt"
	"reflect"
)

type scopeKeyType int

const scopeContextKey scopeKeyType = 0

// NewContext returns a copy of ctx that carries scope. The Get family of functions resolves against
// the scope found this way.
func NewContext(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey, scope)
}

// ScopeFrom finds the scope attached to the context by NewContext.
func ScopeFrom(ctx context.Context) (*Scope, error) {
	s, ok := ctx.Value(scopeContextKey).(*Scope)
	if !ok || s == nil {
		return nil, ErrNoScope
	}
	return s, nil
}

// Get returns the default-named export of type T from the context's scope. Composition and
// activation failures panic; use GetWithError to handle them.
func Get[T any](ctx context.Context) T {
	val, err := GetWithError[T](ctx)
	if err != nil {
		panic(err)
	}
	return val
}

// GetWithError returns the default-named export of type T from the context's scope.
func GetWithError[T any](ctx context.Context) (T, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return GetExport[T](ctx, scope, "")
}

// GetOptional returns the default-named export of type T and whether exactly one was available.
// Activation failures are treated the same as a missing export.
func GetOptional[T any](ctx context.Context) (T, bool) {
	var zero T
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return zero, false
	}
	values, err := resolveTyped[T](ctx, scope, Import("", ContractOf[T](""), Optional()))
	if err != nil || len(values) == 0 {
		return zero, false
	}
	return values[0], true
}

// GetAll returns every default-named export of type T visible from the context's scope, in match
// order.
func GetAll[T any](ctx context.Context) ([]T, error) {
	scope, err := ScopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	return GetExports[T](ctx, scope, "")
}

// GetExport composes and activates the single export of T under name that satisfies the
// constraints, resolving from scope.
func GetExport[T any](ctx context.Context, scope *Scope, name string, constraints ...MetadataConstraint) (T, error) {
	var zero T
	values, err := resolveTyped[T](ctx, scope, Import(name, ContractOf[T](name), Where(constraints...)))
	if err != nil {
		return zero, err
	}
	if len(values) == 0 {
		return zero, nil
	}
	return values[0], nil
}

// MustGetExport is GetExport that panics on error.
func MustGetExport[T any](ctx context.Context, scope *Scope, name string, constraints ...MetadataConstraint) T {
	val, err := GetExport[T](ctx, scope, name, constraints...)
	if err != nil {
		panic(err)
	}
	return val
}

// GetExports composes and activates every export of T under name that satisfies the constraints.
func GetExports[T any](ctx context.Context, scope *Scope, name string, constraints ...MetadataConstraint) ([]T, error) {
	return resolveTyped[T](ctx, scope, Import(name, ContractOf[T](name), Many(), Where(constraints...)))
}

func resolveTyped[T any](ctx context.Context, scope *Scope, imp ImportDescriptor) ([]T, error) {
	if scope == nil {
		return nil, ErrNoScope
	}
	raw, err := scope.Resolve(ctx, imp)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		val, ok := r.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("compose: export %v resolved to %T, not %v", imp.Contract, r, reflect.TypeOf(&zero).Elem())
		}
		out = append(out, val)
	}
	return out, nil
}
