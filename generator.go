package compose

import (
	"context"
	"fmt"
	"reflect"

	"go.uber.org/multierr"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	lazyType    = reflect.TypeOf((*lazyParam)(nil)).Elem()
)

// lazyParam lets reflection recognize a Lazy[T] parameter and build one around a reference.
type lazyParam interface {
	elemType() reflect.Type
	withRef(ref *DeferredRef) any
}

func (Lazy[T]) elemType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func (Lazy[T]) withRef(ref *DeferredRef) any {
	return Lazy[T]{ref: ref}
}

type paramKind int

const (
	paramContext paramKind = iota
	paramSingle
	paramMany
	paramLazy
)

type funcParam struct {
	kind paramKind
	name string
	typ  reflect.Type
}

// PartFromFunc turns a constructor function into a part. Every parameter becomes an import of the
// default contract for its type, except:
//
//   - context.Context receives the activation context;
//   - []T imports every export of T (ZeroOrMore);
//   - Lazy[T] is a deferred import of T.
//
// The function must return exactly one value, optionally followed by an error. That value's type is
// exported under the default contract. Any opts are applied after the derived ones, so they can add
// exports or set the sharing boundary.
func PartFromFunc(id PartID, fn any, opts ...PartOption) (*PartDescriptor, error) {
	fnType := reflect.TypeOf(fn)
	if fnType == nil || fnType.Kind() != reflect.Func {
		return nil, invalidFunc(id, fmt.Sprintf("constructor must be a function, got %T", fn))
	}

	resultIndex, errorIndex := -1, -1
	for i := 0; i < fnType.NumOut(); i++ {
		out := fnType.Out(i)
		if out == errorType {
			if errorIndex >= 0 {
				return nil, invalidFunc(id, "multiple error results on a constructor are not permitted")
			}
			errorIndex = i
			continue
		}
		if resultIndex >= 0 {
			return nil, invalidFunc(id, "constructor must return a single value")
		}
		resultIndex = i
	}
	if resultIndex < 0 {
		return nil, invalidFunc(id, "constructor must have a result value")
	}

	params := make([]funcParam, fnType.NumIn())
	var imports []ImportDescriptor
	for i := range params {
		in := fnType.In(i)
		name := fmt.Sprintf("%d:%v", i, in)
		switch {
		case in == contextType:
			params[i] = funcParam{kind: paramContext, typ: in}
			continue
		case in.Implements(lazyType):
			elem := reflect.Zero(in).Interface().(lazyParam).elemType()
			params[i] = funcParam{kind: paramLazy, name: name, typ: in}
			imports = append(imports, Import(name, Contract{Type: elem}, Deferred()))
		case in.Kind() == reflect.Slice:
			params[i] = funcParam{kind: paramMany, name: name, typ: in}
			imports = append(imports, Import(name, Contract{Type: in.Elem()}, Many()))
		default:
			params[i] = funcParam{kind: paramSingle, name: name, typ: in}
			imports = append(imports, Import(name, Contract{Type: in}))
		}
	}

	fv := reflect.ValueOf(fn)
	recipe := func(ctx context.Context, imported Imports) (any, error) {
		args := make([]reflect.Value, len(params))
		for i, p := range params {
			switch p.kind {
			case paramContext:
				args[i] = reflect.ValueOf(&ctx).Elem()
			case paramSingle:
				args[i] = assignable(imported.Value(p.name), p.typ)
			case paramMany:
				values := imported.Values(p.name)
				slice := reflect.MakeSlice(p.typ, 0, len(values))
				for _, v := range values {
					slice = reflect.Append(slice, assignable(v, p.typ.Elem()))
				}
				args[i] = slice
			case paramLazy:
				lazy := reflect.Zero(p.typ).Interface().(lazyParam).withRef(imported.Deferred(p.name))
				args[i] = reflect.ValueOf(lazy)
			}
		}

		results := fv.Call(args)
		if errorIndex >= 0 && !results[errorIndex].IsNil() {
			return nil, results[errorIndex].Interface().(error)
		}
		return results[resultIndex].Interface(), nil
	}

	derived := []PartOption{
		Exports(Contract{Type: fnType.Out(resultIndex)}),
		Requires(imports...),
		Activator(recipe),
	}
	return NewPart(id, append(derived, opts...)...)
}

// MustPartFromFunc is PartFromFunc that panics on error.
func MustPartFromFunc(id PartID, fn any, opts ...PartOption) *PartDescriptor {
	p, err := PartFromFunc(id, fn, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// FuncPart names a constructor for a FuncSource.
type FuncPart struct {
	ID      PartID
	Func    any
	Options []PartOption
}

// FuncSource is a PartSource built from constructor functions. Every invalid constructor is
// reported, not just the first.
type FuncSource []FuncPart

func (s FuncSource) Parts() ([]*PartDescriptor, error) {
	parts := make([]*PartDescriptor, 0, len(s))
	var errs error
	for _, fp := range s {
		p, err := PartFromFunc(fp.ID, fp.Func, fp.Options...)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		parts = append(parts, p)
	}
	if errs != nil {
		return nil, errs
	}
	return parts, nil
}

// assignable turns an import value into something reflect.Call accepts for a parameter of type t.
func assignable(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() == t {
		return rv
	}
	out := reflect.New(t).Elem()
	out.Set(rv)
	return out
}

func invalidFunc(id PartID, msg string) error {
	return &CompositionError{Kind: ErrInvalidPart, Message: msg, Part: id}
}
