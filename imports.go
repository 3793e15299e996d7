package compose

import (
	"fmt"
	"reflect"

	"github.com/gburgyan/go-compose/internal/semver"
)

// ImportDescriptor is a requirement of a part. Name is the key the recipe uses to look up the
// resolved value and has to be unique within the part.
type ImportDescriptor struct {
	Name         string
	Contract     Contract
	Constraints  []MetadataConstraint
	Cardinality  Cardinality
	Lazy         bool
	AllowDefault bool
}

// ImportOption adjusts an ImportDescriptor built by Import.
type ImportOption func(*ImportDescriptor)

// Import describes a dependency on contract. Without options it is a direct ExactlyOne import.
func Import(name string, contract Contract, opts ...ImportOption) ImportDescriptor {
	imp := ImportDescriptor{
		Name:        name,
		Contract:    contract,
		Cardinality: ExactlyOne,
	}
	for _, opt := range opts {
		opt(&imp)
	}
	return imp
}

// Many accepts any number of matching exports.
func Many() ImportOption {
	return func(d *ImportDescriptor) { d.Cardinality = ZeroOrMore }
}

// Optional accepts zero or one matching export.
func Optional() ImportOption {
	return func(d *ImportDescriptor) { d.Cardinality = ZeroOrOne }
}

// Deferred makes the import lazy: the target is activated on first access instead of before the
// importing part's recipe runs. Lazy edges are what allow cycles to compose.
func Deferred() ImportOption {
	return func(d *ImportDescriptor) { d.Lazy = true }
}

// AllowDefault lets an ExactlyOne import resolve to the zero value when nothing matches.
func AllowDefault() ImportOption {
	return func(d *ImportDescriptor) { d.AllowDefault = true }
}

// Where adds metadata constraints that every candidate export has to satisfy.
func Where(constraints ...MetadataConstraint) ImportOption {
	return func(d *ImportDescriptor) { d.Constraints = append(d.Constraints, constraints...) }
}

func (d ImportDescriptor) String() string {
	s := fmt.Sprintf("%s %v %v", d.Name, d.Contract, d.Cardinality)
	if d.Lazy {
		s += " lazy"
	}
	return s
}

// MetadataConstraint is a predicate over one key of an export's metadata. The predicate is told
// whether the key is present at all.
type MetadataConstraint struct {
	Key         string
	Description string
	Predicate   func(value any, present bool) bool
}

func (m MetadataConstraint) matches(md Metadata) bool {
	v, ok := md[m.Key]
	return m.Predicate(v, ok)
}

// MetadataEquals requires the key to be present and equal to want.
func MetadataEquals(key string, want any) MetadataConstraint {
	return MetadataConstraint{
		Key:         key,
		Description: fmt.Sprintf("%s == %v", key, want),
		Predicate: func(v any, present bool) bool {
			return present && reflect.DeepEqual(v, want)
		},
	}
}

// MetadataExists requires the key to be present.
func MetadataExists(key string) MetadataConstraint {
	return MetadataConstraint{
		Key:         key,
		Description: key + " exists",
		Predicate: func(_ any, present bool) bool {
			return present
		},
	}
}

// MetadataMatches applies an arbitrary predicate to a present key.
func MetadataMatches(key string, fn func(any) bool) MetadataConstraint {
	return MetadataConstraint{
		Key:         key,
		Description: key + " matches predicate",
		Predicate: func(v any, present bool) bool {
			return present && fn(v)
		},
	}
}

// MetadataVersion requires the key to hold a semantic version (a string or a fmt.Stringer) that satisfies the
// constraint, e.g. ">=1.2.0 <2.0.0" or "^1.4". An invalid constraint panics.
func MetadataVersion(key string, constraint string) MetadataConstraint {
	r := semver.MustParseRange(constraint)
	return MetadataConstraint{
		Key:         key,
		Description: fmt.Sprintf("%s satisfies %s", key, r),
		Predicate: func(v any, present bool) bool {
			return present && r.Allows(v)
		},
	}
}

// Imports carries the resolved import values handed to a recipe.
type Imports struct {
	part   PartID
	values map[string]*importValue
}

type importValue struct {
	desc     ImportDescriptor
	single   any
	present  bool
	many     []any
	deferred *DeferredRef
}

func (in Imports) lookup(name string) *importValue {
	v, ok := in.values[name]
	if !ok {
		panic(fmt.Sprintf("part %q has no import named %q", in.part, name))
	}
	return v
}

// Value returns the resolved value of a single-valued direct import, or nil when an optional import
// did not match anything. A lazy import returns its *DeferredRef.
func (in Imports) Value(name string) any {
	v := in.lookup(name)
	if v.deferred != nil {
		return v.deferred
	}
	return v.single
}

// Has reports whether a single-valued import resolved to an export.
func (in Imports) Has(name string) bool {
	v := in.lookup(name)
	if v.deferred != nil {
		return v.deferred.Available()
	}
	return v.present
}

// Values returns the resolved values of a ZeroOrMore import in match order.
func (in Imports) Values(name string) []any {
	v := in.lookup(name)
	return append([]any(nil), v.many...)
}

// Deferred returns the deferred reference of a lazy import.
func (in Imports) Deferred(name string) *DeferredRef {
	v := in.lookup(name)
	if v.deferred == nil {
		panic(fmt.Sprintf("import %q of part %q is not deferred", name, in.part))
	}
	return v.deferred
}

// ImportValue returns a direct import converted to T. A missing optional value yields the zero T.
func ImportValue[T any](in Imports, name string) T {
	var zero T
	raw := in.Value(name)
	if raw == nil {
		return zero
	}
	val, ok := raw.(T)
	if !ok {
		panic(fmt.Sprintf("import %q of part %q is %T, not %v", name, in.part, raw, reflect.TypeOf(&zero).Elem()))
	}
	return val
}

// ImportOptional returns a direct import converted to T and whether it was resolved.
func ImportOptional[T any](in Imports, name string) (T, bool) {
	if !in.Has(name) {
		var zero T
		return zero, false
	}
	return ImportValue[T](in, name), true
}

// ImportValues returns a ZeroOrMore import converted to []T.
func ImportValues[T any](in Imports, name string) []T {
	raw := in.Values(name)
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		val, ok := r.(T)
		if !ok {
			var zero T
			panic(fmt.Sprintf("import %q of part %q contains %T, not %v", name, in.part, r, reflect.TypeOf(&zero).Elem()))
		}
		out = append(out, val)
	}
	return out
}

// ImportLazy returns a typed view of a lazy import.
func ImportLazy[T any](in Imports, name string) Lazy[T] {
	return Lazy[T]{ref: in.Deferred(name)}
}
