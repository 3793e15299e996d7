package compose

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// PartID identifies a part within a composition. The activation cache is keyed by it, so it must
// be unique across every catalog that is combined into a container.
type PartID string

// Boundary names a sharing scope. Boundaries are opaque to the engine apart from
// ContainerBoundary, which is always open at the root of every container.
type Boundary string

// ContainerBoundary is the boundary of a container's root scope. It is open for the whole lifetime
// of the container, so parts shared in it are singletons.
const ContainerBoundary Boundary = "container"

// Contract is the identity used to match imports to exports. Two contracts are the same when both the
// name and the type token are equal.
type Contract struct {
	Name string
	Type reflect.Type
}

// ContractOf returns the contract for type T under the given name. An empty name is the default
// contract for the type.
func ContractOf[T any](name string) Contract {
	return Contract{Name: name, Type: reflect.TypeOf((*T)(nil)).Elem()}
}

func (c Contract) String() string {
	if c.Name == "" {
		return fmt.Sprintf("%v", c.Type)
	}
	return fmt.Sprintf("%v %q", c.Type, c.Name)
}

// Metadata is the free-form key/value map attached to an export.
type Metadata map[string]any

// Cardinality declares how many exports an import accepts.
type Cardinality int

const (
	ExactlyOne Cardinality = iota
	ZeroOrOne
	ZeroOrMore
)

func (c Cardinality) String() string {
	switch c {
	case ExactlyOne:
		return "ExactlyOne"
	case ZeroOrOne:
		return "ZeroOrOne"
	case ZeroOrMore:
		return "ZeroOrMore"
	}
	return fmt.Sprintf("Cardinality(%d)", int(c))
}

// ExportDescriptor is one capability offered by a part. Boundary and Shared are copied from the
// owning part: sharing is decided per part, not per export.
type ExportDescriptor struct {
	Contract Contract
	Metadata Metadata
	Part     *PartDescriptor
	Boundary Boundary
	Shared   bool
}

// Recipe constructs an instance of a part from its resolved imports.
type Recipe func(ctx context.Context, in Imports) (any, error)

// DisposeFunc releases an instance created by a part's recipe.
type DisposeFunc func(ctx context.Context, instance any) error

// PartDescriptor is the normalized description of a component. It is immutable once created; all
// fields are reachable only through accessors that return copies.
type PartDescriptor struct {
	id        PartID
	exports   []ExportDescriptor
	imports   []ImportDescriptor
	boundary  Boundary
	shared    bool
	recipe    Recipe
	dispose   DisposeFunc
	immediate bool
}

// PartOption configures a PartDescriptor while it is being built by NewPart.
type PartOption func(*partBuilder)

type exportSpec struct {
	contract Contract
	metadata Metadata
}

type partBuilder struct {
	exports   []exportSpec
	imports   []ImportDescriptor
	boundary  Boundary
	shared    bool
	recipe    Recipe
	dispose   DisposeFunc
	immediate bool
	errs      []string
}

// Exports declares contracts the part offers, without metadata.
func Exports(contracts ...Contract) PartOption {
	return func(b *partBuilder) {
		for _, c := range contracts {
			b.exports = append(b.exports, exportSpec{contract: c})
		}
	}
}

// ExportsWith declares a contract the part offers along with its export metadata.
func ExportsWith(contract Contract, metadata Metadata) PartOption {
	return func(b *partBuilder) {
		md := make(Metadata, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
		b.exports = append(b.exports, exportSpec{contract: contract, metadata: md})
	}
}

// Requires declares what the part imports, in the order the recipe will see them.
func Requires(imports ...ImportDescriptor) PartOption {
	return func(b *partBuilder) {
		b.imports = append(b.imports, imports...)
	}
}

// SharedIn makes the part shared within the nearest open scope of the given boundary.
func SharedIn(boundary Boundary) PartOption {
	return func(b *partBuilder) {
		if boundary == "" {
			b.errs = append(b.errs, "shared boundary must not be empty")
		}
		b.boundary = boundary
		b.shared = true
	}
}

// NonShared makes every resolution of the part create a new instance. This is the default.
func NonShared() PartOption {
	return func(b *partBuilder) {
		b.boundary = ""
		b.shared = false
	}
}

// Activator sets the recipe used to construct the part.
func Activator(recipe Recipe) PartOption {
	return func(b *partBuilder) {
		b.recipe = recipe
	}
}

// DisposeWith registers a custom disposal function. It takes precedence over Disposer and io.Closer.
func DisposeWith(fn DisposeFunc) PartOption {
	return func(b *partBuilder) {
		b.dispose = fn
	}
}

// Immediate requests that a container-shared part be activated in the background as soon as the
// container is created.
func Immediate() PartOption {
	return func(b *partBuilder) {
		b.immediate = true
	}
}

// NewPart builds an immutable PartDescriptor.
func NewPart(id PartID, opts ...PartOption) (*PartDescriptor, error) {
	b := &partBuilder{}
	for _, opt := range opts {
		opt(b)
	}

	if id == "" {
		b.errs = append(b.errs, "part id must not be empty")
	}
	if len(b.exports) == 0 {
		b.errs = append(b.errs, "part must export at least one contract")
	}
	if b.recipe == nil {
		b.errs = append(b.errs, "part must have an activation recipe")
	}
	for _, e := range b.exports {
		if e.contract.Type == nil {
			b.errs = append(b.errs, fmt.Sprintf("export %q has no type", e.contract.Name))
		}
	}
	seen := map[string]bool{}
	for _, imp := range b.imports {
		if imp.Contract.Type == nil {
			b.errs = append(b.errs, fmt.Sprintf("import %q has no type", imp.Name))
		}
		if seen[imp.Name] {
			b.errs = append(b.errs, fmt.Sprintf("duplicate import name %q", imp.Name))
		}
		seen[imp.Name] = true
		if imp.Cardinality < ExactlyOne || imp.Cardinality > ZeroOrMore {
			b.errs = append(b.errs, fmt.Sprintf("import %q has unknown cardinality %d", imp.Name, imp.Cardinality))
		}
	}
	if len(b.errs) > 0 {
		return nil, &CompositionError{
			Kind:    ErrInvalidPart,
			Message: strings.Join(b.errs, "; "),
			Part:    id,
		}
	}

	p := &PartDescriptor{
		id:        id,
		boundary:  b.boundary,
		shared:    b.shared,
		recipe:    b.recipe,
		dispose:   b.dispose,
		immediate: b.immediate,
		imports:   make([]ImportDescriptor, len(b.imports)),
	}
	for i, imp := range b.imports {
		imp.Constraints = append([]MetadataConstraint(nil), imp.Constraints...)
		p.imports[i] = imp
	}
	for _, e := range b.exports {
		p.exports = append(p.exports, ExportDescriptor{
			Contract: e.contract,
			Metadata: e.metadata,
			Part:     p,
			Boundary: b.boundary,
			Shared:   b.shared,
		})
	}
	return p, nil
}

// MustNewPart is NewPart that panics on an invalid description. It is meant for static catalogs.
func MustNewPart(id PartID, opts ...PartOption) *PartDescriptor {
	p, err := NewPart(id, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *PartDescriptor) ID() PartID { return p.id }

func (p *PartDescriptor) Boundary() Boundary { return p.boundary }

func (p *PartDescriptor) Shared() bool { return p.shared }

func (p *PartDescriptor) IsImmediate() bool { return p.immediate }

// Exports returns a copy of the part's exports. The metadata maps are copied as well.
func (p *PartDescriptor) Exports() []ExportDescriptor {
	out := make([]ExportDescriptor, len(p.exports))
	for i, e := range p.exports {
		e.Metadata = copyMetadata(e.Metadata)
		out[i] = e
	}
	return out
}

// Imports returns a copy of the part's imports, constraints included.
func (p *PartDescriptor) Imports() []ImportDescriptor {
	out := make([]ImportDescriptor, len(p.imports))
	for i, imp := range p.imports {
		imp.Constraints = append([]MetadataConstraint(nil), imp.Constraints...)
		out[i] = imp
	}
	return out
}

func (p *PartDescriptor) String() string {
	exports := make([]string, len(p.exports))
	for i, e := range p.exports {
		exports[i] = e.Contract.String()
	}
	sort.Strings(exports)
	sharing := "non-shared"
	if p.shared {
		sharing = "shared in " + string(p.boundary)
	}
	return fmt.Sprintf("%s (%s) exports %s", p.id, sharing, strings.Join(exports, ", "))
}

func copyMetadata(md Metadata) Metadata {
	if md == nil {
		return nil
	}
	out := make(Metadata, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
