package compose

import (
	"fmt"
	"strings"
)

// PartSource produces part descriptors from whatever artifact backs it. The engine only ever sees
// the descriptors; discovery is entirely the source's business.
type PartSource interface {
	Parts() ([]*PartDescriptor, error)
}

// PartSourceFunc adapts a function to PartSource.
type PartSourceFunc func() ([]*PartDescriptor, error)

func (f PartSourceFunc) Parts() ([]*PartDescriptor, error) {
	return f()
}

// StaticSource is a PartSource over a fixed list of parts.
type StaticSource []*PartDescriptor

func (s StaticSource) Parts() ([]*PartDescriptor, error) {
	return s, nil
}

// Catalog is an immutable collection of parts with an export index. Changing what a container can
// compose means building a new catalog.
type Catalog struct {
	name   string
	parts  []*PartDescriptor
	byID   map[PartID]*PartDescriptor
	index  map[Contract][]ExportDescriptor
	unique map[Contract]bool
}

// CatalogOption configures a catalog under construction.
type CatalogOption func(*Catalog)

// RequireUnique demands that at most one export of exactly this contract exists per boundary.
// Non-shared exports count as one boundary of their own. The requirement survives Combine.
func RequireUnique(contracts ...Contract) CatalogOption {
	return func(c *Catalog) {
		for _, contract := range contracts {
			c.unique[contract] = true
		}
	}
}

// NewCatalog builds a catalog from parts in declaration order.
func NewCatalog(name string, parts []*PartDescriptor, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		name:   name,
		byID:   map[PartID]*PartDescriptor{},
		index:  map[Contract][]ExportDescriptor{},
		unique: map[Contract]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range parts {
		if err := c.add(p); err != nil {
			return nil, err
		}
	}
	if err := c.checkUnique(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNewCatalog is NewCatalog that panics on error.
func MustNewCatalog(name string, parts []*PartDescriptor, opts ...CatalogOption) *Catalog {
	c, err := NewCatalog(name, parts, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// FromSources builds a catalog from the parts of each source, in source order.
func FromSources(name string, sources []PartSource, opts ...CatalogOption) (*Catalog, error) {
	var parts []*PartDescriptor
	for i, src := range sources {
		p, err := src.Parts()
		if err != nil {
			return nil, fmt.Errorf("catalog %s: part source %d: %w", name, i, err)
		}
		parts = append(parts, p...)
	}
	return NewCatalog(name, parts, opts...)
}

// Combine returns the union of the catalogs. Every export is retained as a candidate; earlier
// catalogs take precedence in match order. Uniqueness requirements of all inputs apply to the union.
func Combine(catalogs ...*Catalog) (*Catalog, error) {
	names := make([]string, 0, len(catalogs))
	var parts []*PartDescriptor
	var opts []CatalogOption
	for _, cat := range catalogs {
		if cat == nil {
			continue
		}
		names = append(names, cat.name)
		parts = append(parts, cat.parts...)
		for contract := range cat.unique {
			opts = append(opts, RequireUnique(contract))
		}
	}
	return NewCatalog(strings.Join(names, "+"), parts, opts...)
}

func (c *Catalog) add(p *PartDescriptor) error {
	if p == nil {
		return &CompositionError{Kind: ErrCatalogConflict, Message: fmt.Sprintf("catalog %s contains a nil part", c.name)}
	}
	if existing, ok := c.byID[p.id]; ok {
		if existing == p {
			// The same descriptor reached us twice, e.g. through overlapping catalogs.
			return nil
		}
		return &CompositionError{
			Kind:    ErrCatalogConflict,
			Message: fmt.Sprintf("catalog %s has two different parts with the same identity", c.name),
			Part:    p.id,
		}
	}
	c.byID[p.id] = p
	c.parts = append(c.parts, p)
	for _, e := range p.exports {
		c.index[e.Contract] = append(c.index[e.Contract], e)
	}
	return nil
}

func (c *Catalog) checkUnique() error {
	for contract := range c.unique {
		seen := map[string]PartID{}
		for _, e := range c.index[contract] {
			key := "non-shared"
			if e.Shared {
				key = "shared:" + string(e.Boundary)
			}
			if other, ok := seen[key]; ok {
				return &CompositionError{
					Kind:     ErrCatalogConflict,
					Message:  fmt.Sprintf("unique contract is exported by both %q and %q (%s)", other, e.Part.id, key),
					Contract: contract,
					Part:     e.Part.id,
				}
			}
			seen[key] = e.Part.id
		}
	}
	return nil
}

func (c *Catalog) Name() string { return c.name }

func (c *Catalog) Len() int { return len(c.parts) }

// Parts returns every part in match order.
func (c *Catalog) Parts() []*PartDescriptor {
	return append([]*PartDescriptor(nil), c.parts...)
}

// Part looks a part up by identity.
func (c *Catalog) Part(id PartID) (*PartDescriptor, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Exports returns every export of exactly this contract in match order, regardless of metadata.
func (c *Catalog) Exports(contract Contract) []ExportDescriptor {
	exports := c.index[contract]
	out := make([]ExportDescriptor, len(exports))
	for i, e := range exports {
		e.Metadata = copyMetadata(e.Metadata)
		out[i] = e
	}
	return out
}

// PartsExporting returns the parts that export the contract, in match order. A part exporting the
// contract several times is listed once.
func (c *Catalog) PartsExporting(contract Contract) []*PartDescriptor {
	var out []*PartDescriptor
	seen := map[PartID]bool{}
	for _, e := range c.index[contract] {
		if seen[e.Part.id] {
			continue
		}
		seen[e.Part.id] = true
		out = append(out, e.Part)
	}
	return out
}
