package compose

import (
	"fmt"
	"strings"
)

// Match returns the exports of the catalog that satisfy the import, after applying its
// cardinality. The result is in match order: declaration order within a catalog, then the order
// in which catalogs were combined.
func Match(c *Catalog, imp ImportDescriptor) ([]ExportDescriptor, error) {
	candidates := matchConstraints(c, imp)

	switch imp.Cardinality {
	case ExactlyOne:
		if len(candidates) == 1 || (len(candidates) == 0 && imp.AllowDefault) {
			return candidates, nil
		}
	case ZeroOrOne:
		if len(candidates) <= 1 {
			return candidates, nil
		}
	case ZeroOrMore:
		return candidates, nil
	}

	return nil, &CompositionError{
		Kind:     ErrCardinalityViolation,
		Message:  fmt.Sprintf("import %q expects %v but found %d export(s)%s", imp.Name, imp.Cardinality, len(candidates), describeCandidates(candidates)),
		Contract: imp.Contract,
	}
}

func matchConstraints(c *Catalog, imp ImportDescriptor) []ExportDescriptor {
	var out []ExportDescriptor
	for _, e := range c.index[imp.Contract] {
		if satisfiesAll(e.Metadata, imp.Constraints) {
			e.Metadata = copyMetadata(e.Metadata)
			out = append(out, e)
		}
	}
	return out
}

func satisfiesAll(md Metadata, constraints []MetadataConstraint) bool {
	for _, mc := range constraints {
		if !mc.matches(md) {
			return false
		}
	}
	return true
}

func describeCandidates(candidates []ExportDescriptor) string {
	if len(candidates) == 0 {
		return ""
	}
	ids := make([]string, len(candidates))
	for i, e := range candidates {
		ids[i] = string(e.Part.id)
	}
	return ": " + strings.Join(ids, ", ")
}
