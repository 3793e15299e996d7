// Package semver matches export metadata values against semantic version ranges. Parsing and
// range checks are delegated to github.com/Masterminds/semver/v3.
package semver

import (
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Range is a parsed version range such as ">=1.2.0 <2.0.0", "^1.0.0" or "~1.4".
type Range struct {
	raw string
	c   *mm.Constraints
}

func ParseRange(raw string) (Range, error) {
	c, err := mm.NewConstraint(raw)
	if err != nil {
		return Range{}, fmt.Errorf("semver: parse range %q: %w", raw, err)
	}
	return Range{raw: raw, c: c}, nil
}

// MustParseRange is ParseRange that panics on a malformed range.
func MustParseRange(raw string) Range {
	r, err := ParseRange(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// Allows reports whether value lies inside the range. value is a version string or anything with a
// String method that renders one. Unparseable values, other types and the zero Range never match.
func (r Range) Allows(value any) bool {
	if r.c == nil {
		return false
	}
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case fmt.Stringer:
		raw = v.String()
	default:
		return false
	}
	ver, err := mm.NewVersion(raw)
	if err != nil {
		return false
	}
	return r.c.Check(ver)
}

// String returns the range as it was written.
func (r Range) String() string {
	return r.raw
}
