package compose

import (
	"go.uber.org/multierr"
)

// Validate composes every part in the catalog, without activating anything, from a scope chain
// made of the container boundary plus the given boundaries nested outermost first. Parts shared in a
// boundary that is not on that chain are skipped. All failures are returned together.
//
// Example:
//
//	if err := c.Validate("session", "request"); err != nil {
//	    for _, e := range multierr.Errors(err) {
//	        log.Println(e)
//	    }
//	}
func (c *Container) Validate(boundaries ...Boundary) error {
	chain := make([]Boundary, 0, len(boundaries)+1)
	for i := len(boundaries) - 1; i >= 0; i-- {
		chain = append(chain, boundaries[i])
	}
	chain = append(chain, ContainerBoundary)
	return c.validateChain(chain)
}

// Validate composes every part that is reachable from this scope's boundary chain without
// activating anything.
func (s *Scope) Validate() error {
	return s.container.validateChain(s.Chain())
}

func (c *Container) validateChain(chain []Boundary) error {
	open := map[Boundary]bool{}
	for _, b := range chain {
		open[b] = true
	}

	var errs error
	for _, p := range c.catalog.parts {
		if p.shared && !open[p.boundary] {
			continue
		}
		if _, err := buildPartGraph(c.catalog, p, chain); err != nil {
			c.compositionFailed(err)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
