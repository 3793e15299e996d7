package compose

import (
	"fmt"
	"sort"
	"strings"
)

// Status is a diagnostic tool that returns a string describing the state of the scope: its shared
// activations, how many activations it owns and how many child scopes are open, followed by the same
// for every ancestor.
func (s *Scope) Status() string {
	s.mu.Lock()
	lines := make([]string, 0, len(s.shared))
	for id, a := range s.shared {
		lines = append(lines, fmt.Sprintf("%s - shared instance %T", id, a.instance))
	}
	owned := len(s.activations)
	children := len(s.children)
	closing := s.closing
	s.mu.Unlock()

	sort.Strings(lines)

	result := strings.Builder{}
	fmt.Fprintf(&result, "%s - activations: %d - children: %d", s.describe(), owned, children)
	if closing {
		result.WriteString(" - closed")
	}
	for _, line := range lines {
		result.WriteString("\n")
		result.WriteString(line)
	}

	if s.parent != nil {
		result.WriteString("\n----\nparent scope:\n")
		result.WriteString(s.parent.Status())
	}
	return result.String()
}

// String renders the composition plan as an indented tree. A part that was already expanded
// elsewhere in the tree, or that closes a deferred cycle, is shown once and marked with "(see above)".
func (g *Graph) String() string {
	result := strings.Builder{}
	seen := map[*GraphNode]bool{}
	for _, t := range g.root.Targets {
		writeNode(&result, t, "", 0, seen)
	}
	return strings.TrimSuffix(result.String(), "\n")
}

func writeNode(b *strings.Builder, n *GraphNode, edge string, depth int, seen map[*GraphNode]bool) {
	indent := strings.Repeat("  ", depth)
	sharing := "non-shared"
	if n.part.shared {
		sharing = "shared in " + string(n.part.boundary)
	}
	fmt.Fprintf(b, "%s%s%s (%s)", indent, edge, n.part.id, sharing)
	if seen[n] {
		b.WriteString(" (see above)\n")
		return
	}
	b.WriteString("\n")
	seen[n] = true

	for _, binding := range n.bindings {
		prefix := binding.Import.Name + ": "
		if binding.Deferred {
			prefix = binding.Import.Name + " (deferred): "
		}
		if len(binding.Targets) == 0 {
			fmt.Fprintf(b, "%s  %s-\n", indent, prefix)
			continue
		}
		for _, t := range binding.Targets {
			writeNode(b, t, prefix, depth+1, seen)
		}
	}
}

// Explain composes imp from this scope without activating anything and describes the plan.
func (s *Scope) Explain(imp ImportDescriptor) (string, error) {
	g, err := BuildGraph(s.container.catalog, imp, s.Chain())
	if err != nil {
		return "", err
	}
	return g.String(), nil
}
