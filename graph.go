package compose

import (
	"fmt"
)

// Graph is a validated composition plan for one root import. Building it touches nothing but the
// immutable catalog, so it is safe to do concurrently and never has side effects.
type Graph struct {
	root  Binding
	nodes []*GraphNode
}

// GraphNode is a part together with the resolved bindings of each of its imports, in import order.
type GraphNode struct {
	part     *PartDescriptor
	bindings []Binding
}

// Binding connects an import to the nodes that satisfy it. A deferred binding is only activated
// when its reference is first accessed, and may point at any node in the graph, including an
// ancestor of the importing node.
type Binding struct {
	Import   ImportDescriptor
	Targets  []*GraphNode
	Deferred bool
}

func (g *Graph) Root() Binding { return g.root }

// Nodes returns every node in the order it was first expanded.
func (g *Graph) Nodes() []*GraphNode { return append([]*GraphNode(nil), g.nodes...) }

func (n *GraphNode) Part() *PartDescriptor { return n.part }

func (n *GraphNode) Bindings() []Binding { return append([]Binding(nil), n.bindings...) }

type nodeKey struct {
	id  PartID
	pos int
}

type pathFrame struct {
	id     PartID
	lazyIn bool
}

type graphBuilder struct {
	catalog *Catalog
	chain   []Boundary
	memo    map[nodeKey]*GraphNode
	nodes   []*GraphNode
	path    []pathFrame
	onPath  map[PartID]int
}

// BuildGraph expands root depth-first against the catalog. chain lists the boundaries open on the
// resolving scope, innermost first; it must end with ContainerBoundary for a container scope.
//
// A part already on the active path closes a cycle. The cycle is accepted only if at least one of
// its edges is a deferred import; otherwise the build fails with ErrCompositionCycle. Shared parts
// resolve their own imports from the scope that owns their boundary, so a wide-lived part can never
// capture an instance of a narrower boundary.
func BuildGraph(c *Catalog, root ImportDescriptor, chain []Boundary) (*Graph, error) {
	b := &graphBuilder{
		catalog: c,
		chain:   chain,
		memo:    map[nodeKey]*GraphNode{},
		onPath:  map[PartID]int{},
	}
	binding, err := b.bind("", root, 0)
	if err != nil {
		return nil, err
	}
	return &Graph{root: binding, nodes: b.nodes}, nil
}

func (b *graphBuilder) bind(importer PartID, imp ImportDescriptor, pos int) (Binding, error) {
	exports, err := Match(b.catalog, imp)
	if err != nil {
		if ce, ok := err.(*CompositionError); ok {
			ce.Part = importer
			ce.Path = b.currentPath()
		}
		return Binding{}, err
	}

	binding := Binding{Import: imp, Deferred: imp.Lazy}
	for _, e := range exports {
		target, err := b.visit(e.Part, pos, imp.Lazy)
		if err != nil {
			return Binding{}, err
		}
		binding.Targets = append(binding.Targets, target)
	}
	return binding, nil
}

func (b *graphBuilder) visit(p *PartDescriptor, pos int, lazyIn bool) (*GraphNode, error) {
	expandAt, err := b.expansionPosition(p, pos)
	if err != nil {
		return nil, err
	}
	key := nodeKey{id: p.id, pos: expandAt}

	if b.onPath[p.id] > 0 {
		if !b.cyclePermitted(p.id, lazyIn) {
			return nil, &CompositionError{
				Kind:    ErrCompositionCycle,
				Message: "parts depend on each other without a deferred import",
				Part:    p.id,
				Path:    append(b.currentPath(), p.id),
			}
		}
		if n, ok := b.memo[key]; ok {
			return n, nil
		}
	} else if n, ok := b.memo[key]; ok {
		// Fully expanded elsewhere in the graph already.
		return n, nil
	}

	n := &GraphNode{part: p}
	b.memo[key] = n
	b.nodes = append(b.nodes, n)

	b.path = append(b.path, pathFrame{id: p.id, lazyIn: lazyIn})
	b.onPath[p.id]++
	defer func() {
		b.path = b.path[:len(b.path)-1]
		b.onPath[p.id]--
	}()

	for _, imp := range p.imports {
		binding, err := b.bind(p.id, imp, expandAt)
		if err != nil {
			return nil, err
		}
		n.bindings = append(n.bindings, binding)
	}
	return n, nil
}

// expansionPosition finds where in the chain a part's own imports are resolved.
func (b *graphBuilder) expansionPosition(p *PartDescriptor, pos int) (int, error) {
	if !p.shared {
		return pos, nil
	}
	for i := pos; i < len(b.chain); i++ {
		if b.chain[i] == p.boundary {
			return i, nil
		}
	}
	return 0, &CompositionError{
		Kind:    ErrBoundaryNotAvailable,
		Message: fmt.Sprintf("boundary %q is not open on scope chain %v", p.boundary, b.chain[pos:]),
		Part:    p.id,
		Path:    append(b.currentPath(), p.id),
	}
}

// cyclePermitted walks back from the top of the path to the most recent visit of id. Every edge
// walked, plus the closing edge, is on the cycle.
func (b *graphBuilder) cyclePermitted(id PartID, closingLazy bool) bool {
	if closingLazy {
		return true
	}
	for i := len(b.path) - 1; i >= 0; i-- {
		if b.path[i].id == id {
			return false
		}
		if b.path[i].lazyIn {
			return true
		}
	}
	return false
}

func (b *graphBuilder) currentPath() []PartID {
	out := make([]PartID, len(b.path))
	for i, f := range b.path {
		out[i] = f.id
	}
	return out
}

// buildPartGraph expands a specific part as the root of a graph. The part is node zero.
func buildPartGraph(c *Catalog, p *PartDescriptor, chain []Boundary) (*Graph, error) {
	b := &graphBuilder{
		catalog: c,
		chain:   chain,
		memo:    map[nodeKey]*GraphNode{},
		onPath:  map[PartID]int{},
	}
	n, err := b.visit(p, 0, false)
	if err != nil {
		return nil, err
	}
	return &Graph{root: Binding{Targets: []*GraphNode{n}}, nodes: b.nodes}, nil
}
