package graph

import "fmt"

// Edge represents a dependency edge in the graph (From depends on To).
type Edge struct {
	From NodeID
	To   NodeID
}

// Resolver builds a dependency graph over package node ids and computes
// wave-ordered execution layers from it. It is the low-level primitive
// that internal/resolve's wave walker drives; it knows nothing about
// manifests, sources, or versions, only ids and edges.
type Resolver interface {
	// AddNode registers id in the graph, returning the existing node if
	// already present.
	AddNode(id NodeID) *Node

	// AddEdge records that from depends on to, registering either id that
	// is not yet in the graph.
	AddEdge(from, to NodeID)

	// Resolve validates the graph and returns execution layers ordered
	// dependencies first: wave 0 holds the nodes with no dependencies and
	// installs first.
	Resolve() ([]Layer, error)

	// Validate checks for circular dependencies without computing the
	// full wave sort.
	Validate() error

	NodeCount() int
	EdgeCount() int
	GetEdges() []Edge
	GetNodes() []*Node
}

type resolver struct {
	dag *dag
}

// NewResolver creates a new dependency resolver.
func NewResolver() Resolver {
	return &resolver{dag: newDAG()}
}

func (r *resolver) AddNode(id NodeID) *Node {
	return r.dag.addNode(id)
}

func (r *resolver) AddEdge(from, to NodeID) {
	fromNode := r.dag.addNode(from)
	toNode := r.dag.addNode(to)
	r.dag.addEdge(fromNode, toNode)
}

func (r *resolver) Resolve() ([]Layer, error) {
	return r.dag.topologicalSort()
}

func (r *resolver) Validate() error {
	if cycle := r.dag.detectCycle(); cycle != nil {
		return fmt.Errorf("circular dependency detected: %v", cycle)
	}
	return nil
}

func (r *resolver) NodeCount() int { return r.dag.nodeCount() }
func (r *resolver) EdgeCount() int { return r.dag.edgeCount() }

func (r *resolver) GetEdges() []Edge {
	var edges []Edge
	for from, deps := range r.dag.edges {
		for to := range deps {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}

func (r *resolver) GetNodes() []*Node {
	nodes := make([]*Node, 0, len(r.dag.nodes))
	for _, node := range r.dag.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}
