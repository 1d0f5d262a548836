// Package graph implements the dependency DAG underlying the wave resolver:
// Kahn's-algorithm topological layering plus three-color DFS cycle
// detection over arbitrary source-addressed package node ids.
package graph

import (
	"fmt"
	"maps"
	"slices"
)

// NodeID is a canonical package node identifier (see internal/source).
type NodeID string

// String returns the string representation of the NodeID.
func (id NodeID) String() string {
	return string(id)
}

// Node represents one resolved package in the dependency graph.
type Node struct {
	ID NodeID
}

// Layer is a wave: a group of nodes with no dependencies between them.
type Layer struct {
	Nodes []*Node
}

// dag is a directed graph over package node ids, edges pointing from a
// dependent to its dependency (addEdge(from, to): from depends on to).
type dag struct {
	nodes    map[NodeID]*Node
	edges    map[NodeID]map[NodeID]struct{}
	inDegree map[NodeID]int
}

func newDAG() *dag {
	return &dag{
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[NodeID]map[NodeID]struct{}),
		inDegree: make(map[NodeID]int),
	}
}

// addNode registers id, returning the existing Node if already present.
func (g *dag) addNode(id NodeID) *Node {
	if node, exists := g.nodes[id]; exists {
		return node
	}
	node := &Node{ID: id}
	g.nodes[id] = node
	g.inDegree[id] = 0
	return node
}

// addEdge adds a directed edge from -> to (from depends on to). Both nodes
// must already exist: callers add nodes before edges, catching wiring bugs
// early instead of silently creating orphan nodes.
func (g *dag) addEdge(from, to *Node) {
	if from == nil || to == nil {
		panic("graph: addEdge called with nil node")
	}
	if _, exists := g.nodes[from.ID]; !exists {
		panic(fmt.Sprintf("graph: node %s does not exist", from.ID))
	}
	if _, exists := g.nodes[to.ID]; !exists {
		panic(fmt.Sprintf("graph: node %s does not exist", to.ID))
	}

	if g.edges[from.ID] == nil {
		g.edges[from.ID] = make(map[NodeID]struct{})
	}
	if _, exists := g.edges[from.ID][to.ID]; !exists {
		g.edges[from.ID][to.ID] = struct{}{}
		g.inDegree[from.ID]++
	}
}

type nodeColor int

const (
	white nodeColor = iota
	gray
	black
)

// detectCycle returns a cycle path (first == last) if one exists.
func (g *dag) detectCycle() []NodeID {
	color := make(map[NodeID]nodeColor, len(g.nodes))
	parent := make(map[NodeID]NodeID, len(g.nodes))

	var cycle []NodeID

	var dfs func(node NodeID) bool
	dfs = func(node NodeID) bool {
		color[node] = gray

		for dep := range g.edges[node] {
			if color[dep] == gray {
				cycle = []NodeID{dep}
				for curr := node; curr != dep; curr = parent[curr] {
					cycle = append(cycle, curr)
				}
				cycle = append(cycle, dep)
				slices.Reverse(cycle)
				return true
			}
			if color[dep] == white {
				parent[dep] = node
				if dfs(dep) {
					return true
				}
			}
		}

		color[node] = black
		return false
	}

	ids := make([]NodeID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		if color[id] == white {
			if dfs(id) {
				return cycle
			}
		}
	}

	return nil
}

// sortNodes orders nodes by id for deterministic within-wave ordering.
func sortNodes(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}

// topologicalSort computes execution waves via Kahn's algorithm: nodes
// with no unresolved dependencies form wave 0, then wave 1, etc.
func (g *dag) topologicalSort() ([]Layer, error) {
	if cycle := g.detectCycle(); cycle != nil {
		return nil, NewCycleError(cycle)
	}

	inDegree := make(map[NodeID]int, len(g.inDegree))
	maps.Copy(inDegree, g.inDegree)

	reverseEdges := make(map[NodeID][]NodeID, len(g.nodes))
	for from, deps := range g.edges {
		for dep := range deps {
			reverseEdges[dep] = append(reverseEdges[dep], from)
		}
	}

	layers := make([]Layer, 0, len(g.nodes))

	queue := make([]NodeID, 0, len(g.nodes))
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		layer := Layer{Nodes: make([]*Node, 0, len(queue))}
		nextQueue := make([]NodeID, 0, len(g.nodes))

		for _, id := range queue {
			layer.Nodes = append(layer.Nodes, g.nodes[id])

			for _, dependent := range reverseEdges[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					nextQueue = append(nextQueue, dependent)
				}
			}
		}

		sortNodes(layer.Nodes)

		layers = append(layers, layer)
		queue = nextQueue
	}

	return layers, nil
}

func (g *dag) nodeCount() int { return len(g.nodes) }

func (g *dag) edgeCount() int {
	count := 0
	for _, deps := range g.edges {
		count += len(deps)
	}
	return count
}
