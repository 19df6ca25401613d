// Package graphorder derives a deterministic execution order for leaf
// subsystems from the resolved connection map. A connection from one leaf's
// output to another leaf's parameter is a directed edge; the sort is stable
// with respect to the order nodes were added, so equal models always execute
// in the same order.
package graphorder

import "fmt"

// Graph is a directed dependency graph over string IDs.
type Graph struct {
	// order remembers insertion order so the topological sort is stable.
	order []string
	nodes map[string]*node
}

type node struct {
	id string
	// deps holds the set of node IDs this node depends on (predecessors).
	deps map[string]bool
	// dependents holds the set of node IDs that depend on this node.
	dependents map[string]bool
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a node with the given ID. Adding an existing ID is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.order = append(g.order, id)
	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]bool),
		dependents: make(map[string]bool),
	}
}

// AddEdge records that `toID` depends on `fromID`. Both nodes must already
// exist; self-references are rejected.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = true
	fromNode.dependents[toID] = true
	return nil
}

// Sort returns all node IDs in dependency order. Within each level, nodes
// come out in insertion order. A cycle yields an error naming a node on it.
func (g *Graph) Sort() ([]string, error) {
	remaining := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
	}

	sorted := make([]string, 0, len(g.nodes))
	// Repeated stable scans over the insertion order; the graphs here are
	// small (one node per leaf subsystem).
	for len(sorted) < len(g.nodes) {
		progressed := false
		for _, id := range g.order {
			if remaining[id] != 0 {
				continue
			}
			sorted = append(sorted, id)
			remaining[id] = -1
			progressed = true
			for dep := range g.nodes[id].dependents {
				remaining[dep]--
			}
		}
		if !progressed {
			for _, id := range g.order {
				if remaining[id] > 0 {
					return nil, fmt.Errorf("cycle detected involving node '%s'", id)
				}
			}
		}
	}

	return sorted, nil
}
