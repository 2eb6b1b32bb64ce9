package graph

import (
	"errors"
	"sort"
)

var ErrCycleDetected = errors.New("cycle detected in graph")

// TopologicalSort orders nodes so every dependency precedes its dependents
// (Kahn's algorithm). Candidates at each step are taken in lexical order so
// the result is deterministic. Fails with ErrCycleDetected when the graph
// is cyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dependents := make(map[string][]string, len(g.nodes))
	inDegree := make(map[string]int, len(g.nodes))

	for id := range g.nodes {
		inDegree[id] = 0
	}

	for id, deps := range g.edges {
		for _, dep := range deps {
			if _, exists := g.nodes[dep]; exists {
				dependents[dep] = append(dependents[dep], id)
				inDegree[id]++
			}
		}
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	sorted := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		next := dependents[node]
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, ErrCycleDetected
	}

	return sorted, nil
}

// StartupOrder is the order producers should be brought up.
func (g *Graph) StartupOrder() ([]string, error) {
	return g.TopologicalSort()
}

// ShutdownOrder is StartupOrder reversed.
func (g *Graph) ShutdownOrder() ([]string, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	n := len(sorted)
	reversed := make([]string, n)
	for i, v := range sorted {
		reversed[n-1-i] = v
	}
	return reversed, nil
}
