package graph

import (
	"sort"
	"sync"
)

// Graph is the process-wide adjacency view over service keys used for
// circular-dependency detection. Keys marked exempt never become nodes and
// edges pointing at them are dropped before any detection runs. Adjacency
// lists are kept lexically sorted so detected cycle paths are deterministic.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]struct{}
	edges      map[string][]string
	exempt     map[string]struct{}
	cycleValid bool
	hasCycle   bool
}

func New() *Graph {
	return &Graph{
		nodes:  make(map[string]struct{}),
		edges:  make(map[string][]string),
		exempt: make(map[string]struct{}),
	}
}

// MarkExempt excludes key from cycle analysis, removing any node or edge
// already recorded for it.
func (g *Graph) MarkExempt(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.exempt[key] = struct{}{}
	delete(g.nodes, key)
	delete(g.edges, key)

	for id, deps := range g.edges {
		filtered := deps[:0]
		for _, dep := range deps {
			if dep != key {
				filtered = append(filtered, dep)
			}
		}
		g.edges[id] = filtered
	}
	g.cycleValid = false
}

// SetEdges upserts the dependency set of id, replacing any previous edges.
// Exempt endpoints are filtered out; an exempt id is ignored entirely.
func (g *Graph) SetEdges(id string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.exempt[id]; ok {
		return
	}

	seen := make(map[string]struct{}, len(deps))
	filtered := make([]string, 0, len(deps))
	for _, dep := range deps {
		if _, ok := g.exempt[dep]; ok {
			continue
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		filtered = append(filtered, dep)
	}
	sort.Strings(filtered)

	g.nodes[id] = struct{}{}
	g.edges[id] = filtered
	g.cycleValid = false
}

// AddEdges unions deps into id's existing dependency set, keeping edges
// declared earlier. Same exemption filtering and ordering as SetEdges.
func (g *Graph) AddEdges(id string, deps []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.exempt[id]; ok {
		return
	}

	seen := make(map[string]struct{}, len(g.edges[id])+len(deps))
	merged := make([]string, 0, len(g.edges[id])+len(deps))
	for _, dep := range g.edges[id] {
		seen[dep] = struct{}{}
		merged = append(merged, dep)
	}
	for _, dep := range deps {
		if _, ok := g.exempt[dep]; ok {
			continue
		}
		if _, dup := seen[dep]; dup {
			continue
		}
		seen[dep] = struct{}{}
		merged = append(merged, dep)
	}
	sort.Strings(merged)

	g.nodes[id] = struct{}{}
	g.edges[id] = merged
	g.cycleValid = false
}

// RemoveNode drops id entirely, including any exempt marking, so a key
// registered again later starts with a clean slate.
func (g *Graph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.nodes, id)
	delete(g.edges, id)
	delete(g.exempt, id)
	g.cycleValid = false
}

func (g *Graph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, exists := g.nodes[id]
	return exists
}

func (g *Graph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	deps, exists := g.edges[id]
	if !exists {
		return nil
	}
	return append([]string(nil), deps...)
}

func (g *Graph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for nodeID, deps := range g.edges {
		for _, dep := range deps {
			if dep == id {
				dependents = append(dependents, nodeID)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}

func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]struct{})
	g.edges = make(map[string][]string)
	g.exempt = make(map[string]struct{})
	g.cycleValid = false
}

// Validate returns every dependency referenced by an edge but never added
// as a node, sorted lexically.
func (g *Graph) Validate() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]struct{})
	var missing []string
	for _, deps := range g.edges {
		for _, dep := range deps {
			if _, exists := g.nodes[dep]; exists {
				continue
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			missing = append(missing, dep)
		}
	}
	sort.Strings(missing)
	return missing
}
