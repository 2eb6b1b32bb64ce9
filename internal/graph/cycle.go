package graph

// HasCycle reports whether any cycle exists among recorded edges. The
// answer is cached until the next mutation.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	if g.cycleValid {
		result := g.hasCycle
		g.mu.RUnlock()
		return result
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cycleValid {
		return g.hasCycle
	}

	g.hasCycle = g.hasCycleLocked()
	g.cycleValid = true
	return g.hasCycle
}

func (g *Graph) hasCycleLocked() bool {
	white := make(map[string]bool, len(g.nodes))
	gray := make(map[string]bool, len(g.nodes))

	for id := range g.nodes {
		white[id] = true
	}

	var dfs func(id string) bool
	dfs = func(id string) bool {
		white[id] = false
		gray[id] = true

		for _, dep := range g.edges[id] {
			if _, exists := g.nodes[dep]; !exists {
				continue
			}
			if gray[dep] {
				return true
			}
			if white[dep] && dfs(dep) {
				return true
			}
		}

		gray[id] = false
		return false
	}

	for id := range g.nodes {
		if white[id] && dfs(id) {
			return true
		}
	}
	return false
}

// CheckFrom searches the subgraph reachable from start and returns the
// first cycle found as an ordered key path ending on the key that closed
// the loop, or nil when none is reachable. Adjacency lists are sorted, so
// the reported path is stable across runs.
func (g *Graph) CheckFrom(start string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.exempt[start]; ok {
		return nil
	}

	visited := make(map[string]bool)
	inPath := make(map[string]bool)
	path := make([]string, 0, 8)

	var dfs func(id string) []string
	dfs = func(id string) []string {
		if inPath[id] {
			cycle := make([]string, 0, len(path)+1)
			found := false
			for _, p := range path {
				if p == id {
					found = true
				}
				if found {
					cycle = append(cycle, p)
				}
			}
			return append(cycle, id)
		}

		if visited[id] {
			return nil
		}

		visited[id] = true
		path = append(path, id)
		inPath[id] = true

		for _, dep := range g.edges[id] {
			if _, exists := g.nodes[dep]; !exists {
				continue
			}
			if cycle := dfs(dep); cycle != nil {
				return cycle
			}
		}

		path = path[:len(path)-1]
		inPath[id] = false
		return nil
	}

	return dfs(start)
}
