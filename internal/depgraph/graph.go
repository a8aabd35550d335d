// Package depgraph provides the immutable project dependency DAG derived
// from the project registry, with BFS and topological-sort operations,
// each O(V+E).
package depgraph

import (
	"sort"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/errs"
)

// Graph is the directed acyclic graph of project dependencies: an edge
// a -> b means a depends_on b.
type Graph struct {
	projects []string
	dependsOn map[string][]string // project -> its depends_on list
	dependedBy map[string][]string // project -> projects that depend on it
}

// New builds a Graph from the config's project registry.
func New(cfg *config.Config) *Graph {
	g := &Graph{
		dependsOn:  map[string][]string{},
		dependedBy: map[string][]string{},
	}
	for name := range cfg.Projects {
		g.projects = append(g.projects, name)
	}
	sort.Strings(g.projects)
	for name, p := range cfg.Projects {
		deps := append([]string(nil), p.DependsOn...)
		sort.Strings(deps)
		g.dependsOn[name] = deps
		for _, d := range deps {
			g.dependedBy[d] = append(g.dependedBy[d], name)
		}
	}
	for k := range g.dependedBy {
		sort.Strings(g.dependedBy[k])
	}
	return g
}

// Projects returns all known project names, sorted.
func (g *Graph) Projects() []string { return append([]string(nil), g.projects...) }

// Has reports whether project is in the registry.
func (g *Graph) Has(project string) bool {
	_, ok := g.dependsOn[project]
	return ok
}

// Upstream returns all projects p depends on, transitively, via BFS over
// depends_on, excluding p itself.
func (g *Graph) Upstream(p string) []string {
	return g.bfs(p, g.dependsOn)
}

// Downstream returns all projects that depend on p, transitively, via
// BFS over the reverse edges.
func (g *Graph) Downstream(p string) []string {
	return g.bfs(p, g.dependedBy)
}

func (g *Graph) bfs(start string, edges map[string][]string) []string {
	seen := map[string]bool{start: true}
	queue := []string{start}
	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range edges[cur] {
			if !seen[next] {
				seen[next] = true
				order = append(order, next)
				queue = append(queue, next)
			}
		}
	}
	return order
}

// AffectedBy returns [p] + Downstream(p).
func (g *Graph) AffectedBy(p string) []string {
	return append([]string{p}, g.Downstream(p)...)
}

// ReleaseOrder returns a topological sort of all projects (Kahn's
// algorithm), raising CircularDependency on a cycle.
func (g *Graph) ReleaseOrder() ([]string, error) {
	return g.topoSort(g.projects)
}

// topoSort performs Kahn's algorithm restricted to the given node set,
// processing ties in sorted-name order for determinism.
func (g *Graph) topoSort(nodes []string) ([]string, error) {
	nodeSet := map[string]bool{}
	for _, n := range nodes {
		nodeSet[n] = true
	}

	inDegree := map[string]int{}
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, n := range nodes {
		for _, dep := range g.dependsOn[n] {
			if nodeSet[dep] {
				inDegree[n]++
			}
		}
	}

	var ready []string
	for _, n := range nodes {
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		sort.Strings(ready)
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		for _, dependent := range g.dependedBy[cur] {
			if !nodeSet[dependent] {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(nodes) {
		var remaining []string
		for _, n := range nodes {
			found := false
			for _, o := range order {
				if o == n {
					found = true
					break
				}
			}
			if !found {
				remaining = append(remaining, n)
			}
		}
		sort.Strings(remaining)
		return nil, &errs.CircularDependency{Cycle: remaining}
	}

	// A project only becomes ready once every project it depends_on has
	// already been emitted, so order lists dependencies before dependents.
	return order, nil
}

// Subgraph returns a new Graph projected onto S, keeping only edges with
// both endpoints in S.
func (g *Graph) Subgraph(s []string) *Graph {
	set := map[string]bool{}
	for _, n := range s {
		set[n] = true
	}
	sub := &Graph{
		dependsOn:  map[string][]string{},
		dependedBy: map[string][]string{},
	}
	for _, n := range s {
		sub.projects = append(sub.projects, n)
	}
	sort.Strings(sub.projects)
	for _, n := range sub.projects {
		for _, dep := range g.dependsOn[n] {
			if set[dep] {
				sub.dependsOn[n] = append(sub.dependsOn[n], dep)
				sub.dependedBy[dep] = append(sub.dependedBy[dep], n)
			}
		}
	}
	return sub
}
