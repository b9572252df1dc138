// Package graph models dependencies between architecture components.
package graph

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// ErrCycleDetected indicates a circular dependency was found.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownComponent is returned when a dependency names an undeclared component.
var ErrUnknownComponent = errors.New("unknown component")

// DependencyGraph is a directed graph of components. An edge from A to B
// means A depends on B.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes []string
	edges map[string][]string
}

// New creates an empty graph.
func New() *DependencyGraph {
	return &DependencyGraph{edges: make(map[string][]string)}
}

// Build creates a graph from components and a dependency map. It fails on
// the first unknown component or on a cycle.
func Build(components []string, deps map[string][]string) (*DependencyGraph, error) {
	g := New()
	for _, c := range components {
		g.AddComponent(c)
	}
	for _, from := range slices.Sorted(maps.Keys(deps)) {
		for _, to := range deps[from] {
			if err := g.AddDependency(from, to); err != nil {
				return nil, err
			}
		}
	}
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}
	return g, nil
}

// AddComponent adds a node. Adding a known component is a no-op.
func (g *DependencyGraph) AddComponent(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[name]; ok {
		return
	}
	g.edges[name] = nil
	g.nodes = append(g.nodes, name)
}

// AddDependency records that from depends on to. Both must be components.
// Duplicate edges are ignored.
func (g *DependencyGraph) AddDependency(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.edges[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, from)
	}
	if _, ok := g.edges[to]; !ok {
		return fmt.Errorf("%w: %s (required by %s)", ErrUnknownComponent, to, from)
	}
	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	return len(g.FindCycle()) > 0
}

// FindCycle returns one cycle as a path whose first and last elements are
// the same component, or nil. The search order is deterministic.
func (g *DependencyGraph) FindCycle() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// 0 unvisited, 1 on the current path, 2 done.
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)
		for _, dep := range g.sortedEdgesLocked(id) {
			switch colors[dep] {
			case 1:
				start := slices.Index(stack, dep)
				return append(slices.Clone(stack[start:]), dep)
			case 0:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = 2
		return nil
	}

	for _, id := range slices.Sorted(slices.Values(g.nodes)) {
		if colors[id] == 0 {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalSort returns components with every dependency before its
// dependents. Ties are broken by name.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	layers, err := g.Layers()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, layer := range layers {
		out = append(out, layer...)
	}
	return out, nil
}

// Layers groups components by depth: the first layer has no dependencies,
// each later layer depends only on earlier ones.
func (g *DependencyGraph) Layers() ([][]string, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	placed := make(map[string]bool, len(g.nodes))
	var layers [][]string
	for len(placed) < len(g.nodes) {
		var layer []string
		for _, id := range g.nodes {
			if placed[id] {
				continue
			}
			ready := true
			for _, dep := range g.edges[id] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, id)
			}
		}
		slices.Sort(layer)
		for _, id := range layer {
			placed[id] = true
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// Size returns the number of components.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns what name depends on, sorted.
func (g *DependencyGraph) Dependencies(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedEdgesLocked(name)
}

// Dependents returns the components that depend on name, sorted.
func (g *DependencyGraph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []string
	for id, deps := range g.edges {
		if slices.Contains(deps, name) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

func (g *DependencyGraph) sortedEdgesLocked(id string) []string {
	return slices.Sorted(slices.Values(g.edges[id]))
}
