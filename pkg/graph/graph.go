// Package graph orders scenarios by their declared dependencies.
//
// Resolution is a depth-first topological sort with three node states:
// unvisited, on the current DFS path, and done. Reaching a node that is
// still on the path is a cycle and fails the whole resolution. A
// dependency naming an unknown scenario is only a warning: it is
// reported and skipped, so stale or renamed IDs never halt verification.
//
// Ties between independent scenarios are broken by discovery order, so
// the same input always yields the same order.
package graph

import (
	"fmt"
	"strings"

	"github.com/ormasoftchile/verity/pkg/schema"
)

// CycleError reports a dependency cycle. Path starts and ends on the same ID.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " → "))
}

// Members returns the distinct IDs that form the cycle.
func (e *CycleError) Members() []string {
	if len(e.Path) <= 1 {
		return e.Path
	}
	return e.Path[:len(e.Path)-1]
}

// Warning is a non-fatal resolution problem.
type Warning struct {
	Scenario   string `json:"scenario"`
	Dependency string `json:"dependency"`
	Message    string `json:"message"`
}

// Resolver holds the dependency edges of a set of scenarios.
type Resolver struct {
	deps  map[string][]string
	order []string // discovery order
}

// New builds a resolver. Scenario order is the discovery order.
func New(scenarios []*schema.Scenario) *Resolver {
	r := &Resolver{deps: make(map[string][]string, len(scenarios))}
	for _, sc := range scenarios {
		if _, dup := r.deps[sc.ID]; dup {
			continue
		}
		r.deps[sc.ID] = append([]string(nil), sc.Dependencies...)
		r.order = append(r.order, sc.ID)
	}
	return r
}

// Known reports whether id is a scenario the resolver knows about.
func (r *Resolver) Known(id string) bool {
	_, ok := r.deps[id]
	return ok
}

// Dependencies returns the declared dependencies of id.
func (r *Resolver) Dependencies(id string) []string {
	return r.deps[id]
}

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// Result is a successful resolution.
type Result struct {
	Order    []string
	Warnings []Warning
}

// ResolveOrder returns a topological order covering the requested IDs and
// everything they transitively depend on. With no IDs it covers every
// known scenario. Requested IDs that are unknown are an error; unknown
// dependencies are warnings.
func (r *Resolver) ResolveOrder(requested ...string) (*Result, error) {
	roots := requested
	if len(roots) == 0 {
		roots = r.order
	}
	for _, id := range roots {
		if !r.Known(id) {
			return nil, &schema.NotFoundError{ID: id}
		}
	}

	state := make(map[string]visitState, len(r.deps))
	res := &Result{Order: make([]string, 0, len(r.deps))}
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case inProgress:
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), id)
			return &CycleError{Path: cycle}
		}

		state[id] = inProgress
		path = append(path, id)
		for _, dep := range r.deps[id] {
			if !r.Known(dep) {
				res.Warnings = append(res.Warnings, Warning{
					Scenario:   id,
					Dependency: dep,
					Message:    fmt.Sprintf("scenario %q depends on unknown scenario %q; ignoring", id, dep),
				})
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		res.Order = append(res.Order, id)
		return nil
	}

	for _, id := range roots {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// DependenciesSatisfied is true iff every known dependency of id is in
// completed. Unknown dependencies are ignored, matching ResolveOrder.
func (r *Resolver) DependenciesSatisfied(id string, completed map[string]bool) bool {
	for _, dep := range r.deps[id] {
		if !r.Known(dep) {
			continue
		}
		if !completed[dep] {
			return false
		}
	}
	return true
}

// UnmetDependencies lists the known dependencies of id missing from completed.
func (r *Resolver) UnmetDependencies(id string, completed map[string]bool) []string {
	var unmet []string
	for _, dep := range r.deps[id] {
		if r.Known(dep) && !completed[dep] {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Dependents returns every scenario that transitively depends on id,
// in discovery order.
func (r *Resolver) Dependents(id string) []string {
	reverse := make(map[string][]string)
	for _, sc := range r.order {
		for _, dep := range r.deps[sc] {
			reverse[dep] = append(reverse[dep], sc)
		}
	}
	seen := map[string]bool{}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range reverse[cur] {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	var out []string
	for _, sc := range r.order {
		if seen[sc] && sc != id {
			out = append(out, sc)
		}
	}
	return out
}

// Edges returns (dependency, dependent) pairs over known scenarios in
// discovery order. Used by the diagram renderer.
func (r *Resolver) Edges() [][2]string {
	var edges [][2]string
	for _, sc := range r.order {
		for _, dep := range r.deps[sc] {
			if r.Known(dep) {
				edges = append(edges, [2]string{dep, sc})
			}
		}
	}
	return edges
}
