// Package resolver implements the Dependency Resolver: validates
// declared dependencies against discovered descriptors, builds the
// dependency graph, detects cycles, and produces a deterministic
// topological load order.
package resolver

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/bundle"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/hostapi"
	"github.com/olehsvyrydov/selfemploy-uk/pluginruntime/pkg/semver"
)

// Result is the outcome of a resolution pass.
type Result struct {
	ID        string
	LoadOrder []string
	Blocked   map[string]string
	Warnings  []string
}

// Resolve validates dependencies, checks version ranges, builds the
// dependency graph for unblocked bundles, detects cycles, and produces a
// deterministic topological load order.
//
// descriptors and deps are keyed by bundle id; deps need not have an
// entry for a bundle with no dependencies.
func Resolve(descriptors map[string]bundle.Descriptor, deps map[string][]bundle.Dependency) (Result, error) {
	result := Result{
		ID:      uuid.NewString(),
		Blocked: make(map[string]string),
	}

	blocked := make(map[string]string)
	for id := range descriptors {
		declared := deps[id]
		for _, dep := range declared {
			target, present := descriptors[dep.TargetID]
			if !present {
				if dep.Optional {
					result.Warnings = append(result.Warnings, fmt.Sprintf("Optional dependency missing: %s", dep.TargetID))
					continue
				}
				blocked[id] = fmt.Sprintf("Missing required dependency: %s", dep.TargetID)
				break
			}

			rng, err := semver.ParseRange(dep.Range)
			if err != nil {
				blocked[id] = fmt.Sprintf("invalid range for dependency %s: %v", dep.TargetID, err)
				break
			}
			version, err := semver.ParseVersion(target.Version)
			if err != nil {
				blocked[id] = fmt.Sprintf("invalid version for dependency %s: %v", dep.TargetID, err)
				break
			}
			if !rng.Matches(version) {
				blocked[id] = fmt.Sprintf("version mismatch: required %s, present %s", dep.Range, target.Version)
				break
			}
		}
	}

	// A bundle whose required dependency is blocked is blocked too, transitively.
	for changed := true; changed; {
		changed = false
		for id := range descriptors {
			if _, isBlocked := blocked[id]; isBlocked {
				continue
			}
			for _, dep := range deps[id] {
				if _, upstream := blocked[dep.TargetID]; upstream && !dep.Optional {
					blocked[id] = fmt.Sprintf("blocked upstream dependency: %s", dep.TargetID)
					changed = true
					break
				}
			}
		}
	}

	unblocked := make(map[string]bool, len(descriptors))
	for id := range descriptors {
		if _, isBlocked := blocked[id]; !isBlocked {
			unblocked[id] = true
		}
	}

	edges := buildEdges(unblocked, deps, descriptors)

	cycles := detectCyclesAmong(unblocked, edges)
	if len(cycles) > 0 {
		participants := make([]string, 0, len(cycles))
		for id := range cycles {
			participants = append(participants, id)
		}
		sort.Strings(participants)
		return Result{}, &hostapi.CircularDependencyError{Participants: participants}
	}

	order, err := topoSort(unblocked, edges)
	if err != nil {
		return Result{}, err
	}

	result.LoadOrder = order
	result.Blocked = blocked
	return result, nil
}

// DetectCycles reports the participants of any dependency cycles among
// descriptors without raising — used diagnostically.
func DetectCycles(descriptors map[string]bundle.Descriptor, deps map[string][]bundle.Dependency) []string {
	all := make(map[string]bool, len(descriptors))
	for id := range descriptors {
		all[id] = true
	}
	edges := buildEdges(all, deps, descriptors)
	cycles := detectCyclesAmong(all, edges)

	out := make([]string, 0, len(cycles))
	for id := range cycles {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// buildEdges returns, for each dependent id in `nodes`, the set of
// dependency ids (edges point dependency -> dependent, but this map is
// keyed by dependent for topo-sort convenience: dependent requires each
// of its listed dependencies to be visited first).
func buildEdges(nodes map[string]bool, deps map[string][]bundle.Dependency, descriptors map[string]bundle.Descriptor) map[string][]string {
	edges := make(map[string][]string, len(nodes))
	for id := range nodes {
		for _, dep := range deps[id] {
			if _, present := descriptors[dep.TargetID]; !present {
				continue
			}
			if !nodes[dep.TargetID] {
				continue
			}
			edges[id] = append(edges[id], dep.TargetID)
		}
		sort.Strings(edges[id])
	}
	return edges
}

// detectCyclesAmong runs Tarjan's strongly-connected-components
// algorithm over `nodes`/`edges` (dependent -> dependency edges) and
// returns the set of ids that participate in any cycle. A self-loop
// (a node depending on itself) is reported as a cycle of size one.
func detectCyclesAmong(nodes map[string]bool, edges map[string][]string) map[string]bool {
	type tarjanState struct {
		index, lowlink int
		onStack        bool
	}

	states := make(map[string]*tarjanState, len(nodes))
	var stack []string
	nextIndex := 0
	cyclic := make(map[string]bool)

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		states[v] = &tarjanState{index: nextIndex, lowlink: nextIndex, onStack: true}
		nextIndex++
		stack = append(stack, v)

		for _, w := range edges[v] {
			if states[w] == nil {
				strongConnect(w)
				if states[w].lowlink < states[v].lowlink {
					states[v].lowlink = states[w].lowlink
				}
			} else if states[w].onStack {
				if states[w].index < states[v].lowlink {
					states[v].lowlink = states[w].index
				}
			}
		}

		if states[v].lowlink == states[v].index {
			var component []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				states[w].onStack = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				for _, id := range component {
					cyclic[id] = true
				}
			} else if len(component) == 1 {
				// Self-loop: v lists itself as a dependency.
				for _, dep := range edges[component[0]] {
					if dep == component[0] {
						cyclic[component[0]] = true
					}
				}
			}
		}
	}

	for _, id := range ids {
		if states[id] == nil {
			strongConnect(id)
		}
	}
	return cyclic
}

// topoSort produces a deterministic topological order (Kahn's
// algorithm, dependencies before dependents) with descriptor id as the
// stable tiebreak among ready nodes.
func topoSort(nodes map[string]bool, edges map[string][]string) ([]string, error) {
	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes)) // dependency -> dependents waiting on it
	for id := range nodes {
		inDegree[id] = len(edges[id])
	}
	for dependent, dependencies := range edges {
		for _, dep := range dependencies {
			dependents[dep] = append(dependents[dep], dependent)
		}
	}
	for _, list := range dependents {
		sort.Strings(list)
	}

	var ready []string
	for id := range nodes {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, dependent := range dependents[next] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(nodes) {
		// Should be unreachable: cycle detection runs first.
		return nil, fmt.Errorf("resolver: topological sort could not order all nodes (got %d of %d)", len(order), len(nodes))
	}
	return order, nil
}
