// Package schedule implements the Topological Scheduler: given each
// handle's dependency set, produce a total order respecting
// dependencies plus a grouping by longest-path depth from any leaf, so
// the Rig Runner can execute each group's handles concurrently.
package schedule

import "sort"

// CycleError reports a dependency cycle detected while scheduling,
// carrying the handles found to participate in it.
type CycleError struct {
	Handles []string
}

func (e *CycleError) Error() string {
	desc := "cycle detected among: "
	for i, h := range e.Handles {
		if i > 0 {
			desc += ", "
		}
		desc += h
	}
	return desc
}

// MissingHandleError reports a dependency naming a handle absent from
// the dependency map itself.
type MissingHandleError struct {
	From, Missing string
}

func (e *MissingHandleError) Error() string {
	return "handle " + e.From + " depends on unknown handle " + e.Missing
}

// Result is the scheduler's output: sorted is any total order
// respecting dependencies; grouped[k] holds every handle whose
// longest-path depth from a leaf (a handle with no dependencies)
// equals k, so all of grouped[k] can run concurrently once every
// earlier group has completed.
type Result struct {
	Sorted  []string
	Grouped [][]string
}

// Schedule computes sorted/grouped from deps, a map from handle to the
// set of handles it depends on.
func Schedule(deps map[string][]string) (*Result, error) {
	for handle, handleDeps := range deps {
		for _, dep := range handleDeps {
			if _, ok := deps[dep]; !ok {
				return nil, &MissingHandleError{From: handle, Missing: dep}
			}
		}
	}

	depth, order, err := longestPathDepths(deps)
	if err != nil {
		return nil, err
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	grouped := make([][]string, maxDepth+1)
	for _, handle := range order {
		d := depth[handle]
		grouped[d] = append(grouped[d], handle)
	}

	return &Result{Sorted: order, Grouped: grouped}, nil
}

// longestPathDepths performs a DFS-based topological sort with cycle
// detection (white/gray/black coloring) while computing each handle's
// longest-path depth from a leaf.
func longestPathDepths(deps map[string][]string) (map[string]int, []string, error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(deps))
	depth := make(map[string]int, len(deps))
	var order []string
	var stack []string

	handles := make([]string, 0, len(deps))
	for h := range deps {
		handles = append(handles, h)
	}

	var visit func(handle string) error
	visit = func(handle string) error {
		switch color[handle] {
		case black:
			return nil
		case gray:
			cycle := append(append([]string{}, stack...), handle)
			return &CycleError{Handles: cycle}
		}
		color[handle] = gray
		stack = append(stack, handle)

		maxDepDepth := -1
		for _, dep := range deps[handle] {
			if err := visit(dep); err != nil {
				return err
			}
			if depth[dep] > maxDepDepth {
				maxDepDepth = depth[dep]
			}
		}
		depth[handle] = maxDepDepth + 1

		stack = stack[:len(stack)-1]
		color[handle] = black
		order = append(order, handle)
		return nil
	}

	// Sort handles for deterministic iteration order (Go map iteration
	// is randomized, which would otherwise make `sorted`/`grouped`
	// ordering test-flaky despite being a valid total order either way).
	sort.Strings(handles)
	for _, h := range handles {
		if err := visit(h); err != nil {
			return nil, nil, err
		}
	}

	return depth, order, nil
}
