package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikkihugo/agentrouter/types"
)

// TaskGraph is the dependency graph of one DAG execution.
type TaskGraph struct {
	// order preserves input order for deterministic scheduling.
	order []string
	tasks map[string]*types.Task
	// dependents maps a task to the tasks that depend on it.
	dependents map[string][]string
	// inDegree counts each task's dependencies.
	inDegree map[string]int
}

// BuildGraph validates tasks and builds their dependency graph. Empty,
// duplicate or unknown ids are rejected as INVALID_REQUEST and any cycle,
// self-dependencies included, as CYCLIC_DEPENDENCY.
func BuildGraph(tasks []*types.Task) (*TaskGraph, error) {
	g := &TaskGraph{
		order:      make([]string, 0, len(tasks)),
		tasks:      make(map[string]*types.Task, len(tasks)),
		dependents: make(map[string][]string),
		inDegree:   make(map[string]int, len(tasks)),
	}

	for _, t := range tasks {
		if t == nil {
			return nil, types.NewInvalidRequestError("task is nil")
		}
		if t.ID == "" {
			return nil, types.NewInvalidRequestError("task has empty id")
		}
		if _, dup := g.tasks[t.ID]; dup {
			return nil, types.NewInvalidRequestError(fmt.Sprintf("duplicate task id %s", t.ID))
		}
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
		g.inDegree[t.ID] = 0
	}

	for _, id := range g.order {
		seen := make(map[string]bool)
		for _, dep := range g.tasks[id].Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return nil, types.NewInvalidRequestError(fmt.Sprintf("task %s depends on unknown task %s", id, dep))
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.dependents[dep] = append(g.dependents[dep], id)
			g.inDegree[id]++
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, types.NewError(types.ErrCyclicDependency,
			fmt.Sprintf("cycle detected: %s", strings.Join(cycle, " -> ")))
	}
	return g, nil
}

// findCycle returns the nodes of one cycle, or nil when the graph is acyclic.
func (g *TaskGraph) findCycle() []string {
	const (
		white = 0 // not visited
		gray  = 1 // on the current DFS path
		black = 2 // finished
	)

	colors := make(map[string]int, len(g.order))
	var path []string

	var dfs func(string) []string
	dfs = func(node string) []string {
		colors[node] = gray
		path = append(path, node)

		for _, next := range g.dependents[node] {
			switch colors[next] {
			case gray:
				// back edge: slice the path from next's position
				for i, n := range path {
					if n == next {
						return append(append([]string(nil), path[i:]...), next)
					}
				}
			case white:
				if c := dfs(next); c != nil {
					return c
				}
			}
		}

		path = path[:len(path)-1]
		colors[node] = black
		return nil
	}

	for _, id := range g.order {
		if colors[id] == white {
			if c := dfs(id); c != nil {
				return c
			}
		}
	}
	return nil
}

// Len returns the number of tasks.
func (g *TaskGraph) Len() int { return len(g.order) }

// Dependents returns the direct dependents of id.
func (g *TaskGraph) Dependents(id string) []string { return g.dependents[id] }

// Waves groups tasks into layers where every task's dependencies lie in
// earlier layers (Kahn's algorithm). Within a layer, input order is kept.
func (g *TaskGraph) Waves() [][]string {
	inDegree := make(map[string]int, len(g.inDegree))
	for k, v := range g.inDegree {
		inDegree[k] = v
	}

	var current []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			current = append(current, id)
		}
	}

	var waves [][]string
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	for len(current) > 0 {
		waves = append(waves, current)
		var next []string
		for _, id := range current {
			for _, dep := range g.dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		sortByPosition(next, position)
		current = next
	}
	return waves
}

func sortByPosition(ids []string, position map[string]int) {
	sort.Slice(ids, func(i, j int) bool { return position[ids[i]] < position[ids[j]] })
}

// TopologicalWaves validates tasks and returns their wave layering.
func TopologicalWaves(tasks []*types.Task) ([][]string, error) {
	g, err := BuildGraph(tasks)
	if err != nil {
		return nil, err
	}
	return g.Waves(), nil
}
