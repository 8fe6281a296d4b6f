// ABOUTME: Plan and Step types plus dependency-map validation.
// ABOUTME: A Plan is an ordered list of agent steps with index-keyed dependency edges.

package plan

import (
	"errors"
	"fmt"
)

// ErrCyclicDependencies indicates the dependency map contains a cycle.
var ErrCyclicDependencies = errors.New("cyclic dependencies")

// Status tracks a step through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step is one unit of work bound to a named logical agent and action. A step's
// identity is its index within the owning plan; steps are never reused across
// plans. The executor mutates Status, Output and Err in place.
type Step struct {
	Agent  string
	Action string
	Input  any
	Output any
	Status Status
	Err    string
}

// Plan is an ordered sequence of steps plus a dependency map. Dependencies[i]
// lists the step indices that must reach StatusCompleted before step i may run.
type Plan struct {
	TaskID       string
	Steps        []*Step
	Dependencies map[int][]int
}

// Validate checks the plan invariants: every dependency index references a step
// within the plan, and the dependency map is acyclic.
func (p *Plan) Validate() error {
	for i, deps := range p.Dependencies {
		if i < 0 || i >= len(p.Steps) {
			return fmt.Errorf("dependency map references step %d outside plan of %d steps", i, len(p.Steps))
		}
		for _, dep := range deps {
			if dep < 0 || dep >= len(p.Steps) {
				return fmt.Errorf("step %d depends on step %d outside plan of %d steps", i, dep, len(p.Steps))
			}
		}
	}

	if !acyclic(len(p.Steps), p.Dependencies) {
		return ErrCyclicDependencies
	}
	return nil
}

// acyclic runs Kahn's algorithm over the dependency edges and reports whether
// every step is reachable, i.e. no cycle exists.
func acyclic(n int, deps map[int][]int) bool {
	inDegree := make([]int, n)
	dependents := make(map[int][]int)
	for step, ds := range deps {
		for _, dep := range ds {
			inDegree[step]++
			dependents[dep] = append(dependents[dep], step)
		}
	}

	var queue []int
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	sorted := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted++
		for _, dependent := range dependents[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return sorted == n
}
