// ABOUTME: Sequential plan executor with dependency gating and pluggable step handlers.
// ABOUTME: Walks steps in plan order; the dependency map is a gate, not a scheduler.

package plan

import (
	"context"
	"fmt"
	"log/slog"
)

// errDependenciesNotMet is the fixed error recorded on a step whose
// prerequisites did not complete.
const errDependenciesNotMet = "Dependencies not met"

// StepHandler executes a single step and returns its output. A returned error
// marks the step failed; under PolicyAbort it also aborts the rest of the plan.
type StepHandler func(ctx context.Context, userID string, step *Step) (any, error)

// FailurePolicy controls what a handler error does to the remaining steps.
type FailurePolicy int

const (
	// PolicyAbort stops the walk at the first handler error, leaving later
	// steps pending. The default for intent plans.
	PolicyAbort FailurePolicy = iota
	// PolicyContinue records the failure and keeps walking. The default for
	// chains, where independent branches should still get a chance to run.
	PolicyContinue
)

// Result aggregates one execution: the (mutated) steps and the outputs of each
// successful step in completion order.
type Result struct {
	Steps   []*Step
	Results []any
}

// ChainResult aggregates one chain execution.
type ChainResult struct {
	Goal    string
	Steps   []*ChainStep
	Results []any
}

// Executor walks plans sequentially. Steps run in index order even where the
// dependency DAG would permit parallelism; templates are ordered so that the
// walk always satisfies the DAG. A step whose dependencies have not completed
// is marked failed and skipped — the walk continues with the next step.
type Executor struct {
	policy FailurePolicy
	logger *slog.Logger
}

// NewExecutor creates an executor with the given failure policy. Pass nil
// logger for the default.
func NewExecutor(logger *slog.Logger, policy FailurePolicy) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		policy: policy,
		logger: logger.With("component", "executor"),
	}
}

// Execute runs the plan's steps in order, gating each on its dependencies.
// Under PolicyAbort a handler error is returned and later steps stay pending;
// under PolicyContinue the error is recorded on the step and the walk goes on.
// Either way the plan's steps are mutated in place so callers can render
// partial progress.
func (e *Executor) Execute(ctx context.Context, p *Plan, userID string, handler StepHandler) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan %s: %w", p.TaskID, err)
	}

	res := &Result{Steps: p.Steps}
	err := e.run(ctx, p.TaskID, p.Steps, p.Dependencies, userID, handler, &res.Results)
	if err != nil {
		return res, err
	}
	return res, nil
}

// ExecuteChain runs a chain with the same gating rules as Execute.
func (e *Executor) ExecuteChain(ctx context.Context, c *Chain, userID string, handler StepHandler) (*ChainResult, error) {
	steps := make([]*Step, len(c.Steps))
	for i, cs := range c.Steps {
		steps[i] = &cs.Step
	}

	res := &ChainResult{Goal: c.Goal, Steps: c.Steps}
	err := e.run(ctx, c.Goal, steps, c.Dependencies, userID, handler, &res.Results)
	if err != nil {
		return res, err
	}
	return res, nil
}

// run is the shared walk. Steps already completed (pre-completed validation
// steps) are skipped without invoking the handler.
func (e *Executor) run(ctx context.Context, taskID string, steps []*Step, deps map[int][]int, userID string, handler StepHandler, results *[]any) error {
	for i, step := range steps {
		if step.Status == StatusCompleted {
			if step.Output != nil {
				*results = append(*results, step.Output)
			}
			continue
		}

		if !depsCompleted(steps, deps[i]) {
			step.Status = StatusFailed
			step.Err = errDependenciesNotMet
			e.logger.Debug("step skipped, dependencies not met",
				"task_id", taskID,
				"step", i,
				"agent", step.Agent,
				"action", step.Action,
			)
			continue
		}

		step.Status = StatusRunning
		output, err := handler(ctx, userID, step)
		if err != nil {
			step.Status = StatusFailed
			step.Err = err.Error()
			e.logger.Warn("step failed",
				"task_id", taskID,
				"step", i,
				"agent", step.Agent,
				"action", step.Action,
				"error", err,
			)
			if e.policy == PolicyAbort {
				return fmt.Errorf("step %d (%s.%s): %w", i, step.Agent, step.Action, err)
			}
			continue
		}

		step.Output = output
		step.Status = StatusCompleted
		*results = append(*results, output)
	}

	return nil
}

// depsCompleted reports whether every listed dependency has completed.
func depsCompleted(steps []*Step, deps []int) bool {
	for _, dep := range deps {
		if steps[dep].Status != StatusCompleted {
			return false
		}
	}
	return true
}
