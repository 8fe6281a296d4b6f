// ABOUTME: Composition of intent classification, plan building and execution.
// ABOUTME: ExecuteTask is the single entry point and the single error boundary.

package orchestrator

import (
	"context"
	"log/slog"

	"github.com/loomworks/loom/internal/intent"
	"github.com/loomworks/loom/internal/plan"
)

// TaskResult is the caller-visible outcome of one ExecuteTask call. Errors are
// normalized to the Err string; callers never see a raw error cross this
// boundary. On partial failure the plan's steps carry per-step status so
// consumers can render progress.
type TaskResult struct {
	Success bool
	Intent  *intent.Intent
	Plan    *plan.Plan
	Result  *plan.Result
	Err     string
}

// GoalResult is the outcome of one ExecuteGoal call.
type GoalResult struct {
	Success bool
	Chain   *plan.Chain
	Result  *plan.ChainResult
	Err     string
}

// StepFunc executes one step scoped to an execution ID.
type StepFunc func(ctx context.Context, executionID, userID string, step *plan.Step) (any, error)

// Orchestrator wires the classifier, builders and executors into the task
// pipeline. Instances are explicitly constructed and injected; there is no
// shared process-wide state.
type Orchestrator struct {
	classifier    intent.Classifier
	builder       *plan.Builder
	chainBuilder  *plan.ChainBuilder
	executor      *plan.Executor
	chainExecutor *plan.Executor
	handler       StepFunc
	logger        *slog.Logger
}

// New creates an orchestrator. The handler runs each plan step; pass
// (&StubAgentPool{}).Handle-style funcs or a real agent dispatch. Pass nil
// logger for the default.
func New(classifier intent.Classifier, handler StepFunc, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	return &Orchestrator{
		classifier:   classifier,
		builder:      plan.NewBuilder(),
		chainBuilder: plan.NewChainBuilder(),
		// Plans abort at the first handler failure; chains record the failure
		// and keep walking their independent branches.
		executor:      plan.NewExecutor(logger, plan.PolicyAbort),
		chainExecutor: plan.NewExecutor(logger, plan.PolicyContinue),
		handler:       handler,
		logger:        logger,
	}
}

// ExecuteTask classifies the input, builds the plan and executes it. All
// executor errors are caught here and folded into the result.
func (o *Orchestrator) ExecuteTask(ctx context.Context, userInput, userID string) TaskResult {
	in := o.classifier.Classify(userInput)
	p := o.builder.Build(in)

	o.logger.Info("executing task",
		"task_id", p.TaskID,
		"kind", in.Kind,
		"confidence", in.Confidence,
		"steps", len(p.Steps),
	)

	handler := func(ctx context.Context, userID string, step *plan.Step) (any, error) {
		return o.handler(ctx, p.TaskID, userID, step)
	}

	res, err := o.executor.Execute(ctx, p, userID, handler)
	if err != nil {
		o.logger.Warn("task execution failed", "task_id", p.TaskID, "error", err)
		return TaskResult{
			Intent: &in,
			Plan:   p,
			Result: res,
			Err:    err.Error(),
		}
	}

	return TaskResult{
		Success: true,
		Intent:  &in,
		Plan:    p,
		Result:  res,
	}
}

// ExecuteGoal decomposes a broad goal phrase into a chain and runs it with the
// continue-on-failure policy. An unrecognized goal yields an empty, successful
// result.
func (o *Orchestrator) ExecuteGoal(ctx context.Context, goal, userID string) GoalResult {
	c := o.chainBuilder.BuildChain(goal)

	o.logger.Info("executing goal chain", "goal", goal, "steps", len(c.Steps))

	handler := func(ctx context.Context, userID string, step *plan.Step) (any, error) {
		return o.handler(ctx, c.Goal, userID, step)
	}

	res, err := o.chainExecutor.ExecuteChain(ctx, c, userID, handler)
	if err != nil {
		return GoalResult{Chain: c, Result: res, Err: err.Error()}
	}

	return GoalResult{Success: true, Chain: c, Result: res}
}

// AgentStatus returns the static availability map for display purposes. It is
// not part of the execution contract.
func (o *Orchestrator) AgentStatus() map[string]string {
	return map[string]string{
		"IntentRecognizer":    "active",
		"RoutingAgent":        "active",
		"GmailAgent":          "inactive",
		"SlackAgent":          "inactive",
		"NotionAgent":         "inactive",
		"GitHubAgent":         "inactive",
		"GoogleCalendarAgent": "inactive",
		"SearchAgent":         "active",
		"SummarizerAgent":     "active",
		"DataAgent":           "active",
		"ReportAgent":         "active",
	}
}
