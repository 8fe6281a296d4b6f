// ABOUTME: Tests for the background job scheduler.
// ABOUTME: Uses in-memory repositories and millisecond intervals to exercise real tickers.

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/orchestrator"
	"github.com/loomworks/loom/internal/plan"
	"github.com/loomworks/loom/internal/store"
)

type fakeWorkflows struct {
	mu         sync.Mutex
	workflows  map[string]*store.Workflow
	increments []bool
}

func newFakeWorkflows(ws ...*store.Workflow) *fakeWorkflows {
	f := &fakeWorkflows{workflows: make(map[string]*store.Workflow)}
	for _, w := range ws {
		f.workflows[w.ID] = w
	}
	return f
}

func (f *fakeWorkflows) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workflows[w.ID] = w
	return nil
}

func (f *fakeWorkflows) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workflows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return w, nil
}

func (f *fakeWorkflows) ListWorkflows(ctx context.Context) ([]*store.Workflow, error) {
	return nil, nil
}

func (f *fakeWorkflows) IncrementRunCount(ctx context.Context, id string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments = append(f.increments, success)
	return nil
}

func (f *fakeWorkflows) incrementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.increments)
}

type fakeExecutions struct {
	mu        sync.Mutex
	created   []*store.Execution
	completed []string
}

func (f *fakeExecutions) CreateExecution(ctx context.Context, e *store.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = fmt.Sprintf("exec_%d", len(f.created)+1)
	f.created = append(f.created, e)
	return nil
}

func (f *fakeExecutions) GetExecution(ctx context.Context, id string) (*store.Execution, error) {
	return nil, store.ErrNotFound
}

func (f *fakeExecutions) ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*store.Execution, error) {
	return nil, nil
}

func (f *fakeExecutions) CompleteExecution(ctx context.Context, id string, success bool, output, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeExecutions) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeRunner struct {
	mu     sync.Mutex
	inputs []string
}

func (f *fakeRunner) ExecuteTask(ctx context.Context, userInput, userID string) orchestrator.TaskResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, userInput)
	return orchestrator.TaskResult{
		Success: true,
		Result:  &plan.Result{Results: []any{"ok"}},
	}
}

func (f *fakeRunner) lastInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return ""
	}
	return f.inputs[len(f.inputs)-1]
}

func testWorkflow() *store.Workflow {
	return &store.Workflow{
		ID:     "wf_1",
		UserID: "user_1",
		Name:   "Daily Report",
		Steps: []store.WorkflowStep{
			{ID: "s1", Agent: "DataAgent", Action: "fetch_metrics"},
		},
		Status: store.WorkflowActive,
	}
}

func fastInterval(string) time.Duration { return 15 * time.Millisecond }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestScheduler_RegisterCronJobValidatesType(t *testing.T) {
	s := NewScheduler(newFakeWorkflows(), &fakeExecutions{}, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	err := s.RegisterCronJob(&Job{ID: "j1", Type: TypeWebhook, WebhookPath: "/hook"})
	require.ErrorIs(t, err, ErrInvalidJob)

	err = s.RegisterCronJob(&Job{ID: "j1", Type: TypeCron})
	require.ErrorIs(t, err, ErrInvalidJob)
}

func TestScheduler_DuplicateIDRejected(t *testing.T) {
	s := NewScheduler(newFakeWorkflows(testWorkflow()), &fakeExecutions{}, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	job := &Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeWebhook, WebhookPath: "/hook", Status: StatusActive}
	require.NoError(t, s.RegisterWebhook(job))

	err := s.RegisterWebhook(&Job{ID: "j1", Type: TypeWebhook, WebhookPath: "/other"})
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestScheduler_CronTickExecutesWorkflow(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	executions := &fakeExecutions{}
	runner := &fakeRunner{}
	s := NewScheduler(workflows, executions, runner, fastInterval, nil)
	defer s.Close()

	job := &Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeCron, Schedule: "every hour", Status: StatusActive}
	require.NoError(t, s.RegisterCronJob(job))
	require.NotNil(t, job.NextRunAt)

	waitFor(t, func() bool { return executions.createdCount() >= 1 }, "tick never created an execution")
	waitFor(t, func() bool { return workflows.incrementCount() >= 1 }, "tick never updated run counters")

	assert.Equal(t, "Execute workflow: Daily Report", runner.lastInput())

	executions.mu.Lock()
	first := executions.created[0]
	executions.mu.Unlock()
	assert.Equal(t, "wf_1", first.WorkflowID)
	assert.Equal(t, "cron", first.TriggerType)
	require.Len(t, first.Steps, 1)
	assert.Equal(t, "DataAgent", first.Steps[0].Agent)
}

func TestScheduler_PausedJobSkipsTicks(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	executions := &fakeExecutions{}
	s := NewScheduler(workflows, executions, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	job := &Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeCron, Schedule: "every minute", Status: StatusActive}
	require.NoError(t, s.RegisterCronJob(job))
	s.PauseJob("j1")

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 0, executions.createdCount(), "paused job must not execute")
	assert.Empty(t, s.ActiveJobs())

	s.ResumeJob("j1")
	waitFor(t, func() bool { return executions.createdCount() >= 1 }, "resumed job never executed")
}

func TestScheduler_RemoveJobIsIdempotent(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	executions := &fakeExecutions{}
	s := NewScheduler(workflows, executions, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	job := &Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeCron, Schedule: "every minute", Status: StatusActive}
	require.NoError(t, s.RegisterCronJob(job))

	s.RemoveJob("j1")
	s.RemoveJob("j1")
	s.RemoveJob("never-existed")

	count := executions.createdCount()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, count, executions.createdCount(), "removed job must stop ticking")
}

func TestScheduler_TriggerWebhookFiresMatchingJobs(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	executions := &fakeExecutions{}
	runner := &fakeRunner{}
	s := NewScheduler(workflows, executions, runner, fastInterval, nil)
	defer s.Close()

	require.NoError(t, s.RegisterWebhook(&Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeWebhook, WebhookPath: "/hooks/report", Status: StatusActive}))
	require.NoError(t, s.RegisterWebhook(&Job{ID: "j2", UserID: "user_1", WorkflowID: "wf_1", Type: TypeWebhook, WebhookPath: "/hooks/other", Status: StatusActive}))

	fired := s.TriggerWebhook(context.Background(), "/hooks/report")
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, executions.createdCount())

	assert.Equal(t, 0, s.TriggerWebhook(context.Background(), "/hooks/unknown"))
}

func TestScheduler_TriggerWebhookSkipsPausedJobs(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	executions := &fakeExecutions{}
	s := NewScheduler(workflows, executions, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	require.NoError(t, s.RegisterWebhook(&Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeWebhook, WebhookPath: "/hooks/report", Status: StatusActive}))
	s.PauseJob("j1")

	assert.Equal(t, 0, s.TriggerWebhook(context.Background(), "/hooks/report"))
	assert.Equal(t, 0, executions.createdCount())
}

func TestScheduler_EmitEventFiresSubscribers(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	executions := &fakeExecutions{}
	s := NewScheduler(workflows, executions, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	require.NoError(t, s.RegisterEventListener(&Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeEvent, EventType: "user.signup", Status: StatusActive}))
	require.NoError(t, s.RegisterEventListener(&Job{ID: "j2", UserID: "user_1", WorkflowID: "wf_1", Type: TypeEvent, EventType: "user.signup", Status: StatusActive}))

	fired := s.EmitEvent(context.Background(), "user.signup")
	assert.Equal(t, 2, fired)
	assert.Equal(t, 2, executions.createdCount())

	assert.Equal(t, 0, s.EmitEvent(context.Background(), "user.churn"))
}

func TestScheduler_MissingWorkflowAbortsTrigger(t *testing.T) {
	executions := &fakeExecutions{}
	s := NewScheduler(newFakeWorkflows(), executions, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	require.NoError(t, s.RegisterWebhook(&Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_gone", Type: TypeWebhook, WebhookPath: "/hooks/report", Status: StatusActive}))

	fired := s.TriggerWebhook(context.Background(), "/hooks/report")
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, executions.createdCount(), "no execution record without a workflow")
}

func TestScheduler_JobTimestampsUpdatedAfterTrigger(t *testing.T) {
	workflows := newFakeWorkflows(testWorkflow())
	s := NewScheduler(workflows, &fakeExecutions{}, &fakeRunner{}, fastInterval, nil)
	defer s.Close()

	job := &Job{ID: "j1", UserID: "user_1", WorkflowID: "wf_1", Type: TypeWebhook, WebhookPath: "/hooks/report", Status: StatusActive}
	require.NoError(t, s.RegisterWebhook(job))
	require.Nil(t, job.LastTriggeredAt)

	s.TriggerWebhook(context.Background(), "/hooks/report")
	require.NotNil(t, job.LastTriggeredAt)
}

func TestParseSchedule(t *testing.T) {
	assert.Equal(t, time.Minute, ParseSchedule("every minute"))
	assert.Equal(t, time.Hour, ParseSchedule("every hour"))
	assert.Equal(t, 24*time.Hour, ParseSchedule("daily at 9am"))
	assert.Equal(t, time.Hour, ParseSchedule("0 */2 * * *"))
}
