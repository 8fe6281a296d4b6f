// ABOUTME: Background job scheduler for cron, webhook and event triggered workflows.
// ABOUTME: Each trigger re-invokes the orchestrator end-to-end and persists an execution record.

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/orchestrator"
	"github.com/loomworks/loom/internal/store"
)

// ErrInvalidJob indicates a registration whose discriminant field does not
// match the job type.
var ErrInvalidJob = errors.New("invalid job configuration")

// ErrDuplicateJob indicates a job with the same ID is already registered.
var ErrDuplicateJob = errors.New("job already registered")

// JobType discriminates how a job is triggered.
type JobType string

const (
	TypeCron    JobType = "cron"
	TypeWebhook JobType = "webhook"
	TypeEvent   JobType = "event"
)

// JobStatus tracks whether a job reacts to its triggers.
type JobStatus string

const (
	StatusActive   JobStatus = "active"
	StatusPaused   JobStatus = "paused"
	StatusDisabled JobStatus = "disabled"
)

// Job binds a trigger condition to a stored workflow. Exactly one of
// Schedule, WebhookPath or EventType is populated, matching Type. Jobs live
// in the scheduler's in-memory registry for the process lifetime; the bound
// workflow is what persists.
type Job struct {
	ID              string
	UserID          string
	WorkflowID      string
	Type            JobType
	Schedule        string
	WebhookPath     string
	EventType       string
	Status          JobStatus
	LastTriggeredAt *time.Time
	NextRunAt       *time.Time

	running bool // reentrancy guard: a tick in flight
}

// TaskRunner is the orchestrator surface the scheduler needs.
type TaskRunner interface {
	ExecuteTask(ctx context.Context, userInput, userID string) orchestrator.TaskResult
}

// IntervalFunc derives a tick period from a job schedule string.
type IntervalFunc func(schedule string) time.Duration

// ParseSchedule is the default schedule-to-interval mapping. It is a
// deliberate simplification of cron syntax: substring matching on "minute",
// "hour" and "daily", with an hourly default. Swap in a real cron parser via
// the IntervalFunc parameter without touching the rest of the scheduler.
func ParseSchedule(schedule string) time.Duration {
	switch {
	case strings.Contains(schedule, "minute"):
		return time.Minute
	case strings.Contains(schedule, "hour"):
		return time.Hour
	case strings.Contains(schedule, "daily"):
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Scheduler owns the in-memory job registry and the per-job cron tickers.
// Registrations are lost on restart; the composition root re-registers jobs
// from persisted workflow definitions at startup.
type Scheduler struct {
	workflows  store.WorkflowRepository
	executions store.ExecutionRepository
	runner     TaskRunner
	interval   IntervalFunc
	logger     *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	stopped map[string]chan struct{}
}

// NewScheduler creates a scheduler. Pass nil interval for the default
// ParseSchedule mapping and nil logger for the default logger.
func NewScheduler(workflows store.WorkflowRepository, executions store.ExecutionRepository, runner TaskRunner, interval IntervalFunc, logger *slog.Logger) *Scheduler {
	if interval == nil {
		interval = ParseSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		workflows:  workflows,
		executions: executions,
		runner:     runner,
		interval:   interval,
		logger:     logger.With("component", "scheduler"),
		jobs:       make(map[string]*Job),
		stopped:    make(map[string]chan struct{}),
	}
}

// RegisterCronJob registers a recurring job and starts its ticker. The ticker
// fires for the job's process lifetime; a paused job's ticks no-op.
func (s *Scheduler) RegisterCronJob(job *Job) error {
	if job.Type != TypeCron || job.Schedule == "" {
		return fmt.Errorf("%w: cron job requires a schedule", ErrInvalidJob)
	}
	if err := s.add(job); err != nil {
		return err
	}

	period := s.interval(job.Schedule)
	next := time.Now().Add(period)
	job.NextRunAt = &next

	done := make(chan struct{})
	s.mu.Lock()
	s.stopped[job.ID] = done
	s.mu.Unlock()

	go s.runTicker(job.ID, period, done)

	s.logger.Info("cron job registered", "job_id", job.ID, "schedule", job.Schedule, "period", period)
	return nil
}

// RegisterWebhook registers a webhook-triggered job. Delivery happens when
// the surrounding HTTP layer calls TriggerWebhook with the job's path.
func (s *Scheduler) RegisterWebhook(job *Job) error {
	if job.Type != TypeWebhook || job.WebhookPath == "" {
		return fmt.Errorf("%w: webhook job requires a path", ErrInvalidJob)
	}
	if err := s.add(job); err != nil {
		return err
	}
	s.logger.Info("webhook registered", "job_id", job.ID, "path", job.WebhookPath)
	return nil
}

// RegisterEventListener registers an event-triggered job, fired via EmitEvent.
func (s *Scheduler) RegisterEventListener(job *Job) error {
	if job.Type != TypeEvent || job.EventType == "" {
		return fmt.Errorf("%w: event job requires an event type", ErrInvalidJob)
	}
	if err := s.add(job); err != nil {
		return err
	}
	s.logger.Info("event listener registered", "job_id", job.ID, "event_type", job.EventType)
	return nil
}

// add inserts a job into the registry.
func (s *Scheduler) add(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrDuplicateJob
	}
	s.jobs[job.ID] = job
	return nil
}

// runTicker drives a cron job until its stop channel closes.
func (s *Scheduler) runTicker(jobID string, period time.Duration, done chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(jobID)
		case <-done:
			return
		}
	}
}

// tick runs one trigger attempt for a job. Paused jobs and jobs with a tick
// still in flight are skipped.
func (s *Scheduler) tick(jobID string) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != StatusActive {
		s.mu.Unlock()
		return
	}
	if job.running {
		s.mu.Unlock()
		s.logger.Warn("skipping overlapping tick", "job_id", jobID)
		return
	}
	job.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		job.running = false
		s.mu.Unlock()
	}()

	s.executeJob(context.Background(), job)
}

// TriggerWebhook fires all active webhook jobs registered for the path.
// Returns the number of jobs triggered.
func (s *Scheduler) TriggerWebhook(ctx context.Context, path string) int {
	return s.triggerMatching(ctx, func(j *Job) bool {
		return j.Type == TypeWebhook && j.WebhookPath == path
	})
}

// EmitEvent fires all active event jobs subscribed to the event type.
// Returns the number of jobs triggered.
func (s *Scheduler) EmitEvent(ctx context.Context, eventType string) int {
	return s.triggerMatching(ctx, func(j *Job) bool {
		return j.Type == TypeEvent && j.EventType == eventType
	})
}

// triggerMatching synchronously executes every active job passing the filter.
func (s *Scheduler) triggerMatching(ctx context.Context, match func(*Job) bool) int {
	s.mu.Lock()
	var targets []*Job
	for _, job := range s.jobs {
		if job.Status == StatusActive && match(job) && !job.running {
			job.running = true
			targets = append(targets, job)
		}
	}
	s.mu.Unlock()

	for _, job := range targets {
		s.executeJob(ctx, job)
		s.mu.Lock()
		job.running = false
		s.mu.Unlock()
	}
	return len(targets)
}

// executeJob runs one end-to-end trigger: load the workflow, persist a
// running execution record, re-invoke the orchestrator, and persist the
// outcome. Failures are logged and contained; the job keeps running.
func (s *Scheduler) executeJob(ctx context.Context, job *Job) {
	workflow, err := s.workflows.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		s.logger.Error("workflow not found for job",
			"job_id", job.ID,
			"workflow_id", job.WorkflowID,
			"error", err,
		)
		return
	}

	steps := make([]store.ExecutionStep, len(workflow.Steps))
	for i, ws := range workflow.Steps {
		steps[i] = store.ExecutionStep{Agent: ws.Agent, Action: ws.Action, Status: "pending"}
	}

	execution := &store.Execution{
		UserID:       job.UserID,
		WorkflowID:   workflow.ID,
		WorkflowName: workflow.Name,
		TriggerType:  string(job.Type),
		Status:       store.ExecutionRunning,
		Steps:        steps,
	}
	if err := s.executions.CreateExecution(ctx, execution); err != nil {
		s.logger.Error("creating execution record", "job_id", job.ID, "error", err)
		return
	}

	result := s.runner.ExecuteTask(ctx, "Execute workflow: "+workflow.Name, job.UserID)

	output := ""
	if result.Result != nil {
		if data, err := json.Marshal(result.Result.Results); err == nil {
			output = string(data)
		}
	}
	if err := s.executions.CompleteExecution(ctx, execution.ID, result.Success, output, result.Err); err != nil {
		s.logger.Error("completing execution record", "execution_id", execution.ID, "error", err)
	}
	if err := s.workflows.IncrementRunCount(ctx, workflow.ID, result.Success); err != nil {
		s.logger.Error("updating workflow counters", "workflow_id", workflow.ID, "error", err)
	}

	now := time.Now()
	s.mu.Lock()
	job.LastTriggeredAt = &now
	if job.Type == TypeCron {
		next := now.Add(s.interval(job.Schedule))
		job.NextRunAt = &next
	}
	s.mu.Unlock()

	s.logger.Info("job triggered",
		"job_id", job.ID,
		"workflow_id", workflow.ID,
		"success", result.Success,
	)
}

// PauseJob marks a job paused. The underlying ticker keeps firing; ticks
// no-op until the job is resumed.
func (s *Scheduler) PauseJob(id string) {
	s.setStatus(id, StatusPaused)
}

// ResumeJob marks a paused job active again.
func (s *Scheduler) ResumeJob(id string) {
	s.setStatus(id, StatusActive)
}

func (s *Scheduler) setStatus(id string, status JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
	}
}

// RemoveJob stops the job's ticker (if any) and removes it from the registry.
// Idempotent.
func (s *Scheduler) RemoveJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if done, ok := s.stopped[id]; ok {
		close(done)
		delete(s.stopped, id)
	}
	delete(s.jobs, id)
}

// ActiveJobs returns a snapshot of jobs with active status.
func (s *Scheduler) ActiveJobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var active []*Job
	for _, job := range s.jobs {
		if job.Status == StatusActive {
			active = append(active, job)
		}
	}
	return active
}

// Close stops all tickers and clears the registry.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, done := range s.stopped {
		close(done)
		delete(s.stopped, id)
	}
	s.jobs = make(map[string]*Job)
	s.logger.Info("scheduler closed")
}
