// ABOUTME: Store interfaces and data types for workflow/execution persistence.
// ABOUTME: Defines Workflow, Execution, Integration and the repository interfaces.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Trigger types for workflows.
const (
	TriggerManual    = "manual"
	TriggerScheduled = "scheduled"
	TriggerWebhook   = "webhook"
	TriggerEvent     = "event"
)

// Workflow statuses.
const (
	WorkflowActive   = "active"
	WorkflowInactive = "inactive"
	WorkflowDraft    = "draft"
)

// Execution statuses.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
	ExecutionCancelled = "cancelled"
)

// Integration statuses.
const (
	IntegrationConnected    = "connected"
	IntegrationDisconnected = "disconnected"
	IntegrationExpired      = "expired"
	IntegrationError        = "error"
	IntegrationPending      = "pending"
)

// WorkflowStep is one configured step of a stored workflow definition.
type WorkflowStep struct {
	ID     string            `json:"id"`
	Agent  string            `json:"agent"`
	Action string            `json:"action"`
	Config map[string]string `json:"config,omitempty"`
}

// Workflow is a stored workflow definition that background jobs bind to.
type Workflow struct {
	ID            string
	UserID        string
	Name          string
	Description   string
	TriggerType   string // manual, scheduled, webhook, event
	TriggerConfig map[string]string
	Steps         []WorkflowStep
	Status        string // active, inactive, draft
	RunCount      int
	SuccessCount  int
	FailureCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastRunAt     *time.Time
}

// ExecutionStep mirrors one workflow step's progress within an execution record.
type ExecutionStep struct {
	Agent    string  `json:"agent"`
	Action   string  `json:"action"`
	Status   string  `json:"status"`
	Duration float64 `json:"duration"`
	Output   string  `json:"output,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Execution is one persisted run of a workflow.
type Execution struct {
	ID              string
	UserID          string
	WorkflowID      string
	WorkflowName    string
	TriggerType     string
	Status          string // running, completed, failed, cancelled
	Steps           []ExecutionStep
	Output          string
	ErrorMessage    string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds int
}

// Integration records the connection state of a third-party integration. The
// default step handler consults it to answer connection checks.
type Integration struct {
	ID          string
	UserID      string
	Name        string
	Status      string // connected, disconnected, expired, error, pending
	ConnectedAt time.Time
	LastUsedAt  *time.Time
}

// WorkflowRepository persists workflow definitions.
type WorkflowRepository interface {
	CreateWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
	// IncrementRunCount bumps the run counter and the matching
	// success/failure counter, and stamps last_run_at.
	IncrementRunCount(ctx context.Context, id string, success bool) error
}

// ExecutionRepository persists execution records.
type ExecutionRepository interface {
	// CreateExecution stores a new record. A missing ID is generated and the
	// start time is stamped.
	CreateExecution(ctx context.Context, e *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*Execution, error)
	// CompleteExecution finalizes a record: status, completion time, duration,
	// output and error message.
	CompleteExecution(ctx context.Context, id string, success bool, output, errMsg string) error
}

// IntegrationRepository persists integration connection state.
type IntegrationRepository interface {
	UpsertIntegration(ctx context.Context, i *Integration) error
	GetIntegration(ctx context.Context, userID, name string) (*Integration, error)
	// TouchIntegration stamps last_used_at.
	TouchIntegration(ctx context.Context, userID, name string) error
}

// Store is the combined persistence collaborator.
type Store interface {
	WorkflowRepository
	ExecutionRepository
	IntegrationRepository

	// Close releases any resources held by the store.
	Close() error
}
