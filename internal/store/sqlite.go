// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite.
// ABOUTME: Provides workflow/execution/integration persistence with automatic schema creation.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agent_workflows (
			id             TEXT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			name           TEXT NOT NULL,
			description    TEXT NOT NULL DEFAULT '',
			trigger_type   TEXT NOT NULL,
			trigger_config TEXT NOT NULL DEFAULT '{}',
			steps          TEXT NOT NULL DEFAULT '[]',
			status         TEXT NOT NULL,
			run_count      INTEGER NOT NULL DEFAULT 0,
			success_count  INTEGER NOT NULL DEFAULT 0,
			failure_count  INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,
			last_run_at    TEXT,

			CHECK (trigger_type IN ('manual', 'scheduled', 'webhook', 'event')),
			CHECK (status IN ('active', 'inactive', 'draft'))
		);

		CREATE INDEX IF NOT EXISTS idx_workflows_user ON agent_workflows(user_id);
		CREATE INDEX IF NOT EXISTS idx_workflows_status ON agent_workflows(status);

		CREATE TABLE IF NOT EXISTS agent_executions (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			workflow_id      TEXT NOT NULL,
			workflow_name    TEXT NOT NULL,
			trigger_type     TEXT NOT NULL,
			status           TEXT NOT NULL,
			steps            TEXT NOT NULL DEFAULT '[]',
			output           TEXT NOT NULL DEFAULT '',
			error_message    TEXT NOT NULL DEFAULT '',
			started_at       TEXT NOT NULL,
			completed_at     TEXT,
			duration_seconds INTEGER NOT NULL DEFAULT 0,

			CHECK (status IN ('running', 'completed', 'failed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_executions_workflow ON agent_executions(workflow_id, started_at);

		CREATE TABLE IF NOT EXISTS agent_integrations (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			name         TEXT NOT NULL,
			status       TEXT NOT NULL,
			connected_at TEXT NOT NULL,
			last_used_at TEXT,

			UNIQUE (user_id, name),
			CHECK (status IN ('connected', 'disconnected', 'expired', 'error', 'pending'))
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateWorkflow inserts a new workflow definition. A missing ID is generated.
func (s *SQLiteStore) CreateWorkflow(ctx context.Context, w *Workflow) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	stepsJSON, err := json.Marshal(w.Steps)
	if err != nil {
		return fmt.Errorf("encoding workflow steps: %w", err)
	}
	configJSON, err := json.Marshal(w.TriggerConfig)
	if err != nil {
		return fmt.Errorf("encoding trigger config: %w", err)
	}

	query := `
		INSERT INTO agent_workflows
			(id, user_id, name, description, trigger_type, trigger_config, steps,
			 status, run_count, success_count, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.Name, w.Description, w.TriggerType,
		string(configJSON), string(stepsJSON), w.Status,
		w.RunCount, w.SuccessCount, w.FailureCount,
		w.CreatedAt.UTC().Format(time.RFC3339),
		w.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}

	s.logger.Debug("created workflow", "id", w.ID, "name", w.Name)
	return nil
}

// GetWorkflow retrieves a workflow by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	query := workflowSelect + ` WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workflow: %w", err)
	}
	return w, nil
}

// ListWorkflows returns all workflows, newest first.
func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*Workflow, error) {
	query := workflowSelect + ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning workflow: %w", err)
		}
		workflows = append(workflows, w)
	}
	return workflows, rows.Err()
}

// IncrementRunCount bumps the run counter and the matching success/failure
// counter, stamping last_run_at.
func (s *SQLiteStore) IncrementRunCount(ctx context.Context, id string, success bool) error {
	successDelta, failureDelta := 1, 0
	if !success {
		successDelta, failureDelta = 0, 1
	}

	query := `
		UPDATE agent_workflows
		SET run_count = run_count + 1,
		    success_count = success_count + ?,
		    failure_count = failure_count + ?,
		    last_run_at = ?,
		    updated_at = ?
		WHERE id = ?
	`
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, query, successDelta, failureDelta, now, now, id)
	if err != nil {
		return fmt.Errorf("updating workflow counters: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateExecution inserts a new execution record. A missing ID is generated
// and the start time stamped.
func (s *SQLiteStore) CreateExecution(ctx context.Context, e *Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	stepsJSON, err := json.Marshal(e.Steps)
	if err != nil {
		return fmt.Errorf("encoding execution steps: %w", err)
	}

	query := `
		INSERT INTO agent_executions
			(id, user_id, workflow_id, workflow_name, trigger_type, status,
			 steps, output, error_message, started_at, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.UserID, e.WorkflowID, e.WorkflowName, e.TriggerType, e.Status,
		string(stepsJSON), e.Output, e.ErrorMessage,
		e.StartedAt.UTC().Format(time.RFC3339), e.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}

	s.logger.Debug("created execution", "id", e.ID, "workflow_id", e.WorkflowID)
	return nil
}

// GetExecution retrieves an execution by ID. Returns ErrNotFound if absent.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	query := executionSelect + ` WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	e, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return e, nil
}

// ListExecutionsByWorkflow returns the workflow's executions, newest first.
func (s *SQLiteStore) ListExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*Execution, error) {
	query := executionSelect + ` WHERE workflow_id = ? ORDER BY started_at DESC`
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

// CompleteExecution finalizes an execution record. The duration is computed
// from the stored start time.
func (s *SQLiteStore) CompleteExecution(ctx context.Context, id string, success bool, output, errMsg string) error {
	e, err := s.GetExecution(ctx, id)
	if err != nil {
		return err
	}

	status := ExecutionCompleted
	if !success {
		status = ExecutionFailed
	}
	completedAt := time.Now()
	duration := int(completedAt.Sub(e.StartedAt).Seconds())

	query := `
		UPDATE agent_executions
		SET status = ?, completed_at = ?, duration_seconds = ?, output = ?, error_message = ?
		WHERE id = ?
	`
	_, err = s.db.ExecContext(ctx, query,
		status, completedAt.UTC().Format(time.RFC3339), duration, output, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("completing execution: %w", err)
	}
	return nil
}

// UpsertIntegration inserts or updates an integration record.
func (s *SQLiteStore) UpsertIntegration(ctx context.Context, i *Integration) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.ConnectedAt.IsZero() {
		i.ConnectedAt = time.Now()
	}

	query := `
		INSERT INTO agent_integrations (id, user_id, name, status, connected_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET
			status = excluded.status,
			connected_at = excluded.connected_at
	`
	_, err := s.db.ExecContext(ctx, query,
		i.ID, i.UserID, i.Name, i.Status,
		i.ConnectedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting integration: %w", err)
	}
	return nil
}

// GetIntegration retrieves an integration by user and name.
// Returns ErrNotFound if absent.
func (s *SQLiteStore) GetIntegration(ctx context.Context, userID, name string) (*Integration, error) {
	query := `
		SELECT id, user_id, name, status, connected_at, last_used_at
		FROM agent_integrations
		WHERE user_id = ? AND name = ?
	`

	var i Integration
	var connectedAtStr string
	var lastUsedAtStr sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID, name).Scan(
		&i.ID, &i.UserID, &i.Name, &i.Status, &connectedAtStr, &lastUsedAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying integration: %w", err)
	}

	i.ConnectedAt, err = time.Parse(time.RFC3339, connectedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connected_at: %w", err)
	}
	if lastUsedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, lastUsedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_used_at: %w", err)
		}
		i.LastUsedAt = &t
	}
	return &i, nil
}

// TouchIntegration stamps last_used_at on an integration.
func (s *SQLiteStore) TouchIntegration(ctx context.Context, userID, name string) error {
	query := `UPDATE agent_integrations SET last_used_at = ? WHERE user_id = ? AND name = ?`
	_, err := s.db.ExecContext(ctx, query,
		time.Now().UTC().Format(time.RFC3339), userID, name,
	)
	if err != nil {
		return fmt.Errorf("touching integration: %w", err)
	}
	return nil
}

const workflowSelect = `
	SELECT id, user_id, name, description, trigger_type, trigger_config, steps,
	       status, run_count, success_count, failure_count, created_at, updated_at, last_run_at
	FROM agent_workflows
`

const executionSelect = `
	SELECT id, user_id, workflow_id, workflow_name, trigger_type, status,
	       steps, output, error_message, started_at, completed_at, duration_seconds
	FROM agent_executions
`

// rowScanner is implemented by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanWorkflow reads one workflow row.
func scanWorkflow(row rowScanner) (*Workflow, error) {
	var w Workflow
	var configJSON, stepsJSON, createdAtStr, updatedAtStr string
	var lastRunAtStr sql.NullString

	err := row.Scan(
		&w.ID, &w.UserID, &w.Name, &w.Description, &w.TriggerType,
		&configJSON, &stepsJSON, &w.Status,
		&w.RunCount, &w.SuccessCount, &w.FailureCount,
		&createdAtStr, &updatedAtStr, &lastRunAtStr,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(configJSON), &w.TriggerConfig); err != nil {
		return nil, fmt.Errorf("decoding trigger config: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &w.Steps); err != nil {
		return nil, fmt.Errorf("decoding workflow steps: %w", err)
	}

	if w.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	if lastRunAtStr.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_run_at: %w", err)
		}
		w.LastRunAt = &t
	}
	return &w, nil
}

// scanExecution reads one execution row.
func scanExecution(row rowScanner) (*Execution, error) {
	var e Execution
	var stepsJSON, startedAtStr string
	var completedAtStr sql.NullString

	err := row.Scan(
		&e.ID, &e.UserID, &e.WorkflowID, &e.WorkflowName, &e.TriggerType, &e.Status,
		&stepsJSON, &e.Output, &e.ErrorMessage,
		&startedAtStr, &completedAtStr, &e.DurationSeconds,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(stepsJSON), &e.Steps); err != nil {
		return nil, fmt.Errorf("decoding execution steps: %w", err)
	}
	if e.StartedAt, err = time.Parse(time.RFC3339, startedAtStr); err != nil {
		return nil, fmt.Errorf("parsing started_at: %w", err)
	}
	if completedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		e.CompletedAt = &t
	}
	return &e, nil
}
