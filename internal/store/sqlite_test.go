// ABOUTME: Tests for the SQLite store implementation.
// ABOUTME: Covers workflow CRUD, run counters, execution lifecycle, and integrations.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return store
}

func TestCreateAndGetWorkflow(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	w := &Workflow{
		UserID:      "user-1",
		Name:        "Daily Report",
		Description: "Compile the daily metrics report",
		TriggerType: TriggerScheduled,
		TriggerConfig: map[string]string{
			"schedule": "daily",
		},
		Steps: []WorkflowStep{
			{ID: "s1", Agent: "DataAgent", Action: "fetch_metrics"},
			{ID: "s2", Agent: "ReportAgent", Action: "compile_report"},
		},
		Status: WorkflowActive,
	}

	if err := store.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}
	if w.ID == "" {
		t.Fatal("expected generated workflow ID")
	}

	got, err := store.GetWorkflow(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if got.Name != w.Name {
		t.Errorf("Name mismatch: got %q, want %q", got.Name, w.Name)
	}
	if got.TriggerType != TriggerScheduled {
		t.Errorf("TriggerType mismatch: got %q", got.TriggerType)
	}
	if got.TriggerConfig["schedule"] != "daily" {
		t.Errorf("TriggerConfig mismatch: got %v", got.TriggerConfig)
	}
	if len(got.Steps) != 2 || got.Steps[1].Action != "compile_report" {
		t.Errorf("Steps mismatch: got %+v", got.Steps)
	}
}

func TestGetWorkflow_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetWorkflow(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementRunCount(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	w := &Workflow{UserID: "user-1", Name: "wf", TriggerType: TriggerManual, Status: WorkflowActive}
	if err := store.CreateWorkflow(ctx, w); err != nil {
		t.Fatalf("CreateWorkflow failed: %v", err)
	}

	if err := store.IncrementRunCount(ctx, w.ID, true); err != nil {
		t.Fatalf("IncrementRunCount(success) failed: %v", err)
	}
	if err := store.IncrementRunCount(ctx, w.ID, false); err != nil {
		t.Fatalf("IncrementRunCount(failure) failed: %v", err)
	}

	got, err := store.GetWorkflow(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if got.RunCount != 2 || got.SuccessCount != 1 || got.FailureCount != 1 {
		t.Errorf("counters mismatch: run=%d success=%d failure=%d",
			got.RunCount, got.SuccessCount, got.FailureCount)
	}
	if got.LastRunAt == nil {
		t.Error("expected last_run_at to be set")
	}
}

func TestIncrementRunCount_MissingWorkflow(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if err := store.IncrementRunCount(context.Background(), "missing", true); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExecutionLifecycle(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	e := &Execution{
		UserID:       "user-1",
		WorkflowID:   "wf-1",
		WorkflowName: "Daily Report",
		TriggerType:  TriggerScheduled,
		Status:       ExecutionRunning,
		Steps: []ExecutionStep{
			{Agent: "DataAgent", Action: "fetch_metrics", Status: "pending"},
		},
	}

	if err := store.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}
	if e.ID == "" || e.StartedAt.IsZero() {
		t.Fatal("expected generated ID and start time")
	}

	if err := store.CompleteExecution(ctx, e.ID, true, `{"summary":"ok"}`, ""); err != nil {
		t.Fatalf("CompleteExecution failed: %v", err)
	}

	got, err := store.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Status != ExecutionCompleted {
		t.Errorf("Status mismatch: got %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if got.Output != `{"summary":"ok"}` {
		t.Errorf("Output mismatch: got %q", got.Output)
	}
	if len(got.Steps) != 1 || got.Steps[0].Agent != "DataAgent" {
		t.Errorf("Steps mismatch: got %+v", got.Steps)
	}
}

func TestCompleteExecution_Failure(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	e := &Execution{
		UserID: "user-1", WorkflowID: "wf-1", WorkflowName: "wf",
		TriggerType: TriggerWebhook, Status: ExecutionRunning,
	}
	if err := store.CreateExecution(ctx, e); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	if err := store.CompleteExecution(ctx, e.ID, false, "", "step 1 exploded"); err != nil {
		t.Fatalf("CompleteExecution failed: %v", err)
	}

	got, err := store.GetExecution(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Status != ExecutionFailed {
		t.Errorf("Status mismatch: got %q", got.Status)
	}
	if got.ErrorMessage != "step 1 exploded" {
		t.Errorf("ErrorMessage mismatch: got %q", got.ErrorMessage)
	}
}

func TestListExecutionsByWorkflow(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for i, started := range []time.Time{
		time.Now().Add(-2 * time.Hour),
		time.Now().Add(-1 * time.Hour),
	} {
		e := &Execution{
			UserID: "user-1", WorkflowID: "wf-1", WorkflowName: "wf",
			TriggerType: TriggerManual, Status: ExecutionRunning, StartedAt: started,
		}
		if err := store.CreateExecution(ctx, e); err != nil {
			t.Fatalf("CreateExecution %d failed: %v", i, err)
		}
	}
	other := &Execution{
		UserID: "user-1", WorkflowID: "wf-2", WorkflowName: "other",
		TriggerType: TriggerManual, Status: ExecutionRunning,
	}
	if err := store.CreateExecution(ctx, other); err != nil {
		t.Fatalf("CreateExecution failed: %v", err)
	}

	got, err := store.ListExecutionsByWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("ListExecutionsByWorkflow failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(got))
	}
	if !got[0].StartedAt.After(got[1].StartedAt) {
		t.Error("expected newest execution first")
	}
}

func TestIntegrationUpsertAndTouch(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	i := &Integration{UserID: "user-1", Name: "gmail", Status: IntegrationPending}
	if err := store.UpsertIntegration(ctx, i); err != nil {
		t.Fatalf("UpsertIntegration failed: %v", err)
	}

	// Upsert again with the connected status
	i.Status = IntegrationConnected
	if err := store.UpsertIntegration(ctx, i); err != nil {
		t.Fatalf("UpsertIntegration (update) failed: %v", err)
	}

	got, err := store.GetIntegration(ctx, "user-1", "gmail")
	if err != nil {
		t.Fatalf("GetIntegration failed: %v", err)
	}
	if got.Status != IntegrationConnected {
		t.Errorf("Status mismatch: got %q", got.Status)
	}
	if got.LastUsedAt != nil {
		t.Error("expected last_used_at to be unset before first use")
	}

	if err := store.TouchIntegration(ctx, "user-1", "gmail"); err != nil {
		t.Fatalf("TouchIntegration failed: %v", err)
	}
	got, err = store.GetIntegration(ctx, "user-1", "gmail")
	if err != nil {
		t.Fatalf("GetIntegration failed: %v", err)
	}
	if got.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}
}

func TestGetIntegration_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetIntegration(context.Background(), "user-1", "slack"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
