// Package store provides persistent storage for loom using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - WorkflowRepository: Stored workflow definitions and run counters
//   - ExecutionRepository: Per-trigger execution records
//   - IntegrationRepository: External service connections per user
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Data Models
//
//   - Workflow: Named step sequence with a trigger type and config
//   - Execution: One run of a workflow with its step outcomes and duration
//   - Integration: Connection state of an external service (gmail, calendar)
//
// # Storage Details
//
// The SQLite database uses:
//
//   - WAL mode for concurrent reads
//   - Foreign key constraints
//   - JSON-encoded step and config columns
//   - RFC3339 UTC strings for timestamps
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/loom/loom.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	wf, err := s.GetWorkflow(ctx, id)
//	if err == store.ErrNotFound {
//	    // handle missing workflow
//	}
package store
