// Package scheduler runs background jobs that trigger workflows.
//
// Jobs come in three types: cron jobs fire on a recurring interval derived
// from their schedule string, webhook jobs fire when the HTTP layer reports
// a matching path, and event jobs fire when an event of their type is
// emitted. Every trigger loads the bound workflow, records an execution,
// and re-runs the orchestrator end to end.
//
// The job registry is in-memory; the composition root rebuilds it from
// persisted workflow definitions at startup.
package scheduler
