// Package orchestrator composes the classifier, plan builders, executor and
// agent pool into the task pipeline.
//
// ExecuteTask takes raw user input through classification, plan construction
// and execution, returning a TaskResult that carries the outcome instead of
// an error: a failed step is a result, not a pipeline failure. ExecuteGoal
// does the same for predefined multi-agent chains.
//
// The StubAgentPool stands in for real agent integrations. It answers
// connection checks from persisted integration state and coordinates the
// report pipeline over the backroom bus.
package orchestrator
