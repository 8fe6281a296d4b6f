// Package plan builds and executes multi-step agent plans.
//
// A Plan is an ordered list of steps plus a dependency map from step index
// to prerequisite indexes. The Builder derives plans from classified
// intents; the ChainBuilder instantiates predefined multi-agent chains for
// known goals. The Executor walks steps in index order, gating each step on
// its dependencies having completed, and delegates the actual work to a
// caller-supplied handler.
package plan
