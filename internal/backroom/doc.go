// Package backroom implements the inter-agent message bus.
//
// Agents register handlers under their name and exchange typed messages
// (request, response, notification, error) scoped to an execution. Delivery
// is synchronous and at-most-once: Send appends the message to the log,
// invokes the recipient's handler inline, and records the outcome on the
// message. A handler may itself call Send, so replies land on the log
// before the originating Send returns.
//
// The full message log is retained per process and can be queried by
// execution ID for coordination and debugging.
package backroom
