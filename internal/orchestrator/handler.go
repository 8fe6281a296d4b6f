// ABOUTME: Default step handler backed by stubbed logical agents.
// ABOUTME: Consults integration state for connection checks and coordinates over the backroom bus.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomworks/loom/internal/backroom"
	"github.com/loomworks/loom/internal/plan"
	"github.com/loomworks/loom/internal/store"
)

// ConnectionStatus is the output of a connection-check step.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

// EmailResult is the output of a send-email step.
type EmailResult struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// SearchResult is one entry of a web-search step's output.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Metrics is the payload exchanged between DataAgent and ReportAgent.
type Metrics struct {
	Users   int `json:"users"`
	Revenue int `json:"revenue"`
	Growth  int `json:"growth"`
}

// Report is the output of a compile-report step.
type Report struct {
	Title   string  `json:"title"`
	Metrics Metrics `json:"metrics"`
}

// StepAck is the generic output for steps without a dedicated stub.
type StepAck struct {
	Message string `json:"message"`
}

// Integration names consulted by the connection-dependent agents.
const (
	integrationGmail    = "gmail"
	integrationCalendar = "google_calendar"
)

// StubAgentPool implements the per-agent step dispatch with stubbed backends.
// Connection-dependent agents (Gmail, Calendar) answer truthfully from the
// integration store; the research/report agents coordinate over the backroom
// bus. Real agent backends replace this by injecting a different StepHandler
// into the orchestrator.
type StubAgentPool struct {
	integrations store.IntegrationRepository
	bus          *backroom.Bus
	logger       *slog.Logger
}

// NewStubAgentPool creates the pool and registers its coordinating agents on
// the bus.
func NewStubAgentPool(integrations store.IntegrationRepository, bus *backroom.Bus, logger *slog.Logger) *StubAgentPool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &StubAgentPool{
		integrations: integrations,
		bus:          bus,
		logger:       logger.With("component", "agents"),
	}

	// DataAgent answers metric requests with a response message; ReportAgent
	// only needs to accept the responses addressed to it.
	bus.RegisterAgent("DataAgent", p.handleDataRequest)
	bus.RegisterAgent("ReportAgent", func(_ context.Context, _ *backroom.Message) error { return nil })

	return p
}

// handleDataRequest serves fetch_metrics requests from other agents.
func (p *StubAgentPool) handleDataRequest(ctx context.Context, msg *backroom.Message) error {
	if msg.Type != backroom.TypeRequest {
		return nil
	}
	if action, ok := msg.Content.(string); !ok || action != "fetch_metrics" {
		return fmt.Errorf("unsupported request: %v", msg.Content)
	}

	p.bus.Send(ctx, msg.ExecutionID, "DataAgent", msg.From, backroom.TypeResponse, Metrics{
		Users:   1500,
		Revenue: 45000,
		Growth:  15,
	})
	return nil
}

// Handle executes one step. executionID scopes any backroom traffic the step
// produces. Outputs are stub values; a returned error marks the step failed.
func (p *StubAgentPool) Handle(ctx context.Context, executionID, userID string, step *plan.Step) (any, error) {
	switch step.Agent {
	case "GmailAgent":
		return p.handleGmail(ctx, userID, step)

	case "GoogleCalendarAgent":
		return p.handleCalendar(ctx, userID, step)

	case "SearchAgent":
		return []SearchResult{
			{Title: "Sample Result 1", Snippet: "This is a sample search result"},
			{Title: "Sample Result 2", Snippet: "Another sample result"},
		}, nil

	case "SummarizerAgent":
		return StepAck{Message: "This is a summary of the search results."}, nil

	case "DataAgent":
		return Metrics{Users: 1500, Revenue: 45000, Growth: 15}, nil

	case "ReportAgent":
		return p.compileReport(ctx, executionID)

	default:
		return StepAck{Message: fmt.Sprintf("Agent %s executed successfully", step.Agent)}, nil
	}
}

// handleGmail answers connection checks and email sends from integration state.
func (p *StubAgentPool) handleGmail(ctx context.Context, userID string, step *plan.Step) (any, error) {
	connected := p.integrationConnected(ctx, userID, integrationGmail)

	switch step.Action {
	case "check_connection":
		if !connected {
			return ConnectionStatus{Connected: false, Message: "Gmail not connected. Please connect in the integration hub."}, nil
		}
		return ConnectionStatus{Connected: true, Message: "Gmail connected"}, nil

	case "send_email":
		if !connected {
			return EmailResult{Sent: false, Message: "Gmail integration required"}, nil
		}
		if err := p.integrations.TouchIntegration(ctx, userID, integrationGmail); err != nil {
			p.logger.Warn("touching gmail integration", "user_id", userID, "error", err)
		}
		to := ""
		if input, ok := step.Input.(map[string]string); ok {
			to = input["to"]
		}
		return EmailResult{Sent: true, Message: fmt.Sprintf("Email sent to %s", to)}, nil
	}

	return nil, fmt.Errorf("unknown GmailAgent action: %s", step.Action)
}

// handleCalendar answers calendar steps from integration state.
func (p *StubAgentPool) handleCalendar(ctx context.Context, userID string, step *plan.Step) (any, error) {
	if !p.integrationConnected(ctx, userID, integrationCalendar) {
		return StepAck{Message: "Google Calendar integration required"}, nil
	}
	if err := p.integrations.TouchIntegration(ctx, userID, integrationCalendar); err != nil {
		p.logger.Warn("touching calendar integration", "user_id", userID, "error", err)
	}
	return StepAck{Message: fmt.Sprintf("Calendar %s completed", step.Action)}, nil
}

// compileReport requests metrics from DataAgent over the bus and compiles the
// stub report from the response.
func (p *StubAgentPool) compileReport(ctx context.Context, executionID string) (any, error) {
	req := p.bus.Send(ctx, executionID, "ReportAgent", "DataAgent", backroom.TypeRequest, "fetch_metrics")
	if req.Status == backroom.StatusFailed {
		return nil, errors.New("DataAgent unavailable")
	}

	// Synchronous delivery: the response is already in the execution log.
	for _, msg := range p.bus.ExecutionMessages(executionID) {
		if msg.From == "DataAgent" && msg.To == "ReportAgent" && msg.Type == backroom.TypeResponse {
			if metrics, ok := msg.Content.(Metrics); ok {
				return Report{Title: "Monthly Summary", Metrics: metrics}, nil
			}
		}
	}
	return nil, errors.New("no metrics response from DataAgent")
}

// integrationConnected reports whether the named integration is connected for
// the user. Lookup errors are treated as not connected.
func (p *StubAgentPool) integrationConnected(ctx context.Context, userID, name string) bool {
	if p.integrations == nil {
		return false
	}
	i, err := p.integrations.GetIntegration(ctx, userID, name)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Warn("integration lookup failed", "name", name, "user_id", userID, "error", err)
		}
		return false
	}
	return i.Status == store.IntegrationConnected
}
