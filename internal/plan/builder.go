// ABOUTME: Expands a classified Intent into a fixed per-kind step template.
// ABOUTME: Templates are deterministic; step order already respects the dependency edges.

package plan

import (
	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/intent"
)

// Builder produces execution plans from classified intents. Build is pure and
// deterministic apart from the generated task ID.
type Builder struct{}

// NewBuilder creates a plan builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build expands an intent into its step template. Every recognized kind starts
// with a pre-completed validation step; an unknown intent yields a single
// pre-completed step whose output explains that nothing was recognized, so no
// downstream execution is required.
func (b *Builder) Build(in intent.Intent) *Plan {
	p := &Plan{
		TaskID:       "task_" + uuid.New().String(),
		Dependencies: map[int][]int{},
	}

	switch in.Kind {
	case intent.KindSendEmail:
		p.Steps = []*Step{
			{Agent: "IntentRecognizer", Action: "validate_email_intent", Input: in.Entities, Status: StatusCompleted},
			{Agent: "GmailAgent", Action: "check_connection", Status: StatusPending},
			{Agent: "GmailAgent", Action: "send_email", Input: in.Entities, Status: StatusPending},
		}
		p.Dependencies[1] = []int{0}
		p.Dependencies[2] = []int{1}

	case intent.KindScheduleMeeting:
		p.Steps = []*Step{
			{Agent: "IntentRecognizer", Action: "validate_calendar_intent", Input: in.Entities, Status: StatusCompleted},
			{Agent: "GoogleCalendarAgent", Action: "check_availability", Input: in.Entities, Status: StatusPending},
			{Agent: "GoogleCalendarAgent", Action: "create_event", Input: in.Entities, Status: StatusPending},
			{Agent: "NotificationAgent", Action: "send_confirmation", Status: StatusPending},
		}
		p.Dependencies[1] = []int{0}
		p.Dependencies[2] = []int{1}
		p.Dependencies[3] = []int{2}

	case intent.KindResearch:
		p.Steps = []*Step{
			{Agent: "IntentRecognizer", Action: "validate_research_intent", Input: in.Entities, Status: StatusCompleted},
			{Agent: "SearchAgent", Action: "web_search", Input: map[string]string{"query": in.Entities["query"]}, Status: StatusPending},
			{Agent: "SummarizerAgent", Action: "summarize_results", Status: StatusPending},
		}
		p.Dependencies[1] = []int{0}
		p.Dependencies[2] = []int{1}

	case intent.KindGenerateReport:
		p.Steps = []*Step{
			{Agent: "IntentRecognizer", Action: "validate_report_intent", Input: in.Entities, Status: StatusCompleted},
			{Agent: "DataAgent", Action: "fetch_metrics", Status: StatusPending},
			{Agent: "ReportAgent", Action: "compile_report", Status: StatusPending},
		}
		p.Dependencies[1] = []int{0}
		p.Dependencies[2] = []int{1}

	default:
		p.Steps = []*Step{
			{
				Agent:  "IntentRecognizer",
				Action: "unknown_intent",
				Input:  in.Raw,
				Output: "Intent not recognized. Please try rephrasing your request.",
				Status: StatusCompleted,
			},
		}
	}

	return p
}
