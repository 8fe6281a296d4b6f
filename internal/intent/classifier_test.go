// ABOUTME: Tests for the keyword intent classifier.
// ABOUTME: Covers rule ordering, entity extraction, unknown fallback, determinism.

package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordClassifier_EmailBeatsMeeting(t *testing.T) {
	c := NewKeywordClassifier()

	in := c.Classify("email the team about the meeting")

	assert.Equal(t, KindSendEmail, in.Kind)
	assert.Equal(t, 0.8, in.Confidence)
}

func TestKeywordClassifier_EmailEntities(t *testing.T) {
	c := NewKeywordClassifier()

	in := c.Classify(`Send an email to alice@example.com subject:"Weekly Update"`)

	assert.Equal(t, KindSendEmail, in.Kind)
	assert.Equal(t, "alice@example.com", in.Entities["to"])
	assert.Equal(t, "Weekly Update", in.Entities["subject"])
}

func TestKeywordClassifier_MeetingEntities(t *testing.T) {
	c := NewKeywordClassifier()

	in := c.Classify("schedule a meeting tomorrow at 3pm")

	assert.Equal(t, KindScheduleMeeting, in.Kind)
	assert.Equal(t, 0.8, in.Confidence)
	assert.Equal(t, "3pm", in.Entities["time"])
	assert.Equal(t, "tomorrow", in.Entities["date"])
}

func TestKeywordClassifier_ResearchCapturesQuery(t *testing.T) {
	c := NewKeywordClassifier()

	in := c.Classify("research the best Go SQLite drivers")

	assert.Equal(t, KindResearch, in.Kind)
	assert.Equal(t, 0.7, in.Confidence)
	assert.Equal(t, "research the best Go SQLite drivers", in.Entities["query"])
}

func TestKeywordClassifier_Report(t *testing.T) {
	c := NewKeywordClassifier()

	in := c.Classify("generate a quarterly report")

	assert.Equal(t, KindGenerateReport, in.Kind)
	assert.Equal(t, 0.75, in.Confidence)
}

func TestKeywordClassifier_UnknownFallback(t *testing.T) {
	c := NewKeywordClassifier()

	in := c.Classify("play some music")

	assert.Equal(t, KindUnknown, in.Kind)
	assert.Equal(t, 0.0, in.Confidence)
	assert.Empty(t, in.Entities)
}

func TestKeywordClassifier_Deterministic(t *testing.T) {
	c := NewKeywordClassifier()

	inputs := []string{
		"email bob@corp.io",
		"schedule a sync tomorrow",
		"find me a restaurant",
		"weekly summary please",
		"play some music",
	}

	for _, input := range inputs {
		first := c.Classify(input)
		second := c.Classify(input)
		assert.Equal(t, first, second, "input %q", input)
	}
}
