// ABOUTME: Keyword-based intent classification for free-text task requests.
// ABOUTME: Maps user input to a typed Intent with extracted entities and confidence.

package intent

import (
	"regexp"
	"strings"
)

// Kind identifies the recognized category of a user request.
type Kind string

const (
	KindSendEmail       Kind = "send_email"
	KindScheduleMeeting Kind = "schedule_meeting"
	KindResearch        Kind = "research"
	KindGenerateReport  Kind = "generate_report"
	KindUnknown         Kind = "unknown"
)

// Intent is the classified meaning of a free-text request. It is immutable
// once produced; a fresh value is created per Classify call.
type Intent struct {
	Raw        string
	Kind       Kind
	Entities   map[string]string
	Confidence float64
}

// Classifier maps free text to an Intent. Implementations must be pure
// functions of their input: no I/O, no randomness, and they never fail —
// unmatched input yields KindUnknown with zero confidence.
type Classifier interface {
	Classify(text string) Intent
}

var (
	emailRe   = regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`)
	subjectRe = regexp.MustCompile(`(?i)subject[:\s]+"([^"]+)"`)
	timeRe    = regexp.MustCompile(`(?i)(\d{1,2})\s*(am|pm)`)
)

// KeywordClassifier recognizes intents by ordered keyword matching. The rule
// order is a deliberate tie-break: email before meeting before research before
// report, so input mentioning both "email" and "meeting" classifies as
// send_email.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify maps text to an Intent using the ordered keyword rules.
func (c *KeywordClassifier) Classify(text string) Intent {
	in := Intent{
		Raw:      text,
		Kind:     KindUnknown,
		Entities: map[string]string{},
	}

	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "email") || strings.Contains(lower, "send"):
		in.Kind = KindSendEmail
		in.Confidence = 0.8
		if m := emailRe.FindString(text); m != "" {
			in.Entities["to"] = m
		}
		if m := subjectRe.FindStringSubmatch(text); m != nil {
			in.Entities["subject"] = m[1]
		}

	case strings.Contains(lower, "meeting") || strings.Contains(lower, "schedule"):
		in.Kind = KindScheduleMeeting
		in.Confidence = 0.8
		if m := timeRe.FindString(text); m != "" {
			in.Entities["time"] = m
		}
		if strings.Contains(lower, "tomorrow") {
			in.Entities["date"] = "tomorrow"
		}

	case strings.Contains(lower, "research") || strings.Contains(lower, "find"):
		in.Kind = KindResearch
		in.Confidence = 0.7
		in.Entities["query"] = text

	case strings.Contains(lower, "report") || strings.Contains(lower, "summary"):
		in.Kind = KindGenerateReport
		in.Confidence = 0.75
	}

	return in
}
