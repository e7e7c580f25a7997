package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"support-triage-go/internal/kb"
	"support-triage-go/internal/model"
	"support-triage-go/internal/oracle"
)

const kbTopK = 3

// Drafter composes a reply for a support email. Retrieved knowledge-base
// excerpts and the analysis result feed a prompt for the external oracle;
// when no oracle is configured or the call fails, a fixed fallback template
// is used instead.
type Drafter struct {
	index     *kb.Index
	completer oracle.Completer
}

// NewDrafter creates a new drafter. completer may be nil, in which case the
// fallback template is always used.
func NewDrafter(index *kb.Index, completer oracle.Completer) *Drafter {
	return &Drafter{index: index, completer: completer}
}

// Draft produces a reply draft. It never returns an error: oracle failures
// degrade to the templated draft.
func (d *Drafter) Draft(ctx context.Context, email model.NormalizedEmail, analysis model.Analysis) string {
	contexts := d.index.Retrieve(email.Body, kbTopK)
	prompt := buildDraftPrompt(email, contexts)

	if d.completer != nil {
		out, err := d.completer.Complete(ctx, prompt, 400)
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		if err != nil {
			logrus.Warnf("Oracle draft failed for %s, falling back to template: %v", email.MessageID, err)
		}
	}

	return fallbackDraft(email, analysis)
}

// buildDraftPrompt assembles the reply-generation prompt from the email and
// any retrieved knowledge-base excerpts
func buildDraftPrompt(email model.NormalizedEmail, contexts []kb.ScoredDocument) string {
	var parts []string
	parts = append(parts,
		"You are a professional customer support agent. Write a concise, polite, empathetic reply.",
		fmt.Sprintf("Customer message (subject): %s", email.Subject),
		fmt.Sprintf("Customer message (body): %s", email.Body),
		"",
	)

	if len(contexts) > 0 {
		var excerpts []string
		for _, c := range contexts {
			excerpts = append(excerpts, fmt.Sprintf("[%s]\n%s", c.Source, c.Text))
		}
		parts = append(parts,
			"Use the following knowledge-base excerpts to answer and reference them where appropriate:",
			strings.Join(excerpts, "\n\n---\n\n"),
			"",
		)
	}

	parts = append(parts,
		"Constraints:",
		"- Maintain a friendly professional tone.",
		"- Acknowledge frustration if sentiment is Negative.",
		"- If the message mentions a product/feature, reference it.",
		"- Keep it short (4-8 sentences).",
		"- Do NOT include any internal notes or JSON, only the reply text.",
	)

	return strings.Join(parts, "\n")
}

// fallbackDraft renders the fixed reply template. Only the sender name and
// the requirements summary are substituted.
func fallbackDraft(email model.NormalizedEmail, analysis model.Analysis) string {
	name := senderName(email.Sender)

	toneOpen := "Thanks for reaching out."
	if analysis.Sentiment == model.SentimentNegative {
		toneOpen = "I'm really sorry for the trouble you're facing — thank you for reporting this."
	}

	priorityLine := "I've logged this request and our team will follow up."
	if analysis.Priority == model.PriorityUrgent {
		priorityLine = "I've marked this as urgent and escalated it to our team."
	}

	requirements := analysis.Requirements
	if requirements == "" {
		requirements = "the details you shared"
	}

	closing := "If you can share screenshots or any additional details, please reply to this message."

	return fmt.Sprintf("Hi %s,\n\n%s Based on your message, I understand: %s.\n\n%s %s\n\nBest regards,\nSupport Team",
		name, toneOpen, requirements, priorityLine, closing)
}

// senderName extracts a display name from a sender address, taking
// everything before an angle-bracketed address part
func senderName(sender string) string {
	name, _, _ := strings.Cut(sender, "<")
	name = strings.TrimSpace(name)
	if name == "" {
		return "Customer"
	}
	return name
}
