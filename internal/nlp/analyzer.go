package nlp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"support-triage-go/internal/model"
	"support-triage-go/internal/oracle"
)

// Fixed wordlists driving the heuristic classification. Matching is
// case-insensitive substring containment, not token equality, so multi-word
// entries like "not working" match as phrases.
var (
	positiveWords = []string{"great", "thanks", "thank you", "appreciate", "love", "awesome", "good"}
	negativeWords = []string{"issue", "problem", "angry", "frustrated", "not working", "cannot", "error", "fail"}
	urgentWords   = []string{"urgent", "immediately", "asap", "critical", "cannot access", "down", "outage", "blocked"}

	requirementKeys = []string{"need", "require", "want", "request", "help", "cannot", "unable", "fix", "access", "please"}
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?\d[\s-]?)?(?:\(?\d{3}\)?[\s-]?)?\d{3}[\s-]?\d{4}`)

	// Sentences terminated by ./!/? — a trailing fragment without
	// terminal punctuation still counts as a sentence.
	sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]?`)

	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

const maxContactMatches = 3

// Analyzer derives sentiment, priority, requirements and contact info from
// email text via lexical rules. When a Completer is provided, the heuristic
// result is refined by the external oracle on a best-effort basis.
type Analyzer struct {
	completer oracle.Completer
}

// NewAnalyzer creates a new analyzer. completer may be nil to disable
// oracle refinement.
func NewAnalyzer(completer oracle.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

// Analyze classifies a normalized email. It never returns an error: oracle
// failures degrade to the heuristic result.
func (a *Analyzer) Analyze(ctx context.Context, email model.NormalizedEmail) model.Analysis {
	combined := strings.TrimSpace(email.Subject + "\n" + email.Body)

	result := model.Analysis{
		Sentiment:    classifySentiment(combined),
		Priority:     classifyPriority(combined),
		Requirements: extractRequirements(email.Body),
		Contacts:     extractContacts(email.Body),
	}

	if a.completer == nil {
		return result
	}

	refined, err := a.refine(ctx, email, result)
	if err != nil {
		logrus.Warnf("Oracle refinement failed for %s, keeping heuristics: %v", email.MessageID, err)
		return result
	}
	return refined
}

// classifySentiment returns Positive when only positive words match,
// Negative when only negative words match, and Neutral otherwise
func classifySentiment(text string) string {
	lower := strings.ToLower(text)
	pos := containsAny(lower, positiveWords)
	neg := containsAny(lower, negativeWords)

	switch {
	case pos && !neg:
		return model.SentimentPositive
	case neg && !pos:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// classifyPriority returns Urgent when any urgent word matches
func classifyPriority(text string) string {
	if containsAny(strings.ToLower(text), urgentWords) {
		return model.PriorityUrgent
	}
	return model.PriorityNotUrgent
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// extractContacts pulls email addresses and phone numbers from the body
// only, never the subject. Each kind is deduplicated, sorted and capped at
// three matches; empty segments are omitted entirely.
func extractContacts(body string) string {
	emails := uniqueSorted(emailPattern.FindAllString(body, -1))
	phones := uniqueSorted(phonePattern.FindAllString(body, -1))

	var parts []string
	if len(emails) > 0 {
		parts = append(parts, "Emails: "+strings.Join(emails, ", "))
	}
	if len(phones) > 0 {
		parts = append(parts, "Phones: "+strings.Join(phones, ", "))
	}
	return strings.Join(parts, " | ")
}

func uniqueSorted(matches []string) []string {
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Strings(out)
	if len(out) > maxContactMatches {
		out = out[:maxContactMatches]
	}
	return out
}

// extractRequirements keeps the first three sentences containing a
// requirement-indicating keyword, joined with a single space
func extractRequirements(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	var reqs []string
	for _, sentence := range sentencePattern.FindAllString(body, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		if containsAny(strings.ToLower(sentence), requirementKeys) {
			reqs = append(reqs, sentence)
			if len(reqs) == 3 {
				break
			}
		}
	}
	return strings.Join(reqs, " ")
}

// refinedAnalysis is the JSON shape requested from the oracle
type refinedAnalysis struct {
	Priority     string `json:"priority"`
	Sentiment    string `json:"sentiment"`
	Requirements string `json:"requirements"`
	Contacts     string `json:"contacts"`
}

// refine asks the oracle for a structured JSON refinement of the heuristic
// analysis. Each parsed field individually falls back to the heuristic value
// when absent or empty.
func (a *Analyzer) refine(ctx context.Context, email model.NormalizedEmail, heuristic model.Analysis) (model.Analysis, error) {
	prompt := buildRefinementPrompt(email)

	raw, err := a.completer.Complete(ctx, prompt, 250)
	if err != nil {
		return heuristic, err
	}

	// The model may wrap the object in prose or a code fence; take the
	// outermost JSON object substring.
	jtxt := jsonObjectPattern.FindString(raw)
	if jtxt == "" {
		jtxt = raw
	}

	var parsed refinedAnalysis
	if err := json.Unmarshal([]byte(jtxt), &parsed); err != nil {
		return heuristic, fmt.Errorf("failed to parse oracle response: %w", err)
	}

	out := heuristic
	if strings.TrimSpace(parsed.Priority) != "" {
		out.Priority = strings.TrimSpace(parsed.Priority)
	}
	if strings.TrimSpace(parsed.Sentiment) != "" {
		out.Sentiment = strings.TrimSpace(parsed.Sentiment)
	}
	if strings.TrimSpace(parsed.Requirements) != "" {
		out.Requirements = strings.TrimSpace(parsed.Requirements)
	}
	if strings.TrimSpace(parsed.Contacts) != "" {
		out.Contacts = strings.TrimSpace(parsed.Contacts)
	}
	return out, nil
}

// buildRefinementPrompt builds the structured metadata-extraction prompt
func buildRefinementPrompt(email model.NormalizedEmail) string {
	var b strings.Builder
	b.WriteString("You are an assistant that extracts metadata from a support email.\n")
	b.WriteString("Analyze the email below and return a valid JSON object with exactly these keys:\n")
	b.WriteString("- \"priority\": one of [\"Urgent\", \"Not urgent\"]\n")
	b.WriteString("- \"sentiment\": one of [\"Positive\", \"Negative\", \"Neutral\"]\n")
	b.WriteString("- \"requirements\": short text summarizing the customer's request (1-2 sentences)\n")
	b.WriteString("- \"contacts\": comma-separated contact info (emails, phones) if present\n")
	b.WriteString("\n")
	b.WriteString("Email:\n")
	b.WriteString("Subject: " + email.Subject + "\n")
	b.WriteString("Body: " + email.Body + "\n")
	b.WriteString("\n")
	b.WriteString("Return *only* a JSON object.\n")
	return b.String()
}
