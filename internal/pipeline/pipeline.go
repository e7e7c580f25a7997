package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"support-triage-go/internal/metrics"
	"support-triage-go/internal/model"
	"support-triage-go/internal/nlp"
	"support-triage-go/internal/responder"
	"support-triage-go/internal/store"
)

// Timestamp layouts accepted from mail-retrieval collaborators
var receivedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// invalidReceivedAt is the storage value for timestamps that were present
// but unparseable. The Unix epoch predates any real support email, so these
// records sort after every valid one in received-descending order, both in
// the batch sort and in store fetches.
var invalidReceivedAt = time.Unix(0, 0).UTC()

// Pipeline normalizes raw emails, runs analysis and reply drafting over
// them, and submits the priority-ordered batch to the store as one upsert.
type Pipeline struct {
	analyzer *nlp.Analyzer
	drafter  *responder.Drafter
	store    store.EmailStore
	metrics  *metrics.Metrics
	workers  int
	now      func() time.Time
}

// NewPipeline creates a new ingestion pipeline running up to workers emails
// concurrently per batch. metrics may be nil.
func NewPipeline(analyzer *nlp.Analyzer, drafter *responder.Drafter, st store.EmailStore, m *metrics.Metrics, workers int) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		analyzer: analyzer,
		drafter:  drafter,
		store:    st,
		metrics:  m,
		workers:  workers,
		now:      time.Now,
	}
}

// Ingest processes a batch of raw emails and upserts the results. It only
// fails when the store is unreachable: malformed inputs are defaulted and
// oracle failures degrade inside the analyzer and drafter. Re-ingesting the
// same batch overwrites existing records without creating duplicates.
func (p *Pipeline) Ingest(ctx context.Context, raws []model.RawEmail) error {
	if len(raws) == 0 {
		return nil
	}

	records := make([]model.EmailRecord, len(raws))
	valid := make([]bool, len(raws))

	// Each email is independent until the final sort, so the batch is
	// processed by a bounded worker pool. Results land at their input
	// index, keeping the pre-sort order deterministic.
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, raw := range raws {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, raw model.RawEmail) {
			defer wg.Done()
			defer func() { <-sem }()

			email := p.Normalize(raw)
			analysis := p.analyzer.Analyze(ctx, email)
			draft := p.drafter.Draft(ctx, email, analysis)

			records[i] = model.EmailRecord{
				MessageID:    email.MessageID,
				Sender:       email.Sender,
				Subject:      email.Subject,
				Body:         email.Body,
				ReceivedAt:   email.ReceivedAt,
				Priority:     analysis.Priority,
				Sentiment:    analysis.Sentiment,
				Requirements: analysis.Requirements,
				Contacts:     analysis.Contacts,
				DraftReply:   draft,
				Status:       model.StatusPending,
			}
			valid[i] = email.ReceivedValid
		}(i, raw)
	}
	wg.Wait()

	if p.metrics != nil {
		p.metrics.EmailsProcessed.Add(float64(len(records)))
		for _, r := range records {
			if r.Priority == model.PriorityUrgent {
				p.metrics.UrgentEmails.Inc()
			}
		}
	}

	sortBatch(records, valid)

	if err := p.store.Upsert(ctx, records); err != nil {
		return fmt.Errorf("failed to store ingested batch: %w", err)
	}

	logrus.Infof("Ingested %d emails", len(records))
	return nil
}

// Normalize applies defaults to a raw email and guarantees a stable
// message ID
func (p *Pipeline) Normalize(raw model.RawEmail) model.NormalizedEmail {
	email := model.NormalizedEmail{
		MessageID:     raw.MessageID,
		Sender:        raw.Sender,
		Subject:       raw.Subject,
		Body:          raw.Body,
		ReceivedValid: true,
	}

	if email.MessageID == "" {
		email.MessageID = ContentMessageID(raw.Sender, raw.Subject, raw.Body)
	}

	switch ts, err := parseReceived(raw.ReceivedAt); {
	case raw.ReceivedAt == "":
		email.ReceivedAt = p.now().UTC()
	case err != nil:
		logrus.Debugf("Unparseable received timestamp %q for %s", raw.ReceivedAt, email.MessageID)
		email.ReceivedAt = invalidReceivedAt
		email.ReceivedValid = false
	default:
		email.ReceivedAt = ts.UTC()
	}

	return email
}

// ContentMessageID derives a deterministic message identifier from sender,
// subject and body when the source carries none. SHA-256 keeps the
// identifier stable across runs and processes (unlike a per-process hash
// seed) and makes collisions between distinct emails negligible.
func ContentMessageID(sender, subject, body string) string {
	h := sha256.New()
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return "content-" + hex.EncodeToString(h.Sum(nil))
}

// sortBatch orders records urgent-first, then newest-first. Records whose
// source timestamp failed to parse sort last within their priority tier.
func sortBatch(records []model.EmailRecord, valid []bool) {
	type key struct {
		record model.EmailRecord
		valid  bool
	}
	keyed := make([]key, len(records))
	for i, r := range records {
		keyed[i] = key{record: r, valid: valid[i]}
	}

	sort.SliceStable(keyed, func(a, b int) bool {
		pa, pb := priorityRank(keyed[a].record.Priority), priorityRank(keyed[b].record.Priority)
		if pa != pb {
			return pa < pb
		}
		if keyed[a].valid != keyed[b].valid {
			return keyed[a].valid
		}
		return keyed[a].record.ReceivedAt.After(keyed[b].record.ReceivedAt)
	})

	for i, k := range keyed {
		records[i] = k.record
	}
}

func priorityRank(priority string) int {
	if priority == model.PriorityUrgent {
		return 0
	}
	return 1
}

func parseReceived(value string) (time.Time, error) {
	for _, layout := range receivedLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
