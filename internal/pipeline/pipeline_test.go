package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-triage-go/internal/kb"
	"support-triage-go/internal/model"
	"support-triage-go/internal/nlp"
	"support-triage-go/internal/responder"
	"support-triage-go/internal/store"
)

func newTestPipeline(t *testing.T, st store.EmailStore) *Pipeline {
	t.Helper()
	index := kb.NewIndex(filepath.Join(t.TempDir(), "missing"))
	analyzer := nlp.NewAnalyzer(nil)
	drafter := responder.NewDrafter(index, nil)
	return NewPipeline(analyzer, drafter, st, nil, 4)
}

func TestNormalizeDefaults(t *testing.T) {
	p := newTestPipeline(t, store.NewMemoryStore())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	email := p.Normalize(model.RawEmail{Sender: "a@b.com"})

	assert.NotEmpty(t, email.MessageID)
	assert.Equal(t, "", email.Subject)
	assert.Equal(t, "", email.Body)
	assert.Equal(t, fixed, email.ReceivedAt)
	assert.True(t, email.ReceivedValid)
}

func TestNormalizeKeepsExplicitFields(t *testing.T) {
	p := newTestPipeline(t, store.NewMemoryStore())

	email := p.Normalize(model.RawEmail{
		MessageID:  "msg-1",
		Sender:     "a@b.com",
		Subject:    "hello",
		Body:       "world",
		ReceivedAt: "2024-03-01T10:30:00Z",
	})

	assert.Equal(t, "msg-1", email.MessageID)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), email.ReceivedAt)
	assert.True(t, email.ReceivedValid)
}

func TestNormalizeUnparseableTimestamp(t *testing.T) {
	p := newTestPipeline(t, store.NewMemoryStore())

	email := p.Normalize(model.RawEmail{MessageID: "m", ReceivedAt: "last tuesday"})

	assert.False(t, email.ReceivedValid)
	assert.Equal(t, invalidReceivedAt, email.ReceivedAt)
}

func TestContentMessageIDStable(t *testing.T) {
	a := ContentMessageID("s@x.com", "subject", "body")
	b := ContentMessageID("s@x.com", "subject", "body")
	assert.Equal(t, a, b)

	// Distinct content yields distinct identifiers, including when field
	// boundaries shift
	assert.NotEqual(t, a, ContentMessageID("s@x.com", "subject", "body2"))
	assert.NotEqual(t, ContentMessageID("a", "bc", ""), ContentMessageID("ab", "c", ""))
}

func TestIngestIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(t, st)
	ctx := context.Background()

	raws := []model.RawEmail{
		{Sender: "a@x.com", Subject: "outage", Body: "Site is down, please fix.", ReceivedAt: "2024-03-01T10:00:00Z"},
		{Sender: "b@x.com", Subject: "thanks", Body: "Great support, thank you!", ReceivedAt: "2024-03-01T11:00:00Z"},
	}

	require.NoError(t, p.Ingest(ctx, raws))
	first, err := st.Fetch(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)

	require.NoError(t, p.Ingest(ctx, raws))
	second, err := st.Fetch(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, second, 2)

	for i := range first {
		assert.Equal(t, first[i].MessageID, second[i].MessageID)
		assert.Equal(t, first[i].Priority, second[i].Priority)
		assert.Equal(t, first[i].DraftReply, second[i].DraftReply)
	}
}

func TestIngestOrdering(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(t, st)
	ctx := context.Background()

	raws := []model.RawEmail{
		{MessageID: "old-normal", Sender: "a@x.com", Subject: "question", Body: "How do I export data?", ReceivedAt: "2024-03-01T08:00:00Z"},
		{MessageID: "new-normal", Sender: "b@x.com", Subject: "question", Body: "How do I import data?", ReceivedAt: "2024-03-01T12:00:00Z"},
		{MessageID: "old-urgent", Sender: "c@x.com", Subject: "outage", Body: "Everything is down.", ReceivedAt: "2024-03-01T06:00:00Z"},
		{MessageID: "new-urgent", Sender: "d@x.com", Subject: "urgent help", Body: "Cannot access anything.", ReceivedAt: "2024-03-01T10:00:00Z"},
	}

	require.NoError(t, p.Ingest(ctx, raws))
	records, err := st.Fetch(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "new-urgent", records[0].MessageID)
	assert.Equal(t, "old-urgent", records[1].MessageID)
	assert.Equal(t, "new-normal", records[2].MessageID)
	assert.Equal(t, "old-normal", records[3].MessageID)

	// No Not urgent record precedes an Urgent one and timestamps are
	// non-increasing within each tier
	seenNotUrgent := false
	for i, r := range records {
		if r.Priority == model.PriorityNotUrgent {
			seenNotUrgent = true
		} else {
			assert.False(t, seenNotUrgent, "urgent record at %d after not-urgent", i)
		}
		if i > 0 && records[i-1].Priority == r.Priority {
			assert.False(t, records[i-1].ReceivedAt.Before(r.ReceivedAt))
		}
	}
}

func TestSortBatchInvalidTimestampsLast(t *testing.T) {
	records := []model.EmailRecord{
		{MessageID: "invalid", Priority: model.PriorityNotUrgent, ReceivedAt: invalidReceivedAt},
		{MessageID: "valid-old", Priority: model.PriorityNotUrgent, ReceivedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{MessageID: "valid-new", Priority: model.PriorityNotUrgent, ReceivedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	valid := []bool{false, true, true}

	sortBatch(records, valid)

	assert.Equal(t, "valid-new", records[0].MessageID)
	assert.Equal(t, "valid-old", records[1].MessageID)
	assert.Equal(t, "invalid", records[2].MessageID)
}

func TestIngestEmptyBatch(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(t, st)

	require.NoError(t, p.Ingest(context.Background(), nil))
	records, err := st.Fetch(context.Background(), true, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestIngestDeterministicUnderConcurrency(t *testing.T) {
	ctx := context.Background()

	raws := make([]model.RawEmail, 0, 20)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		subject := "question"
		if i%3 == 0 {
			subject = "urgent outage"
		}
		raws = append(raws, model.RawEmail{
			Sender:     "user@x.com",
			Subject:    subject,
			Body:       "Please help with item " + string(rune('a'+i)),
			ReceivedAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		})
	}

	st1 := store.NewMemoryStore()
	require.NoError(t, newTestPipeline(t, st1).Ingest(ctx, raws))
	got1, err := st1.Fetch(ctx, true, 0)
	require.NoError(t, err)

	st2 := store.NewMemoryStore()
	require.NoError(t, newTestPipeline(t, st2).Ingest(ctx, raws))
	got2, err := st2.Fetch(ctx, true, 0)
	require.NoError(t, err)

	require.Len(t, got1, 20)
	for i := range got1 {
		assert.Equal(t, got1[i].MessageID, got2[i].MessageID)
	}
}
