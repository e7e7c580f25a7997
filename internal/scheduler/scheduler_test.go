package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-triage-go/internal/config"
	"support-triage-go/internal/kb"
	"support-triage-go/internal/metrics"
	"support-triage-go/internal/model"
	"support-triage-go/internal/nlp"
	"support-triage-go/internal/pipeline"
	"support-triage-go/internal/responder"
	"support-triage-go/internal/store"
)

// Single registry-backed metrics instance shared across tests in this
// package to avoid duplicate Prometheus registration.
var testMetrics = metrics.NewMetrics()

type stubFetcher struct {
	emails       []model.RawEmail
	err          error
	calls        int
	lastMaxCount int
}

func (f *stubFetcher) FetchEmails(ctx context.Context, maxCount int) ([]model.RawEmail, error) {
	f.calls++
	f.lastMaxCount = maxCount
	if f.err != nil {
		return nil, f.err
	}
	if maxCount > 0 && len(f.emails) > maxCount {
		return f.emails[:maxCount], nil
	}
	return f.emails, nil
}

func (f *stubFetcher) Close() error { return nil }

func newTestScheduler(t *testing.T, f *stubFetcher) (*Scheduler, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	analyzer := nlp.NewAnalyzer(nil)
	drafter := responder.NewDrafter(kb.NewIndex(t.TempDir()), nil)
	pipe := pipeline.NewPipeline(analyzer, drafter, st, nil, 2)

	cfg := &config.SchedulerConfig{IntervalMinutes: 5}
	return NewScheduler(cfg, f, pipe, testMetrics, 50), st
}

func TestSchedulerStartStop(t *testing.T) {
	sched, _ := newTestScheduler(t, &stubFetcher{})

	assert.False(t, sched.IsRunning())

	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	assert.False(t, sched.GetNextRun().IsZero())

	// Double start fails
	assert.Error(t, sched.Start())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsRunning())
	assert.True(t, sched.GetNextRun().IsZero())

	// Double stop is a no-op
	require.NoError(t, sched.Stop())
}

func TestSchedulerRestart(t *testing.T) {
	sched, _ := newTestScheduler(t, &stubFetcher{})

	require.NoError(t, sched.Start())
	require.NoError(t, sched.Stop())

	// A stopped scheduler can be started again
	require.NoError(t, sched.Start())
	assert.True(t, sched.IsRunning())
	require.NoError(t, sched.Stop())
}

func TestRunOnceIngestsFetchedEmails(t *testing.T) {
	f := &stubFetcher{emails: []model.RawEmail{
		{
			MessageID:  "msg-1",
			Sender:     "Alice <alice@example.com>",
			Subject:    "Site is down",
			Body:       "Everything is broken, please help.",
			ReceivedAt: "2024-03-01T10:00:00Z",
		},
		{
			MessageID:  "msg-2",
			Sender:     "bob@example.com",
			Subject:    "Thanks",
			Body:       "Great product, thanks for the help.",
			ReceivedAt: "2024-03-01T11:00:00Z",
		},
	}}
	sched, st := newTestScheduler(t, f)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.calls)

	records, err := st.Fetch(context.Background(), true, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "msg-1", records[0].MessageID)
	assert.Equal(t, model.PriorityUrgent, records[0].Priority)
	assert.Equal(t, "msg-2", records[1].MessageID)
	assert.Equal(t, model.PriorityNotUrgent, records[1].Priority)
}

func TestRunOncePropagatesFetchError(t *testing.T) {
	f := &stubFetcher{err: errors.New("imap: connection refused")}
	sched, st := newTestScheduler(t, f)

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch emails")

	records, fetchErr := st.Fetch(context.Background(), true, 0)
	require.NoError(t, fetchErr)
	assert.Empty(t, records)
}

func TestRunOncePassesMaxCount(t *testing.T) {
	f := &stubFetcher{}
	sched, _ := newTestScheduler(t, f)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, 50, f.lastMaxCount)
}
