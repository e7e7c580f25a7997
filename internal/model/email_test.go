package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeStats(t *testing.T) {
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	records := []EmailRecord{
		{
			Priority:   PriorityUrgent,
			Sentiment:  SentimentNegative,
			ReceivedAt: now.Add(-1 * time.Hour),
			Status:     StatusPending,
		},
		{
			Priority:   PriorityNotUrgent,
			Sentiment:  SentimentPositive,
			ReceivedAt: now.Add(-48 * time.Hour),
			Status:     StatusResolved,
		},
		{
			Priority:   PriorityNotUrgent,
			Sentiment:  SentimentNeutral,
			ReceivedAt: now.Add(-23 * time.Hour),
			Status:     StatusPending,
		},
	}

	stats := ComputeStats(records, now)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Urgent)
	assert.Equal(t, 1, stats.Positive)
	assert.Equal(t, 1, stats.Negative)
	assert.Equal(t, 1, stats.Neutral)
	assert.Equal(t, 2, stats.Last24h)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 2, stats.Pending)
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, time.Now().UTC())

	assert.Equal(t, DashboardStats{}, stats)
}

func TestComputeStatsUnknownSentimentCountsNeutral(t *testing.T) {
	stats := ComputeStats([]EmailRecord{{Sentiment: ""}}, time.Now().UTC())

	assert.Equal(t, 1, stats.Neutral)
}
