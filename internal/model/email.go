package model

import (
	"time"
)

// Sentiment labels assigned by the analyzer
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// Priority labels assigned by the analyzer
const (
	PriorityUrgent    = "Urgent"
	PriorityNotUrgent = "Not urgent"
)

// Email record statuses
const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// RawEmail is the permissive input shape produced by a mail-retrieval
// collaborator. Any field except Sender may be empty; normalization fills
// in defaults rather than rejecting the record.
type RawEmail struct {
	MessageID  string `json:"message_id"`
	Sender     string `json:"sender"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at"` // ISO-8601 or empty
}

// NormalizedEmail is a RawEmail with all defaults applied and a guaranteed
// non-empty MessageID.
type NormalizedEmail struct {
	MessageID     string
	Sender        string
	Subject       string
	Body          string
	ReceivedAt    time.Time
	ReceivedValid bool // false when the source timestamp failed to parse
}

// Analysis holds the classification results for one email
type Analysis struct {
	Sentiment    string `json:"sentiment"`
	Priority     string `json:"priority"`
	Requirements string `json:"requirements"`
	Contacts     string `json:"contacts"`
}

// EmailRecord is the persisted union of a normalized email, its analysis
// and the drafted reply. MessageID is the dedup key: upserting a record
// with an existing MessageID overwrites all fields in place.
type EmailRecord struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID    string    `json:"message_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	Sender       string    `json:"sender" gorm:"type:varchar(255)"`
	Subject      string    `json:"subject" gorm:"type:text"`
	Body         string    `json:"body" gorm:"type:longtext"`
	ReceivedAt   time.Time `json:"received_at" gorm:"index:idx_emails_received"`
	Priority     string    `json:"priority" gorm:"type:varchar(32);index:idx_emails_priority"`
	Sentiment    string    `json:"sentiment" gorm:"type:varchar(32)"`
	Requirements string    `json:"requirements" gorm:"type:text"`
	Contacts     string    `json:"contacts" gorm:"type:text"`
	DraftReply   string    `json:"draft_reply" gorm:"type:longtext"`
	Status       string    `json:"status" gorm:"type:varchar(32);not null;default:pending"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for EmailRecord
func (EmailRecord) TableName() string {
	return "emails"
}

// DashboardStats are aggregate counts derived from a fetched record
// sequence. They are computed by the read-side consumer, not persisted.
type DashboardStats struct {
	Total    int `json:"total"`
	Urgent   int `json:"urgent"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
	Last24h  int `json:"last_24h"`
	Resolved int `json:"resolved"`
	Pending  int `json:"pending"`
}

// ComputeStats derives dashboard statistics from a record sequence. The
// trailing 24 hour window is measured against now.
func ComputeStats(records []EmailRecord, now time.Time) DashboardStats {
	stats := DashboardStats{Total: len(records)}
	cutoff := now.Add(-24 * time.Hour)

	for _, r := range records {
		if r.Priority == PriorityUrgent {
			stats.Urgent++
		}
		switch r.Sentiment {
		case SentimentPositive:
			stats.Positive++
		case SentimentNegative:
			stats.Negative++
		default:
			stats.Neutral++
		}
		if !r.ReceivedAt.Before(cutoff) {
			stats.Last24h++
		}
		if r.Status == StatusResolved {
			stats.Resolved++
		}
	}
	stats.Pending = stats.Total - stats.Resolved
	return stats
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}
