package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"support-triage-go/internal/model"
)

// EmailStore persists deduplicated email records keyed by message ID.
// Upsert inserts new records and overwrites all fields of existing ones;
// there is never more than one record per message ID.
type EmailStore interface {
	Upsert(ctx context.Context, records []model.EmailRecord) error
	Fetch(ctx context.Context, orderByPriority bool, limit int) ([]model.EmailRecord, error)
	UpdateStatus(ctx context.Context, messageID, status string) error
	Ping(ctx context.Context) error
}

// GormStore is the MySQL-backed EmailStore. The unique index on message_id
// enforces deduplication at the storage layer; the batch upsert runs inside
// a transaction so concurrent ingestion runs never interleave partial
// updates to one record.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over an initialized gorm connection
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Upsert inserts or overwrites records by message_id. An empty batch is a
// no-op.
func (s *GormStore) Upsert(ctx context.Context, records []model.EmailRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"sender", "subject", "body", "received_at",
				"priority", "sentiment", "requirements", "contacts",
				"draft_reply", "status", "updated_at",
			}),
		}).Create(&records).Error
	})
	if err != nil {
		return fmt.Errorf("failed to upsert email records: %w", err)
	}
	return nil
}

// Fetch returns records ordered urgent-first then newest-first when
// orderByPriority is set, otherwise newest-first only
func (s *GormStore) Fetch(ctx context.Context, orderByPriority bool, limit int) ([]model.EmailRecord, error) {
	query := s.db.WithContext(ctx).Model(&model.EmailRecord{})

	if orderByPriority {
		query = query.Order("CASE WHEN priority = 'Urgent' THEN 0 ELSE 1 END").
			Order("received_at DESC")
	} else {
		query = query.Order("received_at DESC")
	}

	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []model.EmailRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch email records: %w", err)
	}
	return records, nil
}

// UpdateStatus updates the status of a single record by message ID. It
// returns gorm.ErrRecordNotFound when no such record exists.
func (s *GormStore) UpdateStatus(ctx context.Context, messageID, status string) error {
	result := s.db.WithContext(ctx).Model(&model.EmailRecord{}).
		Where("message_id = ?", messageID).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Ping verifies database connectivity
func (s *GormStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
