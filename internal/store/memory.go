package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"support-triage-go/internal/model"
)

// MemoryStore is an in-memory EmailStore with the same upsert/fetch
// contract as the MySQL store. It backs tests and credential-free local
// runs; a mutex around the map gives the same per-batch write serialization
// the SQL transaction provides.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.EmailRecord
	nextID  uint
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]model.EmailRecord), nextID: 1}
}

// Upsert inserts or overwrites records by message ID
func (s *MemoryStore) Upsert(ctx context.Context, records []model.EmailRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, r := range records {
		if existing, ok := s.records[r.MessageID]; ok {
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
		} else {
			r.ID = s.nextID
			s.nextID++
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		if r.Status == "" {
			r.Status = model.StatusPending
		}
		s.records[r.MessageID] = r
	}
	return nil
}

// Fetch returns records with the same ordering rules as the SQL store
func (s *MemoryStore) Fetch(ctx context.Context, orderByPriority bool, limit int) ([]model.EmailRecord, error) {
	s.mu.RLock()
	records := make([]model.EmailRecord, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(records, func(a, b int) bool {
		if orderByPriority {
			pa, pb := priorityRank(records[a].Priority), priorityRank(records[b].Priority)
			if pa != pb {
				return pa < pb
			}
		}
		return records[a].ReceivedAt.After(records[b].ReceivedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// UpdateStatus updates the status of a single record by message ID
func (s *MemoryStore) UpdateStatus(ctx context.Context, messageID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[messageID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	s.records[messageID] = r
	return nil
}

// Ping always succeeds for the in-memory store
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func priorityRank(priority string) int {
	if priority == model.PriorityUrgent {
		return 0
	}
	return 1
}
