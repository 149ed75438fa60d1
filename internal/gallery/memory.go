package gallery

import (
	"context"
	"sort"
	"sync"
	"time"

	"mediagen/internal/domain"
)

// MemoryStore is an in-process GalleryRepository for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]domain.GalleryRecord
	now     func() time.Time
	err     error
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{records: make(map[string]domain.GalleryRecord), now: now}
}

// FailWith makes every subsequent write return err.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MemoryStore) Insert(_ context.Context, rec *domain.GalleryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if rec.JobID != "" {
		for _, existing := range m.records {
			if existing.UserID == rec.UserID && existing.JobID == rec.JobID {
				return nil
			}
		}
	}
	m.records[rec.ID] = *rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, userID, id string) (*domain.GalleryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.GalleryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var out []domain.GalleryRecord
	for _, rec := range m.records {
		if rec.UserID == userID && !rec.Expired(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec, ok := m.records[id]
	if !ok || rec.UserID != userID {
		return domain.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, cutoff time.Time, limit int) ([]domain.GalleryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.GalleryRecord
	for id, rec := range m.records {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !cutoff.Before(rec.ExpiresAt) {
			out = append(out, rec)
			delete(m.records, id)
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ domain.GalleryRepository = (*MemoryStore)(nil)
