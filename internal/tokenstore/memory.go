package tokenstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-instance
// development runs. Records are copied on the way in and out so callers
// never share byte slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok || len(rec.EncryptedRefreshToken) == 0 {
		return nil, ErrNotFound
	}

	out := copyRecord(rec)
	return &out, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	if rec.UserID == "" {
		return errors.New("tokenstore: missing user_id")
	}
	if len(rec.EncryptedRefreshToken) == 0 {
		return errors.New("tokenstore: refusing to store record without refresh token")
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.UserID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	return nil
}

func copyRecord(rec Record) Record {
	out := rec
	out.EncryptedAccessToken = append([]byte(nil), rec.EncryptedAccessToken...)
	out.EncryptedRefreshToken = append([]byte(nil), rec.EncryptedRefreshToken...)
	out.Account = append([]byte(nil), rec.Account...)
	if rec.EncryptedAccessToken == nil {
		out.EncryptedAccessToken = nil
	}
	return out
}
