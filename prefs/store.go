// Package prefs keeps the two durable per-user flags: whether the tutorial
// was completed and the daily quiz question quota.
package prefs

import (
	"context"
	"sync"

	"stockverse/models"
)

// Store persists user flags. Values are opaque to the store.
type Store interface {
	TutorialCompleted(ctx context.Context, userID string) (bool, error)
	SetTutorialCompleted(ctx context.Context, userID string, done bool) error
	DailyQuota(ctx context.Context, userID string) (models.DailyQuota, error)
	SaveDailyQuota(ctx context.Context, userID string, q models.DailyQuota) error
	DeleteUser(ctx context.Context, userID string) error
}

type userFlags struct {
	tutorial bool
	quota    models.DailyQuota
}

// MemoryStore is a process-local Store used when no database is configured
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]userFlags
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]userFlags)}
}

func (s *MemoryStore) TutorialCompleted(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].tutorial, nil
}

func (s *MemoryStore) SetTutorialCompleted(_ context.Context, userID string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.users[userID]
	f.tutorial = done
	s.users[userID] = f
	return nil
}

func (s *MemoryStore) DailyQuota(_ context.Context, userID string) (models.DailyQuota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID].quota, nil
}

func (s *MemoryStore) SaveDailyQuota(_ context.Context, userID string, q models.DailyQuota) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.users[userID]
	f.quota = q
	s.users[userID] = f
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
