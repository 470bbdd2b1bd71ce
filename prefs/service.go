package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockverse/models"
	"stockverse/observability"
)

// ErrInvalidUser is returned for an empty user id
var ErrInvalidUser = errors.New("user id is required")

// QuotaStatus is the quota as reported to the dashboard
type QuotaStatus struct {
	Count     int       `json:"count"`
	Limit     int       `json:"limit"`
	Left      int       `json:"left"`
	Exhausted bool      `json:"exhausted"`
	ResetAt   time.Time `json:"reset_at"`
	ResetInMs int64     `json:"reset_in_ms"`
}

// Service applies the quota rules on top of a Store
type Service struct {
	store Store
	limit int
	now   func() time.Time

	// serialises read-modify-write of one user's quota
	mu sync.Mutex
}

// NewService creates a Service. A non-positive limit uses the default of 10.
func NewService(store Store, limit int) *Service {
	if limit <= 0 {
		limit = models.DefaultDailyQuestionLimit
	}
	return &Service{store: store, limit: limit, now: time.Now}
}

// Limit returns the number of questions allowed per window
func (s *Service) Limit() int {
	return s.limit
}

func normalizeUser(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidUser
	}
	return userID, nil
}

// TutorialCompleted reports whether the user finished the tutorial
func (s *Service) TutorialCompleted(ctx context.Context, userID string) (bool, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return false, err
	}
	return s.store.TutorialCompleted(ctx, userID)
}

// SetTutorialCompleted records the tutorial flag
func (s *Service) SetTutorialCompleted(ctx context.Context, userID string, done bool) error {
	userID, err := normalizeUser(userID)
	if err != nil {
		return err
	}
	if err := s.store.SetTutorialCompleted(ctx, userID, done); err != nil {
		return fmt.Errorf("failed to save tutorial flag: %w", err)
	}
	observability.WithUser(userID).Info("tutorial flag updated", "completed", done)
	return nil
}

// Quota returns the user's quota as of now, starting a fresh window when the
// stored one is missing or expired.
func (s *Service) Quota(ctx context.Context, userID string) (QuotaStatus, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return QuotaStatus{}, err
	}
	q, err := s.store.DailyQuota(ctx, userID)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to load quota: %w", err)
	}
	return s.status(q.Current(s.now())), nil
}

// Allow reports whether the user may answer another question
func (s *Service) Allow(ctx context.Context, userID string) (bool, error) {
	st, err := s.Quota(ctx, userID)
	if err != nil {
		return false, err
	}
	return !st.Exhausted, nil
}

// RecordAnswer counts one answered question. It returns
// models.ErrDailyLimitReached, and stores nothing, when the window is used up.
func (s *Service) RecordAnswer(ctx context.Context, userID string) (QuotaStatus, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return QuotaStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	q, err := s.store.DailyQuota(ctx, userID)
	if err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to load quota: %w", err)
	}

	next, err := q.Record(s.limit, now)
	if err != nil {
		observability.WithUser(userID).Debug("daily question limit reached", "limit", s.limit)
		return s.status(q.Current(now)), err
	}
	if err := s.store.SaveDailyQuota(ctx, userID, next); err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to save quota: %w", err)
	}
	return s.status(next), nil
}

// ResetQuota starts a new 24h window with no questions answered
func (s *Service) ResetQuota(ctx context.Context, userID string) (QuotaStatus, error) {
	userID, err := normalizeUser(userID)
	if err != nil {
		return QuotaStatus{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := models.DailyQuota{}.Current(s.now())
	if err := s.store.SaveDailyQuota(ctx, userID, q); err != nil {
		return QuotaStatus{}, fmt.Errorf("failed to save quota: %w", err)
	}
	observability.WithUser(userID).Info("daily quota window started")
	return s.status(q), nil
}

// DeleteUser forgets both flags for the user
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	userID, err := normalizeUser(userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user flags: %w", err)
	}
	observability.WithUser(userID).Info("user flags deleted")
	return nil
}

func (s *Service) status(q models.DailyQuota) QuotaStatus {
	now := s.now()
	left := s.limit - q.Count
	if left < 0 {
		left = 0
	}
	return QuotaStatus{
		Count:     q.Count,
		Limit:     s.limit,
		Left:      left,
		Exhausted: left == 0,
		ResetAt:   q.ResetTime().UTC(),
		ResetInMs: q.Remaining(now).Milliseconds(),
	}
}
