package repository

import (
	"context"

	"stockverse/models"
)

// RepositoryInterface defines all repository operations
type RepositoryInterface interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// User flags
	TutorialCompleted(ctx context.Context, userID string) (bool, error)
	SetTutorialCompleted(ctx context.Context, userID string, done bool) error
	DailyQuota(ctx context.Context, userID string) (models.DailyQuota, error)
	SaveDailyQuota(ctx context.Context, userID string, q models.DailyQuota) error
	DeleteUser(ctx context.Context, userID string) error
}

// Compile-time interface verification
var _ RepositoryInterface = (*Repository)(nil)
