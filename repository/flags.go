package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stockverse/models"
	"stockverse/observability"
)

// Flag names, matching the keys the dashboard has always stored
const (
	FlagTutorialCompleted = "tutorialCompleted"
	FlagDailyLimit        = "stockverse_daily_limit"
)

const flagsTable = "user_flags"

// getFlag decodes a flag into dest. found is false when the flag was never set.
func (r *Repository) getFlag(ctx context.Context, userID, flag string, dest any) (bool, error) {
	timer := observability.GetMetrics().NewTimer()
	defer timer.ObserveDB("select", flagsTable)

	var data []byte
	err := r.db.QueryRow(ctx, `
		SELECT value FROM user_flags WHERE user_id = $1 AND flag = $2
	`, userID, flag).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		observability.GetMetrics().RecordDBError("select", flagsTable)
		return false, fmt.Errorf("failed to query flag %s: %w", flag, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal flag %s: %w", flag, err)
	}
	return true, nil
}

func (r *Repository) setFlag(ctx context.Context, userID, flag string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal flag %s: %w", flag, err)
	}

	timer := observability.GetMetrics().NewTimer()
	defer timer.ObserveDB("upsert", flagsTable)

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_flags (user_id, flag, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, flag)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, userID, flag, data)
	if err != nil {
		observability.GetMetrics().RecordDBError("upsert", flagsTable)
		return fmt.Errorf("failed to set flag %s: %w", flag, err)
	}
	return nil
}

// TutorialCompleted reports whether the user finished the tutorial
func (r *Repository) TutorialCompleted(ctx context.Context, userID string) (bool, error) {
	var done bool
	if _, err := r.getFlag(ctx, userID, FlagTutorialCompleted, &done); err != nil {
		return false, err
	}
	return done, nil
}

// SetTutorialCompleted stores the tutorial flag
func (r *Repository) SetTutorialCompleted(ctx context.Context, userID string, done bool) error {
	return r.setFlag(ctx, userID, FlagTutorialCompleted, done)
}

// DailyQuota returns the stored quota blob, or the zero quota when none exists
func (r *Repository) DailyQuota(ctx context.Context, userID string) (models.DailyQuota, error) {
	var q models.DailyQuota
	if _, err := r.getFlag(ctx, userID, FlagDailyLimit, &q); err != nil {
		return models.DailyQuota{}, err
	}
	return q, nil
}

// SaveDailyQuota stores the quota blob
func (r *Repository) SaveDailyQuota(ctx context.Context, userID string, q models.DailyQuota) error {
	return r.setFlag(ctx, userID, FlagDailyLimit, q)
}

// DeleteUser removes every flag stored for userID
func (r *Repository) DeleteUser(ctx context.Context, userID string) error {
	timer := observability.GetMetrics().NewTimer()
	defer timer.ObserveDB("delete", flagsTable)

	if _, err := r.db.Exec(ctx, `DELETE FROM user_flags WHERE user_id = $1`, userID); err != nil {
		observability.GetMetrics().RecordDBError("delete", flagsTable)
		return fmt.Errorf("failed to delete flags: %w", err)
	}
	return nil
}
