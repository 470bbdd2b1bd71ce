package models

import (
	"errors"
	"time"
)

// DailyQuotaWindow is how long a question quota lasts before it resets
const DailyQuotaWindow = 24 * time.Hour

// DefaultDailyQuestionLimit is the number of questions a player may answer per window
const DefaultDailyQuestionLimit = 10

// ErrDailyLimitReached is returned when a player has used up the current window
var ErrDailyLimitReached = errors.New("daily question limit reached")

// DailyQuota gates how many quiz questions a player answers per window.
// ResetAt is unix milliseconds, matching the blob the dashboard stores.
type DailyQuota struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"resetAt"`
}

// ResetTime returns ResetAt as a time.Time
func (q DailyQuota) ResetTime() time.Time {
	return time.UnixMilli(q.ResetAt)
}

// Current returns the quota as seen at now: an unset or expired window starts over.
func (q DailyQuota) Current(now time.Time) DailyQuota {
	if q.ResetAt == 0 || !now.Before(q.ResetTime()) {
		return DailyQuota{Count: 0, ResetAt: now.Add(DailyQuotaWindow).UnixMilli()}
	}
	return q
}

// Exhausted reports whether no questions remain in the window
func (q DailyQuota) Exhausted(limit int, now time.Time) bool {
	return q.Current(now).Count >= limit
}

// Record counts one answered question. It fails without changing anything when
// the window is already exhausted.
func (q DailyQuota) Record(limit int, now time.Time) (DailyQuota, error) {
	cur := q.Current(now)
	if cur.Count >= limit {
		return q, ErrDailyLimitReached
	}
	cur.Count++
	return cur, nil
}

// Remaining returns the time until the window resets, never negative
func (q DailyQuota) Remaining(now time.Time) time.Duration {
	d := q.ResetTime().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
