// Package strike keeps per-user counts of confirmed policy violations.
package strike

import (
	"context"
	"strings"
	"time"

	"github.com/salehop/salehop-api/internal/pkg/logger"
)

// Ledger records strikes against users.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// AddStrike increments the user's strike count and returns the new count.
// The flag is created on the first strike.
func (l *Ledger) AddStrike(ctx context.Context, userID string) (int, error) {
	return l.AddStrikeFor(ctx, userID, "")
}

// AddStrikeFor is AddStrike deduplicated by source, the path of the object
// that caused the strike. Repeating a source returns the current count.
func (l *Ledger) AddStrikeFor(ctx context.Context, userID, source string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, ErrEmptyUserID
	}

	count, added, err := l.repo.Increment(ctx, userID, source, l.now().UTC())
	if err != nil {
		return 0, err
	}

	if !added {
		logger.FromContext(ctx).Info().
			Str("owner_id", userID).
			Str("source", source).
			Int("strike_count", count).
			Msg("Strike already recorded for object")
		return count, nil
	}

	logger.FromContext(ctx).Info().
		Str("owner_id", userID).
		Int("strike_count", count).
		Msg("Strike recorded")
	return count, nil
}

// GetFlag returns the user's flag or ErrFlagNotFound.
func (l *Ledger) GetFlag(ctx context.Context, userID string) (*UserFlag, error) {
	return l.repo.GetFlag(ctx, userID)
}
