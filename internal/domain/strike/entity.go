package strike

import "time"

// UserFlag is a user's accumulated policy-violation record.
type UserFlag struct {
	UserID       string    `db:"user_id" json:"user_id"`
	StrikeCount  int       `db:"strike_count" json:"strike_count"`
	LastStrikeAt time.Time `db:"last_strike_at" json:"last_strike_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
