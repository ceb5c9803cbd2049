package domain

import (
	"time"
)

// TimeRange is a closed interval over item creation times
type TimeRange struct {
	Since time.Time
	Until time.Time
}

// Valid reports whether the range is non-inverted
func (r TimeRange) Valid() bool {
	return !r.Until.Before(r.Since)
}

// Contains reports whether t falls within the range, inclusive on both bounds
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Since) && !t.After(r.Until)
}

// MakerPlayCount is the running distinct-player count for one maker
type MakerPlayCount struct {
	MakerID   int64 `json:"maker_id"`
	PlayCount int64 `json:"play_count"`
}

// RecomputeCommand is the payload fanned out on the full-window recompute
// channel. ID is a ULID used only for log correlation across instances.
type RecomputeCommand struct {
	ID    string    `json:"id"`
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}
