package domain

import "fmt"

const (
	// Redis key layout
	DEDUP_KEY_PREFIX        = "items:late-played-log:"
	RANKING_CACHE_KEY       = "ranking:maker-ids"
	RANKING_UPDATE_FLAG_KEY = "ranking:maker-ids-updated-flag"

	// Broadcast channel names
	CHANNEL_UPDATE_SNAPSHOT     = "ranking:update-snapshot"
	CHANNEL_UPDATE_ALL_SNAPSHOT = "ranking:update-all-snapshot"
)

// DedupKey builds the dedup-log key for a (maker, player) pair.
// A key's presence means the pair was already counted within the cool-down window.
func DedupKey(makerID int64, playerHash string) string {
	return fmt.Sprintf("%s%d--%s", DEDUP_KEY_PREFIX, makerID, playerHash)
}
