package objsync

import (
	"encoding/json"
	"os"
	"time"
)

// DefaultMinInterval is the cooldown between two syncs of the same state file.
const DefaultMinInterval = 300 * time.Second

// ShouldSkipSync reports whether the last completed sync recorded at
// statePath is younger than minInterval. Any problem reading the state file
// answers false so that a sync happens.
func ShouldSkipSync(statePath string, minInterval time.Duration, now time.Time) bool {
	data, err := os.ReadFile(statePath)
	if err != nil {
		return false
	}
	var state struct {
		SyncedAtUtc string `json:"synced_at_utc"`
	}
	err = json.Unmarshal(data, &state)
	if err != nil || state.SyncedAtUtc == "" {
		return false
	}
	last, err := time.Parse(time.RFC3339, state.SyncedAtUtc)
	if err != nil {
		return false
	}
	if now.IsZero() {
		now = time.Now()
	}
	return now.UTC().Sub(last.UTC()) < minInterval
}
