package manifest

import "time"

// DefaultMaxAge is how long fetched data stays fresh when nothing else is configured.
const DefaultMaxAge = 6 * 24 * time.Hour

// IsStale reports whether the entity needs to be fetched again. Entities that
// were never fetched are stale, otherwise an entity is stale once its age
// reaches maxAge (the boundary itself counts as stale). A zero `now` means the
// current UTC instant.
func IsStale(e Entity, now time.Time, maxAge time.Duration) bool {
	if e.LastFetchedAt == nil {
		return true
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return now.Sub(*e.LastFetchedAt) >= maxAge
}

// Policy is IsStale with a fixed maximum age.
type Policy struct {
	MaxAge time.Duration
}

func (p Policy) maxAge() time.Duration {
	if p.MaxAge <= 0 {
		return DefaultMaxAge
	}
	return p.MaxAge
}

func (p Policy) IsStale(e Entity, now time.Time) bool {
	return IsStale(e, now, p.maxAge())
}
