package features

import "time"

// Policy decides whether a cached record may be reused or must be recomputed.
type Policy struct {
	// TTL is the maximum age of Project/User aggregate rows.
	TTL time.Duration
}

// Fresh reports whether a TTL-governed aggregate row is still usable.
func (p Policy) Fresh(lastUpdate, now time.Time) bool {
	return now.Before(lastUpdate.Add(p.TTL))
}

// DerivedFresh reports whether a row derived from a PR's diff or description
// is still usable. Rows for closed PRs never expire, the underlying content
// cannot change. Rows for open PRs are invalidated by content, not time: the
// row holds as long as the PR was last modified before the row was written.
func (p Policy) DerivedFresh(prClosed bool, prUpdated, rowUpdate time.Time) bool {
	if prClosed {
		return true
	}
	return prUpdated.Before(rowUpdate)
}
