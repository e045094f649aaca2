package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicyFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := Policy{TTL: 24 * time.Hour}

	require.True(t, p.Fresh(now.Add(-23*time.Hour), now))
	require.False(t, p.Fresh(now.Add(-24*time.Hour), now))
	require.False(t, p.Fresh(now.Add(-48*time.Hour), now))
}

func TestPolicyDerivedFresh(t *testing.T) {
	rowUpdate := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Closed PRs never invalidate derived rows.
	require.True(t, Policy{}.DerivedFresh(true, rowUpdate.Add(time.Hour), rowUpdate))

	// Open PRs invalidate on content change, not on age.
	require.True(t, Policy{}.DerivedFresh(false, rowUpdate.Add(-time.Minute), rowUpdate))
	require.False(t, Policy{}.DerivedFresh(false, rowUpdate.Add(time.Minute), rowUpdate))
}
