package features

import (
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"
	"prsight.dev/internal/database"
)

func TestIsBotName(t *testing.T) {
	tests := []struct {
		username string
		repo     string
		want     bool
	}{
		{"build-bot", "widgets", true},
		{"Jenkins", "widgets", true},
		{"ci-runner", "widgets", true},
		{"widgets-deploy", "widgets", true},
		{"alice", "widgets", false},
		// "bot" embedded without a word boundary does not match.
		{"dependabot", "widgets", false},
		{"CHATBOT", "widgets", true},
		{"carol", "", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsBotName(tt.username, tt.repo), tt.username)
	}
}

func TestMedian(t *testing.T) {
	require.Zero(t, Median(nil))
	require.Equal(t, 3.0, Median([]float64{3}))
	require.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	require.Equal(t, 2.5, Median([]float64{4, 1, 2, 3}))
}

func TestPublicMedians(t *testing.T) {
	users := []*database.User{
		{TotalChangeNumber: ptr.To(10.0), ReviewNumber: ptr.To(2.0), ChangesPerWeek: ptr.To(1.0)},
		{TotalChangeNumber: ptr.To(20.0), ReviewNumber: ptr.To(4.0)},
		{TotalChangeNumber: ptr.To(30.0)},
	}
	m := PublicMedians(users)
	require.Equal(t, 20.0, m.TotalChangeNumber)
	require.Equal(t, 3.0, m.ReviewNumber)
	require.Equal(t, 1.0, m.ChangesPerWeek)

	require.Zero(t, PublicMedians(nil).TotalChangeNumber)
}
