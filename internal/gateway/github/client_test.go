package github

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/require"
)

func TestNewClientParsesRepo(t *testing.T) {
	c, err := NewClient("acme/widgets")
	require.NoError(t, err)
	require.Equal(t, "acme/widgets", c.Repo())
	require.Equal(t, "widgets", c.RepoShortName())
}

func TestNewClientRejectsMalformedRepo(t *testing.T) {
	for _, repo := range []string{"", "widgets", "acme/", "/widgets"} {
		_, err := NewClient(repo)
		require.Error(t, err, repo)
	}
}

func TestIsTransient(t *testing.T) {
	require.False(t, isTransient(nil))
	require.False(t, isTransient(errors.New("boom")))
	require.True(t, isTransient(errors.New("dial tcp: connection refused")))
	require.True(t, isTransient(errors.New("unexpected EOF")))
	require.True(t, isTransient(&github.RateLimitError{}))
	require.True(t, isTransient(&github.AbuseRateLimitError{}))

	require.True(t, isTransient(&github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusBadGateway},
	}))
	require.False(t, isTransient(&github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusNotFound},
	}))
}

func TestIsAccessDenied(t *testing.T) {
	require.True(t, isAccessDenied(&github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
	}))
	require.False(t, isAccessDenied(&github.ErrorResponse{
		Response: &http.Response{StatusCode: http.StatusForbidden},
	}))
	require.False(t, isAccessDenied(errors.New("boom")))
}
