package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-role-bot/internal/circuitbreaker"
	"github.com/whale-role-bot/internal/config"
	apperrors "github.com/whale-role-bot/internal/errors"
)

func newTestLeaderboardClient(url string) *LeaderboardClient {
	return NewLeaderboardClient(&config.LeaderboardConfig{
		Endpoint:          url + "/reward/top",
		Limit:             30,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 100,
	})
}

func TestLeaderboardClient_FetchTop(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reward/top", r.URL.Path)
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"points":[
			{"account_info":{"account_id":"0x52908400098527886E0F7030069857D2E4169EE7","nickname":"alice"},"point":1500.5},
			{"account_info":{"account_id":"not-an-address","nickname":"mallory"},"point":900},
			{"account_info":{"account_id":"0x00000000000000000000000000000000000000BB","nickname":"bob"},"point":"700"}
		]}`))
	}))
	defer server.Close()

	client := newTestLeaderboardClient(server.URL)
	entries, err := client.FetchTop(context.Background(), 30)
	require.NoError(t, err)

	assert.Equal(t, "limit=30&page=1", gotQuery)
	require.Len(t, entries, 2)

	assert.Equal(t, "0x52908400098527886e0f7030069857d2e4169ee7", entries[0].Address)
	assert.Equal(t, "alice", entries[0].Nickname)
	assert.Equal(t, 1500.5, entries[0].Score)
	assert.Equal(t, 1, entries[0].Rank)
	assert.False(t, entries[0].FetchedAt.IsZero())

	assert.Equal(t, "0x00000000000000000000000000000000000000bb", entries[1].Address)
	assert.Equal(t, float64(700), entries[1].Score)
	assert.Equal(t, 2, entries[1].Rank)
}

func TestLeaderboardClient_TruncatesToLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"points":[
			{"account_info":{"account_id":"0x00000000000000000000000000000000000000aa","nickname":"a"},"point":3},
			{"account_info":{"account_id":"0x00000000000000000000000000000000000000bb","nickname":"b"},"point":2},
			{"account_info":{"account_id":"0x00000000000000000000000000000000000000cc","nickname":"c"},"point":1}
		]}`))
	}))
	defer server.Close()

	entries, err := newTestLeaderboardClient(server.URL).FetchTop(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLeaderboardClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
	}{
		{"server error", http.StatusInternalServerError, "boom", apperrors.CodeProviderError},
		{"rate limited", http.StatusTooManyRequests, "", apperrors.CodeProviderLimited},
		{"malformed body", http.StatusOK, "{not json", apperrors.CodeProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestLeaderboardClient(server.URL).FetchTop(context.Background(), 30)
			require.Error(t, err)

			catErr := apperrors.Categorize(err)
			assert.Equal(t, apperrors.CategoryProvider, catErr.Category)
			assert.Equal(t, tt.wantCode, catErr.Code)
			assert.True(t, apperrors.IsRetryable(err))
		})
	}
}

func TestLeaderboardClient_EmptyPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"points":[]}`))
	}))
	defer server.Close()

	entries, err := newTestLeaderboardClient(server.URL).FetchTop(context.Background(), 30)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLeaderboardClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"points":[]}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestLeaderboardClient(server.URL).FetchTop(ctx, 30)
	assert.Error(t, err)
}

func TestLeaderboardClient_PingReflectsBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestLeaderboardClient(server.URL)
	require.NoError(t, client.Ping(context.Background()))

	for i := 0; i < circuitbreaker.DefaultConfig(leaderboardProvider).MaxFailures; i++ {
		_, err := client.FetchTop(context.Background(), 30)
		require.Error(t, err)
	}

	err := client.Ping(context.Background())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}
