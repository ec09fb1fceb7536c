package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/whale-role-bot/internal/circuitbreaker"
	"github.com/whale-role-bot/internal/config"
	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/logging"
	"github.com/whale-role-bot/internal/metrics"
	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/types"
)

const leaderboardProvider = "leaderboard"

// maxLeaderboardBody caps how much of a response is read
const maxLeaderboardBody = 4 << 20

// LeaderboardClient fetches the top of the remote points leaderboard
type LeaderboardClient struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
}

// leaderboardResponse is the wire shape of GET {endpoint}?page=1&limit=N
type leaderboardResponse struct {
	Points []struct {
		AccountInfo struct {
			AccountID string `json:"account_id"`
			Nickname  string `json:"nickname"`
		} `json:"account_info"`
		Point flexibleFloat `json:"point"`
	} `json:"points"`
}

// flexibleFloat accepts a JSON number or a numeric string
type flexibleFloat float64

func (f *flexibleFloat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid point value %s: %w", data, err)
	}
	*f = flexibleFloat(v)
	return nil
}

// NewLeaderboardClient creates a new leaderboard client
func NewLeaderboardClient(cfg *config.LeaderboardConfig) *LeaderboardClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	return &LeaderboardClient{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig(leaderboardProvider)),
	}
}

// FetchTop returns up to n entries ranked by position in the response.
// Entries whose account id is not a hex address are skipped.
func (c *LeaderboardClient) FetchTop(ctx context.Context, n int) ([]*models.LeaderboardEntry, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.LeaderboardFetchDuration)

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.LeaderboardFetchErrors.Inc()
		return nil, apperrors.NewProviderError(leaderboardProvider, err)
	}

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = c.get(ctx, n)
		return err
	})
	if err != nil {
		metrics.LeaderboardFetchErrors.Inc()
		if apperrors.Categorize(err).Category == apperrors.CategoryProvider {
			return nil, err
		}
		return nil, apperrors.NewProviderError(leaderboardProvider, err)
	}

	entries, err := c.parse(ctx, body)
	if err != nil {
		metrics.LeaderboardFetchErrors.Inc()
		return nil, apperrors.NewProviderError(leaderboardProvider, err)
	}

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	metrics.LeaderboardEntries.Set(float64(len(entries)))

	return entries, nil
}

// Ping reports the provider as unhealthy while its circuit breaker is open
func (c *LeaderboardClient) Ping(ctx context.Context) error {
	if c.breaker.GetState() == circuitbreaker.StateOpen {
		return fmt.Errorf("%s provider: %w", leaderboardProvider, circuitbreaker.ErrCircuitOpen)
	}
	return nil
}

func (c *LeaderboardClient) get(ctx context.Context, n int) ([]byte, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid leaderboard endpoint: %w", err)
	}
	q := u.Query()
	q.Set("page", "1")
	q.Set("limit", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLeaderboardBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.NewProviderRateLimitError(leaderboardProvider)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d - %s", resp.StatusCode, truncateBody(body))
	}

	return body, nil
}

func (c *LeaderboardClient) parse(ctx context.Context, body []byte) ([]*models.LeaderboardEntry, error) {
	var resp leaderboardResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	now := time.Now().UTC()
	entries := make([]*models.LeaderboardEntry, 0, len(resp.Points))
	for _, p := range resp.Points {
		accountID := p.AccountInfo.AccountID
		if !types.IsValidAddress(accountID) {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"accountId": accountID,
				"nickname":  p.AccountInfo.Nickname,
			}).Warn("Skipping leaderboard entry with invalid address")
			continue
		}

		entries = append(entries, &models.LeaderboardEntry{
			Address:   types.NormalizeAddress(accountID),
			Nickname:  p.AccountInfo.Nickname,
			Score:     float64(p.Point),
			Rank:      len(entries) + 1,
			FetchedAt: now,
		})
	}

	return entries, nil
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
