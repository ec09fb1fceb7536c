// Package metrics exposes Prometheus metrics for reconciliation cycles,
// role mutations and chat commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	// Reconciliation metrics
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalebot_cycles_total",
			Help: "Total number of reconciliation cycles by cycle and outcome",
		},
		[]string{"cycle", "outcome"},
	)

	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whalebot_cycle_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"cycle"},
	)

	RoleActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalebot_role_actions_total",
			Help: "Total number of role grants, revokes and whale record writes",
		},
		[]string{"action"},
	)

	MemberErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalebot_member_errors_total",
			Help: "Per-member failures that were logged and skipped",
		},
		[]string{"cycle"},
	)

	LeaderboardEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "whalebot_leaderboard_entries",
			Help: "Number of entries in the last stored leaderboard snapshot",
		},
	)

	// Leaderboard provider metrics
	LeaderboardFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whalebot_leaderboard_fetch_duration_seconds",
			Help:    "Leaderboard API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LeaderboardFetchErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whalebot_leaderboard_fetch_errors_total",
			Help: "Total number of failed leaderboard fetches",
		},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalebot_commands_total",
			Help: "Total number of chat commands by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// HTTP metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whalebot_http_requests_total",
			Help: "Total number of health server requests",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(RoleActionsTotal)
	prometheus.MustRegister(MemberErrorsTotal)
	prometheus.MustRegister(LeaderboardEntries)
	prometheus.MustRegister(LeaderboardFetchDuration)
	prometheus.MustRegister(LeaderboardFetchErrors)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation for a histogram
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on o
func (t *Timer) ObserveDuration(o prometheus.Observer) {
	o.Observe(t.Duration().Seconds())
}

// ObserveCycle records the duration and outcome of one reconciliation cycle
func ObserveCycle(cycle string, t *Timer, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	CyclesTotal.WithLabelValues(cycle, outcome).Inc()
	t.ObserveDuration(CycleDuration.WithLabelValues(cycle))
}
