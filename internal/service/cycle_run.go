package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/logging"
	"github.com/whale-role-bot/internal/metrics"
	"github.com/whale-role-bot/internal/models"
)

// Cycle names used in logs, metrics and audit events
const (
	CycleRefresh    = "refresh"
	CycleAssign     = "assign"
	CycleSync       = "sync"
	CycleRoleChange = "role_change"
	CycleCommunity  = "community"
)

const eventFlushTimeout = 10 * time.Second

// cycleRun carries the per-run id, logger and pending audit events
type cycleRun struct {
	id     string
	cycle  string
	logger *logging.Logger
	timer  *metrics.Timer
	events []*models.RoleEvent
	now    func() time.Time
}

func newCycleRun(ctx context.Context, cycle string, now func() time.Time) *cycleRun {
	id := uuid.NewString()
	return &cycleRun{
		id:    id,
		cycle: cycle,
		logger: logging.FromContext(ctx).WithFields(map[string]interface{}{
			"runId": id,
			"cycle": cycle,
		}),
		timer: metrics.NewTimer(),
		now:   now,
	}
}

// record queues an audit event and counts the action
func (r *cycleRun) record(userID, roleID string, action models.RoleAction, reason, address string) {
	metrics.RoleActionsTotal.WithLabelValues(string(action)).Inc()
	r.events = append(r.events, &models.RoleEvent{
		EventID:    uuid.NewString(),
		RunID:      r.id,
		UserID:     userID,
		RoleID:     roleID,
		Action:     action,
		Reason:     reason,
		Address:    address,
		OccurredAt: r.now().UTC(),
	})
}

// memberError logs a per-member failure that does not abort the run.
// Members that left the guild are expected and logged as warnings.
func (r *cycleRun) memberError(userID, message string, err error) {
	metrics.MemberErrorsTotal.WithLabelValues(r.cycle).Inc()

	logger := r.logger.WithField("userId", userID).WithError(err)
	if apperrors.IsNotFound(err) {
		logger.Warn(message)
		return
	}
	logger.Error(message)
}

// finish observes the run and flushes its audit events. A failed flush is logged only.
func (r *cycleRun) finish(ctx context.Context, sink RoleEventSink, err error) {
	metrics.ObserveCycle(r.cycle, r.timer, err)

	if sink == nil || len(r.events) == 0 {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventFlushTimeout)
	defer cancel()

	if flushErr := sink.RecordRoleEvents(flushCtx, r.events); flushErr != nil {
		r.logger.WithError(flushErr).WithField("events", len(r.events)).Warn("Failed to record role events")
	}
}

// skipped counts a cycle rejected by the exclusive-run guard
func skipped(cycle string) error {
	metrics.CyclesTotal.WithLabelValues(cycle, metrics.OutcomeSkipped).Inc()
	return apperrors.ErrCycleInProgress
}
