package storage

import (
	"context"
	"fmt"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/models"
)

// RoleEventRepository appends role audit events to ClickHouse
type RoleEventRepository struct {
	db *ClickHouseDB
}

// NewRoleEventRepository creates a new role event repository
func NewRoleEventRepository(db *ClickHouseDB) *RoleEventRepository {
	return &RoleEventRepository{db: db}
}

// RecordRoleEvents inserts events in one batch
func (r *RoleEventRepository) RecordRoleEvents(ctx context.Context, events []*models.RoleEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO role_events (event_id, run_id, user_id, role_id, action, reason, address, occurred_at)
	`)
	if err != nil {
		return apperrors.NewDatabaseError("prepare role event batch", err)
	}

	for _, event := range events {
		if err := batch.Append(
			event.EventID,
			event.RunID,
			event.UserID,
			event.RoleID,
			string(event.Action),
			event.Reason,
			event.Address,
			event.OccurredAt,
		); err != nil {
			_ = batch.Abort()
			return apperrors.NewDatabaseError("append role event", err)
		}
	}

	if err := batch.Send(); err != nil {
		return apperrors.NewDatabaseError("send role event batch", err)
	}

	return nil
}

// CountByAction returns how many events of each action a run produced
func (r *RoleEventRepository) CountByAction(ctx context.Context, runID string) (map[models.RoleAction]uint64, error) {
	rows, err := r.db.Conn().Query(ctx, `
		SELECT action, count() AS n
		FROM role_events
		WHERE run_id = ?
		GROUP BY action
	`, runID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("count role events", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[models.RoleAction]uint64)
	for rows.Next() {
		var (
			action string
			n      uint64
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("failed to scan role event count: %w", err)
		}
		counts[models.RoleAction(action)] = n
	}

	return counts, rows.Err()
}
