package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/types"
)

var leaderboardColumns = []string{"address", "nickname", "point", "rank", "fetched_at"}

// LeaderboardRepository persists the latest leaderboard snapshot
type LeaderboardRepository struct {
	db *PostgresDB
}

// NewLeaderboardRepository creates a new leaderboard repository
func NewLeaderboardRepository(db *PostgresDB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// List returns the snapshot in rank order
func (r *LeaderboardRepository) List(ctx context.Context) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT address, nickname, point, rank, fetched_at
		FROM leaderboard
		ORDER BY rank ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list leaderboard", err)
	}
	defer rows.Close()

	var entries []*models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Address, &e.Nickname, &e.Score, &e.Rank, &e.FetchedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan leaderboard entry", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate leaderboard", err)
	}

	return entries, nil
}

// Replace deletes the previous snapshot and copies entries in, in one transaction.
// Entries without a rank are ranked by position.
func (r *LeaderboardRepository) Replace(ctx context.Context, entries []*models.LeaderboardEntry) error {
	now := time.Now().UTC()

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM leaderboard`); err != nil {
			return err
		}

		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"leaderboard"},
			leaderboardColumns,
			pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
				e := entries[i]
				rank := e.Rank
				if rank <= 0 {
					rank = i + 1
				}
				fetchedAt := e.FetchedAt
				if fetchedAt.IsZero() {
					fetchedAt = now
				}
				return []any{types.NormalizeAddress(e.Address), e.Nickname, e.Score, rank, fetchedAt}, nil
			}),
		)
		return err
	})
	if err != nil {
		return apperrors.NewDatabaseError("replace leaderboard", err)
	}

	return nil
}

// FindByAddress returns the best ranked entry for an address, or nil
func (r *LeaderboardRepository) FindByAddress(ctx context.Context, address string) (*models.LeaderboardEntry, error) {
	query := `
		SELECT address, nickname, point, rank, fetched_at
		FROM leaderboard
		WHERE address = $1
		ORDER BY rank ASC
		LIMIT 1
	`

	var e models.LeaderboardEntry
	err := r.db.Pool().QueryRow(ctx, query, types.NormalizeAddress(address)).Scan(
		&e.Address,
		&e.Nickname,
		&e.Score,
		&e.Rank,
		&e.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("find leaderboard entry", err)
	}

	return &e, nil
}
