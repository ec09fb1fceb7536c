package storage

import (
	"context"
	"time"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/models"
)

// WhaleRepository persists whale records keyed by Discord user id
type WhaleRepository struct {
	db *PostgresDB
}

// NewWhaleRepository creates a new whale repository
func NewWhaleRepository(db *PostgresDB) *WhaleRepository {
	return &WhaleRepository{db: db}
}

// Upsert inserts or rewrites a record. created_at survives updates.
func (r *WhaleRepository) Upsert(ctx context.Context, record *models.WhaleRecord) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	query := `
		INSERT INTO whale_records (discord_user_id, wallet_address, username, nickname, score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (discord_user_id) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			username = EXCLUDED.username,
			nickname = EXCLUDED.nickname,
			score = EXCLUDED.score,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		record.UserID,
		record.WalletAddress,
		record.Username,
		record.Nickname,
		record.Score,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewDatabaseError("upsert whale record", err)
	}

	return nil
}

// Delete removes a user's record. Deleting a missing record is not an error.
func (r *WhaleRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM whale_records WHERE discord_user_id = $1`, userID); err != nil {
		return apperrors.NewDatabaseError("delete whale record", err)
	}
	return nil
}

// List returns every record, highest score first
func (r *WhaleRepository) List(ctx context.Context) ([]*models.WhaleRecord, error) {
	query := `
		SELECT discord_user_id, wallet_address, username, nickname, score, created_at, updated_at
		FROM whale_records
		ORDER BY score DESC, discord_user_id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list whale records", err)
	}
	defer rows.Close()

	var records []*models.WhaleRecord
	for rows.Next() {
		var w models.WhaleRecord
		if err := rows.Scan(
			&w.UserID,
			&w.WalletAddress,
			&w.Username,
			&w.Nickname,
			&w.Score,
			&w.CreatedAt,
			&w.UpdatedAt,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan whale record", err)
		}
		records = append(records, &w)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate whale records", err)
	}

	return records, nil
}
