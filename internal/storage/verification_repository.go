package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/types"
)

// VerificationRepository reads the verified_wallets table written by the
// wallet verification flow
type VerificationRepository struct {
	db *PostgresDB
}

// NewVerificationRepository creates a new verification repository
func NewVerificationRepository(db *PostgresDB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// FindByAddresses returns every verification whose address matches one of
// addresses case-insensitively, most recent first
func (r *VerificationRepository) FindByAddresses(ctx context.Context, addresses []string) ([]*models.WalletVerification, error) {
	if len(addresses) == 0 {
		return nil, nil
	}

	query := `
		SELECT user_id, wallet_address, username, verified_at
		FROM verified_wallets
		WHERE lower(wallet_address) = ANY($1)
		ORDER BY verified_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, types.NormalizeAddresses(addresses))
	if err != nil {
		return nil, apperrors.NewDatabaseError("find verifications by address", err)
	}
	defer rows.Close()

	var verifications []*models.WalletVerification
	for rows.Next() {
		var v models.WalletVerification
		if err := rows.Scan(&v.UserID, &v.WalletAddress, &v.Username, &v.VerifiedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan verification", err)
		}
		verifications = append(verifications, &v)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate verifications", err)
	}

	return verifications, nil
}

// FindAllByUserID returns every verified wallet of a user, most recent first
func (r *VerificationRepository) FindAllByUserID(ctx context.Context, userID string) ([]*models.WalletVerification, error) {
	query := `
		SELECT user_id, wallet_address, username, verified_at
		FROM verified_wallets
		WHERE user_id = $1
		ORDER BY verified_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find verifications by user", err)
	}

	verifications, err := pgx.CollectRows(rows, scanVerification)
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan verification", err)
	}

	return verifications, nil
}

func scanVerification(row pgx.CollectableRow) (*models.WalletVerification, error) {
	var v models.WalletVerification
	if err := row.Scan(&v.UserID, &v.WalletAddress, &v.Username, &v.VerifiedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// Save stores a verification. The bot never calls it; tests and the
// import tool use it to seed data.
func (r *VerificationRepository) Save(ctx context.Context, v *models.WalletVerification) error {
	query := `
		INSERT INTO verified_wallets (user_id, wallet_address, username, verified_at)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := r.db.Pool().Exec(ctx, query, v.UserID, v.WalletAddress, v.Username, v.VerifiedAt); err != nil {
		return apperrors.NewDatabaseError("save verification", err)
	}
	return nil
}
