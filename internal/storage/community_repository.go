package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/types"
)

const communityTablePrefix = "community_"

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)

// CommunityRepository reads and seeds the static community address lists.
// Every collection lives in its own table named community_<collection>.
type CommunityRepository struct {
	db *PostgresDB
}

// NewCommunityRepository creates a new community repository
func NewCommunityRepository(db *PostgresDB) *CommunityRepository {
	return &CommunityRepository{db: db}
}

// communityTable returns the quoted table name for a collection
func communityTable(collection string) (string, error) {
	if !collectionNamePattern.MatchString(collection) {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	return pgx.Identifier{communityTablePrefix + collection}.Sanitize(), nil
}

// EnsureCollection creates the collection table and its lookup index.
// Objects that already exist are left alone.
func (r *CommunityRepository) EnsureCollection(ctx context.Context, collection string) error {
	table, err := communityTable(collection)
	if err != nil {
		return err
	}
	index := pgx.Identifier{communityTablePrefix + collection + "_lower_address_idx"}.Sanitize()

	statements := []string{
		fmt.Sprintf(`CREATE TABLE %s (address TEXT PRIMARY KEY, added_at TIMESTAMPTZ NOT NULL DEFAULT now())`, table),
		fmt.Sprintf(`CREATE INDEX %s ON %s (lower(address))`, index, table),
	}

	for _, stmt := range statements {
		if _, err := r.db.Pool().Exec(ctx, stmt); err != nil && !apperrors.IsAlreadyExists(err) {
			return apperrors.NewDatabaseError("ensure community collection", err)
		}
	}

	return nil
}

// ListAddresses returns every address of a collection, lowercased
func (r *CommunityRepository) ListAddresses(ctx context.Context, collection string) ([]string, error) {
	table, err := communityTable(collection)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Pool().Query(ctx, fmt.Sprintf(`SELECT lower(address) FROM %s ORDER BY added_at, address`, table))
	if err != nil {
		return nil, apperrors.NewDatabaseError("list community addresses", err)
	}

	addresses, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan community addresses", err)
	}

	return addresses, nil
}

// AddAddresses inserts addresses into a collection, skipping ones already present.
// It returns the number of new rows.
func (r *CommunityRepository) AddAddresses(ctx context.Context, collection string, addresses []string) (int, error) {
	table, err := communityTable(collection)
	if err != nil {
		return 0, err
	}

	normalized := types.NormalizeAddresses(addresses)
	if len(normalized) == 0 {
		return 0, nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`, table)

	inserted := 0
	for _, chunk := range types.Chunk(normalized, types.DefaultBatchSize*10) {
		batch := &pgx.Batch{}
		for _, address := range chunk {
			batch.Queue(query, address)
		}

		results := r.db.Pool().SendBatch(ctx, batch)
		for range chunk {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return inserted, apperrors.NewDatabaseError("add community addresses", err)
			}
			inserted += int(tag.RowsAffected())
		}
		if err := results.Close(); err != nil {
			return inserted, apperrors.NewDatabaseError("add community addresses", err)
		}
	}

	return inserted, nil
}
