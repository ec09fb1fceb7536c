package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whale-role-bot/internal/models"
)

func TestPostgresDB_Ping(t *testing.T) {
	db := setupPostgres(t)

	require.NoError(t, db.Ping(testContext(t)))
	assert.NotNil(t, db.Pool())
}

func TestVerificationRepository(t *testing.T) {
	db := setupPostgres(t)
	ctx := testContext(t)
	repo := NewVerificationRepository(db)

	older := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	newer := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	require.NoError(t, repo.Save(ctx, &models.WalletVerification{
		UserID: "user-a", WalletAddress: "0x00000000000000000000000000000000000000AA", Username: "alice", VerifiedAt: older,
	}))
	require.NoError(t, repo.Save(ctx, &models.WalletVerification{
		UserID: "user-a", WalletAddress: "0x00000000000000000000000000000000000000Ab", Username: "alice", VerifiedAt: newer,
	}))
	require.NoError(t, repo.Save(ctx, &models.WalletVerification{
		UserID: "user-b", WalletAddress: "0x00000000000000000000000000000000000000bb", Username: "bob", VerifiedAt: newer,
	}))

	t.Run("addresses match case-insensitively", func(t *testing.T) {
		found, err := repo.FindByAddresses(ctx, []string{
			"0x00000000000000000000000000000000000000aa",
			"0x00000000000000000000000000000000000000BB",
		})
		require.NoError(t, err)
		require.Len(t, found, 2)

		users := []string{found[0].UserID, found[1].UserID}
		assert.ElementsMatch(t, []string{"user-a", "user-b"}, users)
	})

	t.Run("empty input", func(t *testing.T) {
		found, err := repo.FindByAddresses(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("user lookup returns every wallet, most recent first", func(t *testing.T) {
		found, err := repo.FindAllByUserID(ctx, "user-a")
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "0x00000000000000000000000000000000000000Ab", found[0].WalletAddress)
		assert.Equal(t, "0x00000000000000000000000000000000000000AA", found[1].WalletAddress)
	})

	t.Run("unknown user", func(t *testing.T) {
		found, err := repo.FindAllByUserID(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestLeaderboardRepository_Replace(t *testing.T) {
	db := setupPostgres(t)
	ctx := testContext(t)
	repo := NewLeaderboardRepository(db)

	require.NoError(t, repo.Replace(ctx, []*models.LeaderboardEntry{
		{Address: "0x00000000000000000000000000000000000000AA", Nickname: "alice", Score: 10},
		{Address: "0x00000000000000000000000000000000000000bb", Nickname: "bob", Score: 5},
	}))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", entries[0].Address)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 2, entries[1].Rank)
	assert.False(t, entries[0].FetchedAt.IsZero())

	require.NoError(t, repo.Replace(ctx, []*models.LeaderboardEntry{
		{Address: "0x00000000000000000000000000000000000000cc", Nickname: "carol", Score: 99, Rank: 1},
	}))

	entries, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "carol", entries[0].Nickname)

	found, err := repo.FindByAddress(ctx, "0x00000000000000000000000000000000000000CC")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, float64(99), found.Score)

	missing, err := repo.FindByAddress(ctx, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWhaleRepository(t *testing.T) {
	db := setupPostgres(t)
	ctx := testContext(t)
	repo := NewWhaleRepository(db)

	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	require.NoError(t, repo.Upsert(ctx, &models.WhaleRecord{
		UserID: "user-a", WalletAddress: "0xaa", Nickname: "alice", Score: 1, CreatedAt: created, UpdatedAt: created,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.WhaleRecord{
		UserID: "user-b", WalletAddress: "0xbb", Nickname: "bob", Score: 50,
	}))

	later := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Upsert(ctx, &models.WhaleRecord{
		UserID: "user-a", WalletAddress: "0xaa", Nickname: "alice2", Score: 100, CreatedAt: later, UpdatedAt: later,
	}))

	records, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "user-a", records[0].UserID)
	assert.Equal(t, "alice2", records[0].Nickname)
	assert.True(t, records[0].CreatedAt.Equal(created), "created_at must survive upserts")
	assert.True(t, records[0].UpdatedAt.Equal(later))

	require.NoError(t, repo.Delete(ctx, "user-a"))
	require.NoError(t, repo.Delete(ctx, "user-a"))

	records, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "user-b", records[0].UserID)
}

func TestCommunityRepository(t *testing.T) {
	db := setupPostgres(t)
	ctx := testContext(t)
	repo := NewCommunityRepository(db)

	_, err := db.Pool().Exec(ctx, `DROP TABLE IF EXISTS community_storage_test`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = db.Pool().Exec(testContext(t), `DROP TABLE IF EXISTS community_storage_test`) })

	require.NoError(t, repo.EnsureCollection(ctx, "storage_test"))
	// Second call hits "already exists" and still succeeds
	require.NoError(t, repo.EnsureCollection(ctx, "storage_test"))

	inserted, err := repo.AddAddresses(ctx, "storage_test", []string{
		"0x00000000000000000000000000000000000000AA",
		"0x00000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000bb",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	inserted, err = repo.AddAddresses(ctx, "storage_test", []string{"0x00000000000000000000000000000000000000bb"})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	addresses, err := repo.ListAddresses(ctx, "storage_test")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"0x00000000000000000000000000000000000000aa",
		"0x00000000000000000000000000000000000000bb",
	}, addresses)
}
