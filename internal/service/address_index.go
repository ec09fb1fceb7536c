package service

import (
	"context"
	"fmt"

	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/types"
)

// addressIndex maps a lowercased wallet address to its verification.
// It is built once per cycle and never outlives it.
type addressIndex map[string]*models.WalletVerification

// buildAddressIndex resolves addresses against the directory in batches.
// When several verifications share an address the most recently verified one is kept.
func buildAddressIndex(ctx context.Context, dir WalletDirectory, addresses []string, batchSize int) (addressIndex, error) {
	normalized := types.NormalizeAddresses(addresses)
	index := make(addressIndex, len(normalized))

	for _, batch := range types.Chunk(normalized, batchSize) {
		verifications, err := dir.FindByAddresses(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to match %d addresses: %w", len(batch), err)
		}
		index.add(verifications)
	}

	return index, nil
}

func (idx addressIndex) add(verifications []*models.WalletVerification) {
	for _, v := range verifications {
		if v == nil {
			continue
		}
		key := types.NormalizeAddress(v.WalletAddress)
		if current, ok := idx[key]; ok && !v.VerifiedAt.After(current.VerifiedAt) {
			continue
		}
		idx[key] = v
	}
}

// lookup finds the verification for an address in any case
func (idx addressIndex) lookup(address string) *models.WalletVerification {
	return idx[types.NormalizeAddress(address)]
}

// matchUsers resolves addresses against the directory in batches and returns
// every user holding a verification for one of them, mapped to the matched
// address. Unlike buildAddressIndex it keeps all users sharing an address.
func matchUsers(ctx context.Context, dir WalletDirectory, addresses []string, batchSize int) (map[string]string, error) {
	users := make(map[string]string)

	for _, batch := range types.Chunk(types.NormalizeAddresses(addresses), batchSize) {
		verifications, err := dir.FindByAddresses(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to match %d addresses: %w", len(batch), err)
		}
		for _, v := range verifications {
			if v == nil {
				continue
			}
			if _, ok := users[v.UserID]; !ok {
				users[v.UserID] = types.NormalizeAddress(v.WalletAddress)
			}
		}
	}

	return users, nil
}

// rankedLookup finds the leaderboard entry of a lowercased address, or nil
type rankedLookup func(ctx context.Context, address string) (*models.LeaderboardEntry, error)

// snapshotLookup indexes a snapshot by address, keeping the best rank
func snapshotLookup(entries []*models.LeaderboardEntry) rankedLookup {
	byAddress := make(map[string]*models.LeaderboardEntry, len(entries))
	for _, e := range entries {
		key := types.NormalizeAddress(e.Address)
		if current, ok := byAddress[key]; ok && current.Rank <= e.Rank {
			continue
		}
		byAddress[key] = e
	}
	return func(_ context.Context, address string) (*models.LeaderboardEntry, error) {
		return byAddress[address], nil
	}
}

// pickWallet chooses which of a user's verifications backs their whale record:
// the one whose address ranks best in the snapshot, else the most recent one.
// It returns nil when the user has no verification.
func pickWallet(ctx context.Context, verifications []*models.WalletVerification, lookup rankedLookup) (*models.WalletVerification, *models.LeaderboardEntry, error) {
	var (
		latest    *models.WalletVerification
		ranked    *models.WalletVerification
		bestEntry *models.LeaderboardEntry
	)

	for _, v := range verifications {
		if v == nil {
			continue
		}
		if latest == nil || v.VerifiedAt.After(latest.VerifiedAt) {
			latest = v
		}

		entry, err := lookup(ctx, types.NormalizeAddress(v.WalletAddress))
		if err != nil {
			return nil, nil, err
		}
		if entry != nil && (bestEntry == nil || entry.Rank < bestEntry.Rank) {
			ranked, bestEntry = v, entry
		}
	}

	if ranked != nil {
		return ranked, bestEntry, nil
	}
	return latest, nil, nil
}
