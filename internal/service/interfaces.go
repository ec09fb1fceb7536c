package service

import (
	"context"

	"github.com/whale-role-bot/internal/models"
)

// WalletDirectory reads wallet verifications
type WalletDirectory interface {
	// FindByAddresses returns every verification whose address matches one of
	// addresses case-insensitively. Addresses are expected lowercased.
	FindByAddresses(ctx context.Context, addresses []string) ([]*models.WalletVerification, error)
	// FindAllByUserID returns every verified wallet of a user, most recent first
	FindAllByUserID(ctx context.Context, userID string) ([]*models.WalletVerification, error)
}

// RoleGateway reads and mutates role membership in the managed guild
type RoleGateway interface {
	CheckGuild(ctx context.Context) error
	HasRole(ctx context.Context, userID, roleID string) (bool, error)
	GrantRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	ListHolders(ctx context.Context, roleID string) ([]string, error)
}

// LeaderboardSource fetches the remote ranking
type LeaderboardSource interface {
	FetchTop(ctx context.Context, n int) ([]*models.LeaderboardEntry, error)
}

// SnapshotStore persists the latest leaderboard fetch
type SnapshotStore interface {
	List(ctx context.Context) ([]*models.LeaderboardEntry, error)
	// Replace swaps the whole snapshot in one transaction
	Replace(ctx context.Context, entries []*models.LeaderboardEntry) error
	// FindByAddress returns the entry for a lowercased address, or nil if absent
	FindByAddress(ctx context.Context, address string) (*models.LeaderboardEntry, error)
}

// WhaleStore persists whale records keyed by user id
type WhaleStore interface {
	Upsert(ctx context.Context, record *models.WhaleRecord) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*models.WhaleRecord, error)
}

// CommunityStore reads static community address lists
type CommunityStore interface {
	ListAddresses(ctx context.Context, collection string) ([]string, error)
}

// RoleEventSink records role audit events
type RoleEventSink interface {
	RecordRoleEvents(ctx context.Context, events []*models.RoleEvent) error
}
