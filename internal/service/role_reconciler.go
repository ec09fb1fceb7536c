// Package service implements the role reconciliation core of the bot.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	apperrors "github.com/whale-role-bot/internal/errors"
	"github.com/whale-role-bot/internal/metrics"
	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/types"
)

// Audit reasons
const (
	reasonRefresh   = "leaderboard_refresh"
	reasonAssign    = "leaderboard_match"
	reasonSync      = "repair"
	reasonOrphaned  = "orphaned_role"
	reasonRoleAdded = "role_added"
	reasonRoleLost  = "role_removed"
)

// RoleReconcilerConfig configures a RoleReconciler
type RoleReconcilerConfig struct {
	WhaleRoleID         string
	LeaderboardLimit    int
	BatchSize           int
	RevokeOrphanedRoles bool
}

// RefreshResult summarizes one refresh cycle
type RefreshResult struct {
	RunID   string `json:"runId"`
	Success bool   `json:"success"`
	Revoked int    `json:"revoked"`
	Fetched int    `json:"fetched"`
	Granted int    `json:"granted"`
}

// SyncResult summarizes one repair pass
type SyncResult struct {
	RunID    string `json:"runId"`
	Holders  int    `json:"holders"`
	Repaired int    `json:"repaired"`
	Orphaned int    `json:"orphaned"`
	Revoked  int    `json:"revoked"`
}

// RoleReconciler keeps the whale role and the whale records consistent
// with the leaderboard snapshot and the verified wallets.
type RoleReconciler struct {
	directory WalletDirectory
	gateway   RoleGateway
	source    LeaderboardSource
	snapshots SnapshotStore
	whales    WhaleStore
	events    RoleEventSink
	cfg       RoleReconcilerConfig
	now       func() time.Time

	// mu is the exclusive-run guard shared by every cycle and role change
	mu sync.Mutex
}

// NewRoleReconciler creates a new role reconciler. events may be nil.
func NewRoleReconciler(
	directory WalletDirectory,
	gateway RoleGateway,
	source LeaderboardSource,
	snapshots SnapshotStore,
	whales WhaleStore,
	events RoleEventSink,
	cfg RoleReconcilerConfig,
) *RoleReconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = types.DefaultBatchSize
	}
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = 30
	}

	return &RoleReconciler{
		directory: directory,
		gateway:   gateway,
		source:    source,
		snapshots: snapshots,
		whales:    whales,
		events:    events,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RefreshLeaderboard clears the roles earned through the outgoing snapshot,
// replaces the snapshot with a fresh fetch and grants roles against it.
// Revocations are not rolled back when the fetch or the replace fails.
func (r *RoleReconciler) RefreshLeaderboard(ctx context.Context) (result *RefreshResult, err error) {
	if !r.mu.TryLock() {
		return nil, skipped(CycleRefresh)
	}
	defer r.mu.Unlock()

	run := newCycleRun(ctx, CycleRefresh, r.now)
	defer func() { run.finish(ctx, r.events, err) }()

	result = &RefreshResult{RunID: run.id}
	run.logger.Info("Starting leaderboard refresh")

	if err = r.checkGuild(ctx, run); err != nil {
		return result, err
	}

	outgoing, err := r.snapshots.List(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load outgoing snapshot: %w", err)
	}

	result.Revoked, err = r.revokeOutgoing(ctx, run, outgoing)
	if err != nil {
		return result, err
	}

	entries, fetchErr := r.source.FetchTop(ctx, r.cfg.LeaderboardLimit)
	if fetchErr != nil || len(entries) == 0 {
		err = apperrors.NewEmptyLeaderboardError(fetchErr)
		run.logger.WithError(err).WithField("revoked", result.Revoked).
			Error("Leaderboard fetch returned nothing, keeping previous snapshot")
		return result, err
	}
	result.Fetched = len(entries)

	if err = r.snapshots.Replace(ctx, entries); err != nil {
		run.logger.WithError(err).Error("Failed to replace leaderboard snapshot")
		return result, fmt.Errorf("failed to replace snapshot: %w", err)
	}

	result.Granted, err = r.assignPass(ctx, run)
	if err != nil {
		return result, err
	}

	result.Success = true
	run.logger.WithFields(map[string]interface{}{
		"revoked": result.Revoked,
		"fetched": result.Fetched,
		"granted": result.Granted,
	}).Info("Leaderboard refresh completed")

	return result, nil
}

// AssignEligibleRoles grants the whale role to every verified wallet in the
// current snapshot and refreshes the whale records of existing holders.
// It returns the number of newly granted roles.
func (r *RoleReconciler) AssignEligibleRoles(ctx context.Context) (granted int, err error) {
	if !r.mu.TryLock() {
		return 0, skipped(CycleAssign)
	}
	defer r.mu.Unlock()

	run := newCycleRun(ctx, CycleAssign, r.now)
	defer func() { run.finish(ctx, r.events, err) }()

	if err = r.checkGuild(ctx, run); err != nil {
		return 0, err
	}

	granted, err = r.assignPass(ctx, run)
	if err != nil {
		return granted, err
	}

	run.logger.WithField("granted", granted).Info("Assign pass completed")
	return granted, nil
}

// SyncAllWhaleRoles repairs the whale records of every current holder.
// Holders without a verified wallet are counted as orphaned and only revoked
// when RevokeOrphanedRoles is set.
func (r *RoleReconciler) SyncAllWhaleRoles(ctx context.Context) (result *SyncResult, err error) {
	if !r.mu.TryLock() {
		return nil, skipped(CycleSync)
	}
	defer r.mu.Unlock()

	run := newCycleRun(ctx, CycleSync, r.now)
	defer func() { run.finish(ctx, r.events, err) }()

	result = &SyncResult{RunID: run.id}

	if err = r.checkGuild(ctx, run); err != nil {
		return result, err
	}

	holders, err := r.gateway.ListHolders(ctx, r.cfg.WhaleRoleID)
	if err != nil {
		return result, fmt.Errorf("failed to list whale role holders: %w", err)
	}
	result.Holders = len(holders)

	entries, err := r.snapshots.List(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load snapshot: %w", err)
	}
	lookup := snapshotLookup(entries)

	for _, userID := range holders {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		verifications, lookupErr := r.directory.FindAllByUserID(ctx, userID)
		if lookupErr != nil {
			run.memberError(userID, "Failed to look up verified wallets", lookupErr)
			continue
		}

		verification, entry, lookupErr := pickWallet(ctx, verifications, lookup)
		if lookupErr != nil {
			run.memberError(userID, "Failed to look up leaderboard entry", lookupErr)
			continue
		}

		if verification == nil {
			result.Orphaned++
			run.logger.WithField("userId", userID).Warn("Whale role holder has no verified wallet")
			if r.cfg.RevokeOrphanedRoles && r.revokeAndForget(ctx, run, userID, "", reasonOrphaned) {
				result.Revoked++
			}
			continue
		}

		address := types.NormalizeAddress(verification.WalletAddress)
		if upsertErr := r.whales.Upsert(ctx, r.newWhaleRecord(verification, entry)); upsertErr != nil {
			run.memberError(userID, "Failed to upsert whale record", upsertErr)
			continue
		}
		run.record(userID, r.cfg.WhaleRoleID, models.RoleActionRecordUpsert, reasonSync, address)
		result.Repaired++
	}

	run.logger.WithFields(map[string]interface{}{
		"holders":  result.Holders,
		"repaired": result.Repaired,
		"orphaned": result.Orphaned,
		"revoked":  result.Revoked,
	}).Info("Whale role sync completed")

	return result, nil
}

// HandleRoleChange keeps the whale record of one member in step with a role
// change observed between cycles. It waits for any running cycle to finish.
func (r *RoleReconciler) HandleRoleChange(ctx context.Context, userID string, oldRoles, newRoles []string) (err error) {
	hadRole := slices.Contains(oldRoles, r.cfg.WhaleRoleID)
	hasRole := slices.Contains(newRoles, r.cfg.WhaleRoleID)
	if hadRole == hasRole {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	run := newCycleRun(ctx, CycleRoleChange, r.now)
	defer func() { run.finish(ctx, r.events, err) }()

	logger := run.logger.WithField("userId", userID)

	// Events can be handled out of order; act only when the member's
	// current state still matches the event.
	holds, err := r.holdsWhaleRole(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve member: %w", err)
	}
	if holds != hasRole {
		logger.WithFields(map[string]interface{}{
			"eventHasRole": hasRole,
			"holdsRole":    holds,
		}).Info("Ignoring stale role change")
		return nil
	}

	if !hasRole {
		if err = r.whales.Delete(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete whale record: %w", err)
		}
		run.record(userID, r.cfg.WhaleRoleID, models.RoleActionRecordDelete, reasonRoleLost, "")
		logger.Info("Whale role removed, whale record deleted")
		return nil
	}

	verifications, err := r.directory.FindAllByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up verified wallets: %w", err)
	}

	verification, entry, err := pickWallet(ctx, verifications, r.snapshots.FindByAddress)
	if err != nil {
		return fmt.Errorf("failed to look up leaderboard entry: %w", err)
	}
	if verification == nil {
		logger.Info("Whale role added to a member without a verified wallet")
		return nil
	}

	address := types.NormalizeAddress(verification.WalletAddress)
	if err = r.whales.Upsert(ctx, r.newWhaleRecord(verification, entry)); err != nil {
		return fmt.Errorf("failed to upsert whale record: %w", err)
	}
	run.record(userID, r.cfg.WhaleRoleID, models.RoleActionRecordUpsert, reasonRoleAdded, address)
	logger.WithField("address", address).Info("Whale role added, whale record created")

	return nil
}

// holdsWhaleRole reports whether a member currently holds the whale role.
// A member who left the guild holds nothing.
func (r *RoleReconciler) holdsWhaleRole(ctx context.Context, userID string) (bool, error) {
	holds, err := r.gateway.HasRole(ctx, userID, r.cfg.WhaleRoleID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return holds, nil
}

// ListWhales returns the current whale records, highest score first
func (r *RoleReconciler) ListWhales(ctx context.Context) ([]*models.WhaleRecord, error) {
	return r.whales.List(ctx)
}

// checkGuild short-circuits a run when the managed guild is unavailable
func (r *RoleReconciler) checkGuild(ctx context.Context, run *cycleRun) error {
	if err := r.gateway.CheckGuild(ctx); err != nil {
		run.logger.WithError(err).Error("Guild not available, skipping run")
		return err
	}
	return nil
}

// revokeOutgoing revokes the role of every holder with any verified wallet in
// the snapshot about to be replaced. It returns the number of revoked roles.
func (r *RoleReconciler) revokeOutgoing(ctx context.Context, run *cycleRun, outgoing []*models.LeaderboardEntry) (int, error) {
	if len(outgoing) == 0 {
		return 0, nil
	}

	holders, err := r.gateway.ListHolders(ctx, r.cfg.WhaleRoleID)
	if err != nil {
		return 0, fmt.Errorf("failed to list whale role holders: %w", err)
	}

	addresses := make([]string, 0, len(outgoing))
	for _, entry := range outgoing {
		addresses = append(addresses, entry.Address)
	}

	matched, err := matchUsers(ctx, r.directory, addresses, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	revoked := 0
	for _, userID := range holders {
		if err := ctx.Err(); err != nil {
			return revoked, err
		}

		address, ok := matched[userID]
		if !ok {
			continue
		}

		if r.revokeAndForget(ctx, run, userID, address, reasonRefresh) {
			revoked++
		}
	}

	return revoked, nil
}

// revokeAndForget revokes the whale role and deletes the whale record.
// It reports whether the role was revoked.
func (r *RoleReconciler) revokeAndForget(ctx context.Context, run *cycleRun, userID, address, reason string) bool {
	if err := r.gateway.RevokeRole(ctx, userID, r.cfg.WhaleRoleID); err != nil {
		run.memberError(userID, "Failed to revoke whale role", err)
		return false
	}
	run.record(userID, r.cfg.WhaleRoleID, models.RoleActionRevoke, reason, address)

	if err := r.whales.Delete(ctx, userID); err != nil {
		run.memberError(userID, "Failed to delete whale record", err)
		return true
	}
	run.record(userID, r.cfg.WhaleRoleID, models.RoleActionRecordDelete, reason, address)

	run.logger.WithFields(map[string]interface{}{
		"userId":  userID,
		"address": address,
		"reason":  reason,
	}).Info("Revoked whale role")

	return true
}

// assignPass grants roles against the current snapshot. Entries are visited in
// rank order and each user is handled once, so the highest ranked entry wins.
func (r *RoleReconciler) assignPass(ctx context.Context, run *cycleRun) (int, error) {
	entries, err := r.snapshots.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	metrics.LeaderboardEntries.Set(float64(len(entries)))

	addresses := make([]string, 0, len(entries))
	for _, entry := range entries {
		addresses = append(addresses, entry.Address)
	}

	index, err := buildAddressIndex(ctx, r.directory, addresses, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	granted := 0
	handled := make(map[string]struct{}, len(index))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return granted, err
		}

		verification := index.lookup(entry.Address)
		if verification == nil {
			continue
		}
		if _, ok := handled[verification.UserID]; ok {
			continue
		}
		handled[verification.UserID] = struct{}{}

		if r.assignOne(ctx, run, verification, entry) {
			granted++
		}
	}

	return granted, nil
}

// assignOne grants the role when missing and always rewrites the whale record.
// It reports whether a role was newly granted.
func (r *RoleReconciler) assignOne(ctx context.Context, run *cycleRun, verification *models.WalletVerification, entry *models.LeaderboardEntry) bool {
	userID := verification.UserID
	address := types.NormalizeAddress(entry.Address)

	hasRole, err := r.gateway.HasRole(ctx, userID, r.cfg.WhaleRoleID)
	if err != nil {
		run.memberError(userID, "Failed to resolve member", err)
		return false
	}

	granted := false
	if !hasRole {
		if err := r.gateway.GrantRole(ctx, userID, r.cfg.WhaleRoleID); err != nil {
			run.memberError(userID, "Failed to grant whale role", err)
			return false
		}
		granted = true
		run.record(userID, r.cfg.WhaleRoleID, models.RoleActionGrant, reasonAssign, address)
		run.logger.WithFields(map[string]interface{}{
			"userId":  userID,
			"address": address,
			"rank":    entry.Rank,
		}).Info("Granted whale role")
	}

	if err := r.whales.Upsert(ctx, r.newWhaleRecord(verification, entry)); err != nil {
		run.memberError(userID, "Failed to upsert whale record", err)
		return granted
	}
	run.record(userID, r.cfg.WhaleRoleID, models.RoleActionRecordUpsert, reasonAssign, address)

	return granted
}

// newWhaleRecord builds a whale record. A nil entry yields zero nickname and score.
func (r *RoleReconciler) newWhaleRecord(verification *models.WalletVerification, entry *models.LeaderboardEntry) *models.WhaleRecord {
	now := r.now().UTC()
	record := &models.WhaleRecord{
		UserID:        verification.UserID,
		WalletAddress: types.NormalizeAddress(verification.WalletAddress),
		Username:      verification.Username,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if entry != nil {
		record.Nickname = entry.Nickname
		record.Score = entry.Score
	}
	return record
}
