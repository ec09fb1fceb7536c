package service

import (
	"context"
	"sync"
	"time"

	"github.com/whale-role-bot/internal/models"
	"github.com/whale-role-bot/internal/types"
)

const reasonCommunity = "community_member"

// CommunityMapping binds a static address collection to a role
type CommunityMapping struct {
	Collection string
	RoleID     string
}

// CommunityReconciler grants community roles to verified members whose wallet
// appears in a mapped address list. It never revokes a community role.
type CommunityReconciler struct {
	directory WalletDirectory
	gateway   RoleGateway
	store     CommunityStore
	events    RoleEventSink
	mappings  []CommunityMapping
	batchSize int
	now       func() time.Time

	mu sync.Mutex
}

// NewCommunityReconciler creates a new community reconciler. events may be nil.
func NewCommunityReconciler(
	directory WalletDirectory,
	gateway RoleGateway,
	store CommunityStore,
	events RoleEventSink,
	mappings []CommunityMapping,
	batchSize int,
) *CommunityReconciler {
	if batchSize <= 0 {
		batchSize = types.DefaultBatchSize
	}

	return &CommunityReconciler{
		directory: directory,
		gateway:   gateway,
		store:     store,
		events:    events,
		mappings:  mappings,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Mappings returns the configured mappings
func (c *CommunityReconciler) Mappings() []CommunityMapping {
	return c.mappings
}

// AssignCommunityRoles runs one grant pass over every mapping and returns the
// number of roles granted. A mapping whose collection fails to load is skipped.
func (c *CommunityReconciler) AssignCommunityRoles(ctx context.Context) (granted int, err error) {
	if !c.mu.TryLock() {
		return 0, skipped(CycleCommunity)
	}
	defer c.mu.Unlock()

	run := newCycleRun(ctx, CycleCommunity, c.now)
	defer func() { run.finish(ctx, c.events, err) }()

	if err = c.gateway.CheckGuild(ctx); err != nil {
		run.logger.WithError(err).Error("Guild not available, skipping run")
		return 0, err
	}

	for _, mapping := range c.mappings {
		if err = ctx.Err(); err != nil {
			return granted, err
		}
		granted += c.assignMapping(ctx, run, mapping)
	}

	run.logger.WithFields(map[string]interface{}{
		"mappings": len(c.mappings),
		"granted":  granted,
	}).Info("Community role assignment completed")

	return granted, nil
}

func (c *CommunityReconciler) assignMapping(ctx context.Context, run *cycleRun, mapping CommunityMapping) int {
	logger := run.logger.WithFields(map[string]interface{}{
		"collection": mapping.Collection,
		"roleId":     mapping.RoleID,
	})

	addresses, err := c.store.ListAddresses(ctx, mapping.Collection)
	if err != nil {
		logger.WithError(err).Error("Failed to load community addresses, skipping mapping")
		return 0
	}

	normalized := types.NormalizeAddresses(addresses)
	index, err := buildAddressIndex(ctx, c.directory, normalized, c.batchSize)
	if err != nil {
		logger.WithError(err).Error("Failed to match community addresses, skipping mapping")
		return 0
	}

	granted := 0
	handled := make(map[string]struct{}, len(index))

	for _, address := range normalized {
		if ctx.Err() != nil {
			break
		}

		verification := index.lookup(address)
		if verification == nil {
			continue
		}
		if _, ok := handled[verification.UserID]; ok {
			continue
		}
		handled[verification.UserID] = struct{}{}

		hasRole, err := c.gateway.HasRole(ctx, verification.UserID, mapping.RoleID)
		if err != nil {
			run.memberError(verification.UserID, "Failed to resolve member", err)
			continue
		}
		if hasRole {
			continue
		}

		if err := c.gateway.GrantRole(ctx, verification.UserID, mapping.RoleID); err != nil {
			run.memberError(verification.UserID, "Failed to grant community role", err)
			continue
		}

		granted++
		run.record(verification.UserID, mapping.RoleID, models.RoleActionGrant, reasonCommunity, address)
		logger.WithFields(map[string]interface{}{
			"userId":  verification.UserID,
			"address": address,
		}).Info("Granted community role")
	}

	logger.WithFields(map[string]interface{}{
		"addresses": len(normalized),
		"verified":  len(index),
		"granted":   granted,
	}).Debug("Community mapping processed")

	return granted
}
