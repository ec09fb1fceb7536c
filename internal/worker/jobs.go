package worker

import (
	"context"

	"github.com/whale-role-bot/internal/config"
	"github.com/whale-role-bot/internal/service"
)

// Job names
const (
	JobAssign    = "assign_roles"
	JobRefresh   = "refresh_leaderboard"
	JobSync      = "sync_roles"
	JobCommunity = "community_roles"
)

// RoleCycles is the part of the role reconciler the scheduler drives
type RoleCycles interface {
	AssignEligibleRoles(ctx context.Context) (int, error)
	RefreshLeaderboard(ctx context.Context) (*service.RefreshResult, error)
	SyncAllWhaleRoles(ctx context.Context) (*service.SyncResult, error)
}

// CommunityCycles is the part of the community reconciler the scheduler drives
type CommunityCycles interface {
	AssignCommunityRoles(ctx context.Context) (int, error)
}

// ReconcileJobs builds the periodic jobs. community may be nil when no
// community mapping is configured.
func ReconcileJobs(schedule config.ScheduleConfig, roles RoleCycles, community CommunityCycles) []Job {
	jobs := []Job{
		{
			Name: JobAssign,
			Spec: schedule.AssignSpec,
			Run: func(ctx context.Context) error {
				_, err := roles.AssignEligibleRoles(ctx)
				return err
			},
		},
		{
			Name: JobRefresh,
			Spec: schedule.RefreshSpec,
			Run: func(ctx context.Context) error {
				_, err := roles.RefreshLeaderboard(ctx)
				return err
			},
		},
		{
			Name: JobSync,
			Spec: schedule.SyncSpec,
			Run: func(ctx context.Context) error {
				_, err := roles.SyncAllWhaleRoles(ctx)
				return err
			},
		},
	}

	if community != nil {
		jobs = append(jobs, Job{
			Name: JobCommunity,
			Spec: schedule.CommunitySpec,
			Run: func(ctx context.Context) error {
				_, err := community.AssignCommunityRoles(ctx)
				return err
			},
		})
	}

	return jobs
}
