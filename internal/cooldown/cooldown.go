// Package cooldown implements per-user, per-command cooldown windows.
package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/whale-role-bot/internal/types"
)

// Gate tracks when a user may run a command again
type Gate interface {
	IsOnCooldown(ctx context.Context, userID string, command types.CommandType) (bool, error)
	Remaining(ctx context.Context, userID string, command types.CommandType) (time.Duration, error)
	Set(ctx context.Context, userID string, command types.CommandType) error
}

// key builds the storage key for a user and command
func key(userID string, command types.CommandType) string {
	return fmt.Sprintf("%s-%s", userID, command)
}

// FormatRemaining renders d as "M minutes and S seconds", truncating partial seconds
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d minutes and %d seconds", minutes, seconds)
}
