package cooldown

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/whale-role-bot/internal/types"
)

// MemoryGate keeps cooldowns in process memory. Expired entries are removed
// by a timer; lookups compare against the clock and never trust the timer.
type MemoryGate struct {
	window  time.Duration
	entries *xsync.Map[string, time.Time]
	now     func() time.Time
}

// NewMemoryGate creates an in-memory gate with the given window
func NewMemoryGate(window time.Duration) *MemoryGate {
	return &MemoryGate{
		window:  window,
		entries: xsync.NewMap[string, time.Time](),
		now:     time.Now,
	}
}

// IsOnCooldown reports whether the user must still wait
func (g *MemoryGate) IsOnCooldown(ctx context.Context, userID string, command types.CommandType) (bool, error) {
	remaining, err := g.Remaining(ctx, userID, command)
	return remaining > 0, err
}

// Remaining returns how long the user must still wait, or zero
func (g *MemoryGate) Remaining(ctx context.Context, userID string, command types.CommandType) (time.Duration, error) {
	expiresAt, ok := g.entries.Load(key(userID, command))
	if !ok {
		return 0, nil
	}

	remaining := expiresAt.Sub(g.now())
	if remaining <= 0 {
		return 0, nil
	}
	return remaining, nil
}

// Set starts a new window for the user and command
func (g *MemoryGate) Set(ctx context.Context, userID string, command types.CommandType) error {
	k := key(userID, command)
	expiresAt := g.now().Add(g.window)
	g.entries.Store(k, expiresAt)

	time.AfterFunc(g.window, func() {
		g.entries.Compute(k, func(current time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
			// A newer Set owns the entry now
			if !loaded || !current.Equal(expiresAt) {
				return current, xsync.CancelOp
			}
			return current, xsync.DeleteOp
		})
	})

	return nil
}

// Len returns the number of tracked entries
func (g *MemoryGate) Len() int {
	return g.entries.Size()
}
