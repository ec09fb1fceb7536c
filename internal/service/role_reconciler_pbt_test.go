package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestAssignPassProperties checks that one assign pass leaves every verified,
// ranked member holding the role with a matching whale record, and that a
// second pass grants nothing.
func TestAssignPassProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("verified entries end up granted and recorded", prop.ForAll(
		func(verified []bool, holding []bool) bool {
			ctx := context.Background()
			f := newReconcilerFixture(RoleReconcilerConfig{})

			for i := range verified {
				address := fmt.Sprintf("0x%040X", i+1)
				f.snaps.entries = append(f.snaps.entries, entry(address, fmt.Sprintf("n%d", i), float64(100-i), i+1))

				userID := fmt.Sprintf("user-%d", i)
				f.gw.members[userID] = true
				if i < len(holding) && holding[i] {
					f.gw.give(userID, whaleRole)
				}
				if verified[i] {
					f.verify(userID, fmt.Sprintf("0x%040x", i+1), fixedNow)
				}
			}

			if _, err := f.r.AssignEligibleRoles(ctx); err != nil {
				return false
			}

			for i, ok := range verified {
				if !ok {
					continue
				}
				userID := fmt.Sprintf("user-%d", i)
				record, exists := f.whales.records[userID]
				if !f.gw.holds(userID, whaleRole) || !exists {
					return false
				}
				if record.Score != float64(100-i) || record.Nickname != fmt.Sprintf("n%d", i) {
					return false
				}
			}

			second, err := f.r.AssignEligibleRoles(ctx)
			return err == nil && second == 0
		},
		gen.SliceOfN(20, gen.Bool()),
		gen.SliceOf(gen.Bool()),
	))

	properties.Property("unverified entries never gain a record", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			f := newReconcilerFixture(RoleReconcilerConfig{})
			for i := 0; i < n; i++ {
				f.snaps.entries = append(f.snaps.entries, entry(fmt.Sprintf("0x%040x", i+1), "anon", 1, i+1))
			}

			granted, err := f.r.AssignEligibleRoles(ctx)
			return err == nil && granted == 0 && len(f.whales.records) == 0
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
