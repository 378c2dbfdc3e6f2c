// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/push"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

func newScheduler(t *testing.T, sender push.Sender) *Scheduler {
	t.Helper()
	registry := tenant.NewStatic("app1", map[string]store.Stores{
		"app1": store.NewMemory(),
		"app2": store.NewMemory(),
	})
	s := New(registry, sender, observability.New(),
		logging.New(logging.Config{Quiet: true}), "Asia/Kolkata")
	s.rng = rand.New(rand.NewSource(1))
	return s
}

func TestPlanTimes_CountWindowUniqueness(t *testing.T) {
	s := newScheduler(t, push.NopSender{})
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, s.loc)

	// The plan is random; check the invariants over many draws.
	for i := 0; i < 200; i++ {
		times := s.planTimesLocked(now)

		require.GreaterOrEqual(t, len(times), 1)
		require.LessOrEqual(t, len(times), 3)

		seen := map[time.Time]struct{}{}
		for _, at := range times {
			assert.GreaterOrEqual(t, at.Hour(), windowStartHour)
			assert.Less(t, at.Hour(), windowEndHour)
			assert.Zero(t, at.Second())

			_, dup := seen[at]
			assert.False(t, dup, "minutes are unique")
			seen[at] = struct{}{}
		}

		for j := 1; j < len(times); j++ {
			assert.True(t, times[j].After(times[j-1]), "times are sorted")
		}
	}
}

func TestReplan_SwapsPlanAtomically(t *testing.T) {
	s := newScheduler(t, push.NopSender{})
	// Morning: the whole window is in the future, all times armed.
	s.now = func() time.Time {
		return time.Date(2025, 6, 1, 9, 0, 0, 0, s.loc)
	}

	s.Replan()
	first := s.PlannedTimes()
	require.NotEmpty(t, first)

	s.Replan()
	second := s.PlannedTimes()
	require.NotEmpty(t, second)

	s.mu.Lock()
	armed := len(s.plan.timers)
	s.mu.Unlock()
	assert.Equal(t, len(second), armed, "every future time of the new plan is armed")

	s.Stop()
	assert.Nil(t, s.PlannedTimes())
}

func TestReplan_PastTimesNotArmed(t *testing.T) {
	s := newScheduler(t, push.NopSender{})
	// Late evening: most or all of the window has passed.
	s.now = func() time.Time {
		return time.Date(2025, 6, 1, 23, 30, 0, 0, s.loc)
	}

	s.Replan()

	s.mu.Lock()
	armed := len(s.plan.timers)
	planned := len(s.plan.times)
	s.mu.Unlock()
	assert.Equal(t, 0, armed, "nothing to arm after the window closes")
	assert.GreaterOrEqual(t, planned, 1)
	assert.Empty(t, s.PlannedTimes(), "times that never got a timer are not reported")
	s.Stop()
}

func TestPickMessage_PoolBySlot(t *testing.T) {
	s := newScheduler(t, push.NopSender{})

	for i := 0; i < 50; i++ {
		assert.Contains(t, earlyMessages, s.pickMessage(17))
		assert.Contains(t, earlyMessages, s.pickMessage(18))
		assert.Contains(t, primeMessages, s.pickMessage(19))
		assert.Contains(t, primeMessages, s.pickMessage(20))
		assert.Contains(t, lateMessages, s.pickMessage(21))
		assert.Contains(t, lateMessages, s.pickMessage(22))
	}
}

func TestFire_FansOutAcrossTenants(t *testing.T) {
	sender := push.NewCaptureSender()
	s := newScheduler(t, sender)
	ctx := context.Background()

	app1, err := s.registry.Resolve(ctx, "app1")
	require.NoError(t, err)
	app2, err := s.registry.Resolve(ctx, "app2")
	require.NoError(t, err)

	require.NoError(t, app1.Stores.Tokens.Upsert(ctx, &datatypes.DeviceToken{Token: "a1"}))
	require.NoError(t, app1.Stores.Tokens.Upsert(ctx, &datatypes.DeviceToken{Token: "a2"}))
	require.NoError(t, app2.Stores.Tokens.Upsert(ctx, &datatypes.DeviceToken{Token: "b1"}))
	// Deactivated tokens are skipped.
	require.NoError(t, app1.Stores.Tokens.Upsert(ctx, &datatypes.DeviceToken{Token: "dead"}))
	require.NoError(t, app1.Stores.Tokens.Deactivate(ctx, "dead"))

	s.fire(time.Date(2025, 6, 1, 19, 30, 0, 0, s.loc))

	deliveries := sender.Deliveries()
	require.Len(t, deliveries, 3)
	tokens := []string{deliveries[0].Token, deliveries[1].Token, deliveries[2].Token}
	assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, tokens)
	assert.Contains(t, primeMessages, deliveries[0].Notification.Body)
}
