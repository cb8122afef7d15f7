package subscription_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shoplane/shoplane/pkg/subscription"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	ptr := func(t time.Time) *time.Time { return &t }

	t.Run("expired one day past period end without grace", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: now.AddDate(0, 0, -1),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusExpired, snap.Status)
		assert.True(t, snap.IsExpired)
		assert.Equal(t, 0, snap.DaysRemaining)
		assert.True(t, snap.RequiresPayment)
	})

	t.Run("grace period one day past period end", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:            subscription.StatusActive,
			CurrentPeriodEnd:  now.AddDate(0, 0, -1),
			GracePeriodEndsAt: ptr(now.AddDate(0, 0, 3)),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusGrace, snap.Status)
		assert.True(t, snap.IsGracePeriod)
		assert.False(t, snap.IsExpired)
		assert.Equal(t, 3, snap.DaysRemaining)
		assert.True(t, snap.RequiresPayment)
	})

	t.Run("active well before period end", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: now.AddDate(0, 0, 20),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusActive, snap.Status)
		assert.Equal(t, 20, snap.DaysRemaining)
		assert.False(t, snap.IsExpiringSoon)
		assert.False(t, snap.RequiresPayment)
	})

	t.Run("expiring soon inside the seven day window", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: now.AddDate(0, 0, 7),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusActive, snap.Status)
		assert.Equal(t, 7, snap.DaysRemaining)
		assert.True(t, snap.IsExpiringSoon)
	})

	t.Run("partial days round up", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: now.Add(36 * time.Hour),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, 2, snap.DaysRemaining)
	})

	t.Run("period end boundary is still active", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: now,
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusActive, snap.Status)
		assert.Equal(t, 0, snap.DaysRemaining)
		assert.False(t, snap.IsExpiringSoon)
	})

	t.Run("grace end boundary is still grace", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:            subscription.StatusActive,
			CurrentPeriodEnd:  now.AddDate(0, 0, -2),
			GracePeriodEndsAt: ptr(now),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusGrace, snap.Status)
	})

	t.Run("stored trialing status is authoritative", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:      subscription.StatusTrialing,
			TrialEndsAt: ptr(now.AddDate(0, 0, 5)),
			// A period end in the past must not matter for trials.
			CurrentPeriodEnd: now.AddDate(0, 0, -30),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusTrialing, snap.Status)
		assert.Equal(t, 5, snap.DaysRemaining)
		assert.False(t, snap.RequiresPayment)
	})

	t.Run("stored cancelled status is authoritative", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusCancelled,
			CurrentPeriodEnd: now.AddDate(0, 0, 30),
		}
		snap := subscription.Resolve(sub, now)
		assert.Equal(t, subscription.StatusCancelled, snap.Status)
		assert.False(t, snap.RequiresPayment)
	})

	t.Run("stored expired status requires payment", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{Status: subscription.StatusExpired}
		snap := subscription.Resolve(sub, now)
		assert.True(t, snap.IsExpired)
		assert.True(t, snap.RequiresPayment)
	})

	t.Run("equal inputs produce equal outputs", func(t *testing.T) {
		t.Parallel()

		sub := &subscription.Subscription{
			Status:           subscription.StatusActive,
			CurrentPeriodEnd: now.AddDate(0, 0, 3),
		}
		first := subscription.Resolve(sub, now)
		for range 10 {
			assert.Equal(t, first, subscription.Resolve(sub, now))
		}
	})
}
