package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplane/shoplane/pkg/subscription"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()

	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func newSubscriptionService(t *testing.T, now time.Time) (*subscription.Service, *subscription.MemoryStore) {
	t.Helper()

	store := subscription.NewMemoryStore()
	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewMemorySource(
		subscription.Plan{
			ID:          "growth",
			Name:        "Growth",
			Price:       subscription.Money{Amount: 2900, Currency: "USD"},
			CycleMonths: 1,
			TrialDays:   14,
			GraceDays:   3,
			Public:      true,
			Features: map[string]subscription.FeatureValue{
				"products":      subscription.NumberFeature(500),
				"custom_domain": subscription.BoolFeature(true),
			},
		},
		subscription.Plan{
			ID:     "free",
			Name:   "Free",
			Public: true,
			Features: map[string]subscription.FeatureValue{
				"products": subscription.NumberFeature(10),
			},
		},
	))
	require.NoError(t, err)

	svc := subscription.NewService(store, catalog,
		subscription.WithClock(func() time.Time { return now }))
	return svc, store
}

func TestService_Subscribe(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2025-06-15T12:00:00Z")

	t.Run("paid plan requires payment until first checkout", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		tenantID := uuid.New()

		sub, err := svc.Subscribe(context.Background(), tenantID, "growth")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)

		// The billing period is empty, so the moment after signup the
		// subscription demands its first checkout.
		snap := subscription.Resolve(sub, now.Add(time.Minute))
		assert.True(t, snap.RequiresPayment)
		assert.Equal(t, 0, snap.DaysRemaining)
	})

	t.Run("free plan activates immediately", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		tenantID := uuid.New()

		_, err := svc.Subscribe(context.Background(), tenantID, "free")
		require.NoError(t, err)

		_, snap, err := svc.Current(context.Background(), tenantID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, snap.Status)
		assert.False(t, snap.RequiresPayment)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		_, err := svc.Subscribe(context.Background(), uuid.New(), "enterprise")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("one live subscription per tenant", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		tenantID := uuid.New()

		_, err := svc.Subscribe(context.Background(), tenantID, "growth")
		require.NoError(t, err)
		_, err = svc.Subscribe(context.Background(), tenantID, "free")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionAlreadyExists)
	})

	t.Run("resubscribing after expiry inserts a new record", func(t *testing.T) {
		t.Parallel()

		svc, store := newSubscriptionService(t, now)
		tenantID := uuid.New()

		old, err := svc.Subscribe(context.Background(), tenantID, "growth")
		require.NoError(t, err)

		// The old record goes terminally expired, then the tenant signs
		// up again.
		old.Status = subscription.StatusExpired
		require.NoError(t, store.Update(context.Background(), old))

		fresh, err := svc.Subscribe(context.Background(), tenantID, "growth")
		require.NoError(t, err)
		assert.NotEqual(t, old.ID, fresh.ID)

		// History survives.
		kept, err := store.Get(context.Background(), old.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, kept.Status)
	})
}

func TestService_StartTrial(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2025-06-15T12:00:00Z")

	t.Run("trial runs for the plan's trial days", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		tenantID := uuid.New()

		sub, err := svc.StartTrial(context.Background(), tenantID, "growth")
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrialing, sub.Status)
		require.NotNil(t, sub.TrialEndsAt)
		assert.Equal(t, now.AddDate(0, 0, 14), *sub.TrialEndsAt)

		_, snap, err := svc.Current(context.Background(), tenantID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrialing, snap.Status)
		assert.Equal(t, 14, snap.DaysRemaining)
	})

	t.Run("plan without trial days", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		_, err := svc.StartTrial(context.Background(), uuid.New(), "free")
		assert.ErrorIs(t, err, subscription.ErrTrialNotAvailable)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2025-06-15T12:00:00Z")

	t.Run("at period end keeps the subscription live", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		tenantID := uuid.New()
		_, err := svc.Subscribe(context.Background(), tenantID, "growth")
		require.NoError(t, err)

		sub, err := svc.Cancel(context.Background(), tenantID, false)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, sub.Status)
		assert.True(t, sub.CancelAtPeriodEnd)
		assert.False(t, sub.AutoRenew)
	})

	t.Run("immediate cancellation", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		tenantID := uuid.New()
		_, err := svc.Subscribe(context.Background(), tenantID, "growth")
		require.NoError(t, err)

		sub, err := svc.Cancel(context.Background(), tenantID, true)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusCancelled, sub.Status)
		require.NotNil(t, sub.CancelledAt)

		_, _, err = svc.Current(context.Background(), tenantID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		t.Parallel()

		svc, _ := newSubscriptionService(t, now)
		_, err := svc.Cancel(context.Background(), uuid.New(), false)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
	})
}

func TestService_HasFeature(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2025-06-15T12:00:00Z")
	svc, _ := newSubscriptionService(t, now)
	tenantID := uuid.New()

	_, err := svc.Subscribe(context.Background(), tenantID, "growth")
	require.NoError(t, err)

	assert.True(t, svc.HasFeature(context.Background(), tenantID, "custom_domain"))
	assert.True(t, svc.HasFeature(context.Background(), tenantID, "products"))
	assert.False(t, svc.HasFeature(context.Background(), tenantID, "white_label"))
	// Fails closed for tenants without a subscription.
	assert.False(t, svc.HasFeature(context.Background(), uuid.New(), "products"))
}
