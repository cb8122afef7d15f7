package subscription_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplane/shoplane/pkg/email"
	"github.com/shoplane/shoplane/pkg/subscription"
)

func seedActive(t *testing.T, store *subscription.MemoryStore, tenantID uuid.UUID, periodEnd time.Time) *subscription.Subscription {
	t.Helper()

	now := periodEnd.AddDate(0, -1, 0)
	sub := &subscription.Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             "growth",
		Status:             subscription.StatusActive,
		CycleMonths:        1,
		Amount:             subscription.Money{Amount: 2900, Currency: "USD"},
		GraceDays:          3,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd,
		AutoRenew:          true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, store.Create(context.Background(), sub))
	return sub
}

func TestExpiryNotifier_Run(t *testing.T) {
	t.Parallel()

	now := mustTime(t, "2025-06-15T12:00:00Z")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("reminds expiring and grace subscriptions only", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		sender := email.NewDevSender(logger)

		expiring := seedActive(t, store, uuid.New(), now.AddDate(0, 0, 3))
		seedActive(t, store, uuid.New(), now.AddDate(0, 1, 0)) // far from expiry

		graced := seedActive(t, store, uuid.New(), now.AddDate(0, 0, -1))
		graceEnd := graced.CurrentPeriodEnd.AddDate(0, 0, 3)
		graced.GracePeriodEndsAt = &graceEnd
		require.NoError(t, store.Update(context.Background(), graced))

		contacts := map[uuid.UUID]string{
			expiring.TenantID: "expiring@example.com",
			graced.TenantID:   "graced@example.com",
		}
		resolve := func(ctx context.Context, tenantID uuid.UUID) (string, error) {
			to, ok := contacts[tenantID]
			if !ok {
				return "", errors.New("no contact")
			}
			return to, nil
		}

		notifier := subscription.NewExpiryNotifier(store, sender, resolve,
			subscription.WithClock(func() time.Time { return now }),
			subscription.WithLogger(logger))

		sent, err := notifier.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, sent)

		byTo := map[string]email.SendParams{}
		for _, msg := range sender.Sent() {
			byTo[msg.To] = msg
		}
		require.Len(t, byTo, 2)
		assert.Contains(t, byTo["expiring@example.com"].Subject, "renews in 3 days")
		assert.Contains(t, byTo["graced@example.com"].Subject, "Payment required")
		assert.Equal(t, "subscription-expiry", byTo["expiring@example.com"].Tag)
	})

	t.Run("missing billing contact is skipped", func(t *testing.T) {
		t.Parallel()

		store := subscription.NewMemoryStore()
		sender := email.NewDevSender(logger)
		seedActive(t, store, uuid.New(), now.AddDate(0, 0, 2))

		resolve := func(ctx context.Context, tenantID uuid.UUID) (string, error) {
			return "", errors.New("tenant deleted")
		}

		notifier := subscription.NewExpiryNotifier(store, sender, resolve,
			subscription.WithClock(func() time.Time { return now }),
			subscription.WithLogger(logger))

		sent, err := notifier.Run(context.Background())
		require.NoError(t, err)
		assert.Zero(t, sent)
		assert.Empty(t, sender.Sent())
	})
}
