package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane/pkg/email"
)

// TenantEmailResolver resolves the billing contact for a tenant. Tenant
// account data lives outside this core.
type TenantEmailResolver func(ctx context.Context, tenantID uuid.UUID) (string, error)

// ExpiryNotifier emails merchants whose subscription is about to lapse.
// It is driven from an external scheduler; each run scans active
// subscriptions once, so the run cadence controls the reminder cadence.
type ExpiryNotifier struct {
	store   Store
	sender  email.Sender
	resolve TenantEmailResolver
	now     func() time.Time
	log     *slog.Logger

	batchSize int
}

// NewExpiryNotifier creates a notifier. Panics on nil dependencies.
func NewExpiryNotifier(store Store, sender email.Sender, resolve TenantEmailResolver, opts ...Option) *ExpiryNotifier {
	if store == nil {
		panic("subscription: Store is required")
	}
	if sender == nil {
		panic("subscription: email.Sender is required")
	}
	if resolve == nil {
		panic("subscription: TenantEmailResolver is required")
	}

	// Reuse service options for clock and logger injection.
	carrier := &Service{now: func() time.Time { return time.Now().UTC() }, log: slog.Default()}
	for _, opt := range opts {
		opt(carrier)
	}

	return &ExpiryNotifier{
		store:     store,
		sender:    sender,
		resolve:   resolve,
		now:       carrier.now,
		log:       carrier.log,
		batchSize: 500,
	}
}

// Run scans active subscriptions and sends a reminder for each one that is
// expiring soon or already in its grace window. Returns the number of
// reminders sent. Individual send failures are logged, not fatal.
func (n *ExpiryNotifier) Run(ctx context.Context) (int, error) {
	subs, err := n.store.ListByStatus(ctx, StatusActive, n.batchSize)
	if err != nil {
		return 0, err
	}

	now := n.now()
	sent := 0
	for i := range subs {
		sub := &subs[i]
		snap := Resolve(sub, now)
		if !snap.IsExpiringSoon && !snap.IsGracePeriod {
			continue
		}

		to, err := n.resolve(ctx, sub.TenantID)
		if err != nil {
			n.log.WarnContext(ctx, "no billing contact for tenant",
				"tenant_id", sub.TenantID, "error", err)
			continue
		}

		if err := n.sender.Send(ctx, n.reminder(sub, snap, to)); err != nil {
			n.log.ErrorContext(ctx, "failed to send expiry reminder",
				"tenant_id", sub.TenantID, "error", err)
			continue
		}
		sent++
	}

	return sent, nil
}

func (n *ExpiryNotifier) reminder(sub *Subscription, snap Snapshot, to string) email.SendParams {
	subject := fmt.Sprintf("Your subscription renews in %d days", snap.DaysRemaining)
	body := fmt.Sprintf(
		"Your %s subscription (%s per %d month(s)) expires in %d days. "+
			"Renew now to keep your storefront online.",
		sub.PlanID, sub.Amount, sub.CycleMonths, snap.DaysRemaining,
	)
	if snap.IsGracePeriod {
		subject = fmt.Sprintf("Payment required: %d days of grace remaining", snap.DaysRemaining)
		body = fmt.Sprintf(
			"Your %s subscription period has ended. Service continues for %d more day(s); "+
				"renew now to avoid interruption.",
			sub.PlanID, snap.DaysRemaining,
		)
	}
	return email.SendParams{
		To:       to,
		Subject:  subject,
		TextBody: body,
		Tag:      "subscription-expiry",
	}
}
