package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service manages the subscription lineage of tenants: trial starts, plan
// purchases, cancellation, and derived status reads. Renewal payment flows
// live in the billing package and mutate subscriptions only through
// Store.ExtendPeriod.
type Service struct {
	store   Store
	catalog *Catalog
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a subscription service. Panics on nil dependencies to
// fail fast during initialization.
func NewService(store Store, catalog *Catalog, opts ...Option) *Service {
	if store == nil {
		panic("subscription: Store is required")
	}
	if catalog == nil {
		panic("subscription: Catalog is required")
	}

	s := &Service{
		store:   store,
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe creates a subscription record for the tenant on the given plan.
//
// Paid plans start with an empty billing period: the subscription resolves
// as requiring payment until the billing flow confirms the first checkout
// and extends the period. Free plans activate immediately.
func (s *Service) Subscribe(ctx context.Context, tenantID uuid.UUID, planID string) (*Subscription, error) {
	plan, err := s.catalog.Get(planID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub := &Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             plan.ID,
		Status:             StatusActive,
		CycleMonths:        plan.CycleMonths,
		Amount:             plan.Price,
		GraceDays:          plan.GraceDays,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now,
		AutoRenew:          true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if plan.Price.Amount == 0 {
		// Free plans have no renewal flow to extend them.
		sub.CurrentPeriodEnd = now.AddDate(100, 0, 0)
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription created",
		"tenant_id", tenantID, "plan_id", plan.ID, "subscription_id", sub.ID)
	return sub, nil
}

// StartTrial creates a trialing subscription for a plan with a trial period.
func (s *Service) StartTrial(ctx context.Context, tenantID uuid.UUID, planID string) (*Subscription, error) {
	plan, err := s.catalog.Get(planID)
	if err != nil {
		return nil, err
	}
	if plan.TrialDays == 0 {
		return nil, ErrTrialNotAvailable
	}

	now := s.now()
	trialEnd := plan.TrialEndsAt(now)
	sub := &Subscription{
		ID:                 uuid.New(),
		TenantID:           tenantID,
		PlanID:             plan.ID,
		Status:             StatusTrialing,
		CycleMonths:        plan.CycleMonths,
		Amount:             plan.Price,
		GraceDays:          plan.GraceDays,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnd,
		TrialEndsAt:        &trialEnd,
		AutoRenew:          true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.store.Create(ctx, sub); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "trial started",
		"tenant_id", tenantID, "plan_id", plan.ID, "trial_ends_at", trialEnd)
	return sub, nil
}

// Cancel cancels the tenant's live subscription. With immediate=false the
// subscription runs to the end of the paid period and is not renewed; with
// immediate=true it is cancelled right away.
func (s *Service) Cancel(ctx context.Context, tenantID uuid.UUID, immediate bool) (*Subscription, error) {
	sub, err := s.store.GetLiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub.AutoRenew = false
	sub.UpdatedAt = now
	if immediate {
		sub.Status = StatusCancelled
		sub.CancelledAt = &now
	} else {
		sub.CancelAtPeriodEnd = true
	}

	if err := s.store.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "subscription cancelled",
		"tenant_id", tenantID, "subscription_id", sub.ID, "immediate", immediate)
	return sub, nil
}

// Current returns the tenant's live subscription and its freshly derived
// snapshot. The stored status is never rewritten by this read.
func (s *Service) Current(ctx context.Context, tenantID uuid.UUID) (*Subscription, Snapshot, error) {
	sub, err := s.store.GetLiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, Snapshot{}, err
	}
	return sub, Resolve(sub, s.now()), nil
}

// HasFeature reports whether the tenant's current plan grants a feature.
// Returns false on any error to fail closed.
func (s *Service) HasFeature(ctx context.Context, tenantID uuid.UUID, feature string) bool {
	sub, err := s.store.GetLiveByTenant(ctx, tenantID)
	if err != nil {
		return false
	}
	plan, err := s.catalog.Get(sub.PlanID)
	if err != nil {
		return false
	}
	return plan.HasFeature(feature)
}
