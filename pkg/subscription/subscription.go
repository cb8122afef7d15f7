package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is one active-or-historical record in a tenant's subscription
// lineage. Records are never hard-deleted: re-subscribing after expiry
// inserts a new record and the old one remains as history.
type Subscription struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	PlanID   string
	Status   Status

	CycleMonths int
	Amount      Money
	GraceDays   int // carried from the plan at creation

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEndsAt        *time.Time
	GracePeriodEndsAt  *time.Time

	CancelAtPeriodEnd bool
	AutoRenew         bool

	TotalPaid     int64 // lifetime, in Amount.Currency smallest units
	RenewalCount  int
	LastPaymentAt *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
}

func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// TrialDaysRemainingAt returns whole days left in the trial at the given
// time, rounded up, never negative.
func (s *Subscription) TrialDaysRemainingAt(now time.Time) int {
	if !s.IsTrialing() || s.TrialEndsAt == nil {
		return 0
	}
	return daysUntil(now, *s.TrialEndsAt)
}
