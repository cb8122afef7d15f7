package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PeriodExtension carries the precomputed billing window applied to a
// subscription when a renewal payment is confirmed.
type PeriodExtension struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	GraceEndsAt *time.Time
	AmountPaid  int64
	PaidAt      time.Time
}

// Store persists subscription records.
type Store interface {
	// Create inserts a new record. Returns ErrSubscriptionAlreadyExists when
	// the tenant already has a record in a live status.
	Create(ctx context.Context, sub *Subscription) error

	// Get retrieves a record by id. Returns ErrSubscriptionNotFound if missing.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetLiveByTenant retrieves the tenant's record in a live status.
	// Returns ErrSubscriptionNotFound if the tenant has none.
	GetLiveByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// Update rewrites mutable fields of an existing record.
	Update(ctx context.Context, sub *Subscription) error

	// ExtendPeriod applies a confirmed renewal: sets the new period window and
	// grace marker, forces status to active, clears the trial marker, and
	// increments renewal count and lifetime totals. Implementations must apply
	// all of it atomically.
	ExtendPeriod(ctx context.Context, id uuid.UUID, ext PeriodExtension) error

	// ListByStatus returns up to limit records with the given stored status,
	// ordered by period end ascending. Used by the notification sweep.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Subscription, error)
}
