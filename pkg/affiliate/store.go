package affiliate

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists the affiliate ledger. The Approve/Cancel/Complete methods
// are conditional transitions: they mutate only when the row is still in the
// expected source state and apply the status change and the balance
// arithmetic atomically. The returned bool reports whether this call
// performed the transition; false means another caller settled it first.
type Store interface {
	// CreateAffiliate inserts a new affiliate. Returns ErrCodeTaken when the
	// promo code is already in use.
	CreateAffiliate(ctx context.Context, a *Affiliate) error

	// GetAffiliate returns an affiliate by id.
	GetAffiliate(ctx context.Context, id uuid.UUID) (*Affiliate, error)

	// GetAffiliateByCode returns the affiliate owning a promo code.
	GetAffiliateByCode(ctx context.Context, code string) (*Affiliate, error)

	// SetAffiliateStatus updates the enrollment status.
	SetAffiliateStatus(ctx context.Context, id uuid.UUID, status AffiliateStatus) error

	// RecordAccrual inserts the pending commission and increments the
	// affiliate's order counter in one atomic step. Returns
	// ErrDuplicateCommission when the order already accrued.
	RecordAccrual(ctx context.Context, c *Commission) error

	// GetCommission returns a commission by id.
	GetCommission(ctx context.Context, id uuid.UUID) (*Commission, error)

	// GetCommissionByOrder returns the commission accrued for an order.
	GetCommissionByOrder(ctx context.Context, orderID string) (*Commission, error)

	// ApproveCommission transitions pending -> approved and atomically adds
	// the commission amount to the affiliate's earnings and available
	// balance, increments delivered orders, and raises the level to newLevel
	// when higher than the current one. Returns false when the commission
	// was not pending.
	ApproveCommission(ctx context.Context, id uuid.UUID, newLevel int, at time.Time) (bool, error)

	// CancelCommission transitions the commission to cancelled. When the row
	// was approved, the amount is atomically removed from earnings and
	// available balance. Returns the status the transition left from; false
	// when the row was already cancelled.
	CancelCommission(ctx context.Context, id uuid.UUID, at time.Time) (from CommissionStatus, applied bool, err error)

	// ListCommissions returns an affiliate's commissions, newest first.
	ListCommissions(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Commission, error)

	// CreateWithdrawal inserts a pending payout request.
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error

	// GetWithdrawal returns a withdrawal by id.
	GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error)

	// SetWithdrawalStatus performs a conditional status transition without
	// balance arithmetic (pending -> approved, pending -> rejected).
	// Returns false when the row was not in the from status.
	SetWithdrawalStatus(ctx context.Context, id uuid.UUID, from, to WithdrawalStatus, note string, at time.Time) (bool, error)

	// CompleteWithdrawal transitions approved -> completed and atomically
	// decrements the affiliate's available balance and increments total
	// withdrawn. Returns ErrInsufficientBalance when the balance no longer
	// covers the amount; false when the row was not approved.
	CompleteWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// ListWithdrawals returns an affiliate's payout requests, newest first.
	ListWithdrawals(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Withdrawal, error)
}
