package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InvoiceStore persists invoices. MarkPaid and MarkFailed are conditional
// transitions from pending: the returned bool reports whether this call
// performed the transition, which is the cross-process idempotency guard for
// duplicate gateway callbacks.
type InvoiceStore interface {
	// Create inserts a pending invoice. Returns ErrDuplicateTransaction when
	// the transaction id is already used.
	Create(ctx context.Context, inv *Invoice) error

	// Delete removes an invoice. Used only to roll back an invoice whose
	// gateway session could not be created.
	Delete(ctx context.Context, id uuid.UUID) error

	// GetByTransactionID returns the invoice for a transaction id.
	GetByTransactionID(ctx context.Context, txID string) (*Invoice, error)

	// FindPendingBySubscription returns the pending invoice for a
	// subscription, or ErrInvoiceNotFound when there is none.
	FindPendingBySubscription(ctx context.Context, subID uuid.UUID) (*Invoice, error)

	// SetGatewaySession records the gateway's session id on the invoice.
	SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID string) error

	// MarkPaid transitions pending -> paid. Returns false when the invoice
	// was not pending (already settled), without modifying it.
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error)

	// MarkFailed transitions pending -> failed. Returns false when the
	// invoice was not pending.
	MarkFailed(ctx context.Context, id uuid.UUID, failedAt time.Time) (bool, error)

	// ListStalePending returns pending invoices created before the cutoff,
	// oldest first, up to limit. Used by the reconciliation sweep.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Invoice, error)
}
