package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane/pkg/subscription"
)

// InvoiceStatus is the settlement state of an invoice. pending is the only
// non-terminal state; a terminal invoice is never transitioned again.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceFailed  InvoiceStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceFailed
}

// Invoice is one attempted billing period for a subscription. The new period
// window is computed at initiation and frozen on the invoice so that
// reconciliation applies exactly the window the merchant paid for.
type Invoice struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	SubscriptionID uuid.UUID

	Amount subscription.Money
	Status InvoiceStatus

	// TransactionID is the renewal-attempt key: every gateway callback and
	// IPN correlates through it. Unique across all invoices.
	TransactionID    string
	GatewaySessionID string

	PeriodStart time.Time
	PeriodEnd   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}
