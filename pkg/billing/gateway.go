package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane/pkg/subscription"
)

// Outcome is the normalized result a gateway callback reports. The browser
// redirect outcomes are advisory; only an IPN validated against the gateway
// settles an invoice as paid.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// CallbackURLs are the endpoints the gateway sends the customer (and its
// server-to-server IPN) back to.
type CallbackURLs struct {
	SuccessURL string
	FailURL    string
	CancelURL  string
	IPNURL     string
}

// InitiateRequest asks the gateway for a hosted checkout session.
type InitiateRequest struct {
	TransactionID string
	Amount        subscription.Money
	TenantID      uuid.UUID
	CustomerEmail string
	Callbacks     CallbackURLs

	// PriceID is the provider-side catalog price, used by gateways that
	// price from their own catalog instead of the request amount.
	PriceID string
}

// Session is a hosted checkout session.
type Session struct {
	CheckoutURL string
	SessionID   string
	ExpiresAt   time.Time
}

// ValidationStatus is the gateway's verdict on a transaction.
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// Validation is the gateway's server-side view of a transaction, fetched
// independently of whatever the browser redirect claimed.
type Validation struct {
	Status        ValidationStatus
	TransactionID string
	// Amount and Currency are zero when the gateway does not report them;
	// the orchestrator then skips the amount cross-check.
	Amount    int64
	Currency  string
	RiskLevel string
}

// Gateway is the payment provider contract. Implementations wrap hosted
// checkout providers; all configuration (keys, base URLs) is injected at
// construction.
type Gateway interface {
	// Initiate creates a hosted checkout session for the transaction.
	Initiate(ctx context.Context, req InitiateRequest) (*Session, error)

	// Validate fetches the authoritative state of a transaction from the
	// gateway, keyed by the validation id delivered with the IPN.
	Validate(ctx context.Context, validationID string) (*Validation, error)
}
