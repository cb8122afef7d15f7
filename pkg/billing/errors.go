package billing

import "errors"

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrDuplicateTransaction = errors.New("transaction id already exists")
	ErrRenewalPending       = errors.New("a renewal for this subscription is already awaiting payment")

	// ErrGatewayUnavailable marks a retryable gateway failure: the caller may
	// retry the whole operation, no state was committed.
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrGatewayInvalidPayload = errors.New("payment gateway returned malformed data")

	// ErrSettlementIncomplete is raised when an invoice was marked paid but
	// applying the subscription period extension failed. The ledger needs
	// manual reconciliation; callers must alert, not retry blindly.
	ErrSettlementIncomplete = errors.New("invoice paid but period extension failed, manual reconciliation required")
)
