package affiliate

import "errors"

var (
	ErrAffiliateNotFound  = errors.New("affiliate not found")
	ErrCommissionNotFound = errors.New("commission not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")

	ErrCodeTaken          = errors.New("promo code already taken")
	ErrInvalidCode        = errors.New("invalid promo code")
	ErrDuplicateCommission = errors.New("order already has a commission")
	ErrAffiliateInactive  = errors.New("affiliate is not active")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBelowMinimum        = errors.New("amount is below the minimum withdrawal")
	ErrInsufficientBalance = errors.New("amount exceeds available balance")

	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNegativeBalance reports a reversal that pushed the available balance
	// below zero because a withdrawal already consumed the funds. The ledger
	// arithmetic stays consistent; the condition needs manual reconciliation.
	ErrNegativeBalance = errors.New("reversal produced a negative balance, manual reconciliation required")

	// ErrLedgerInvariant reports a balance that no longer satisfies
	// available == earnings - withdrawn. Fatal to the operation; requires
	// alerting, never silent continuation.
	ErrLedgerInvariant = errors.New("affiliate balance invariant violated")
)
