package affiliate

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalStatus is the payout state machine: pending -> approved ->
// completed, or pending -> rejected. The balance is decremented only at
// completion so rejected payouts never lock funds.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalApproved  WithdrawalStatus = "approved"
	WithdrawalRejected  WithdrawalStatus = "rejected"
	WithdrawalCompleted WithdrawalStatus = "completed"
)

// Terminal reports whether the status can no longer change.
func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalRejected || s == WithdrawalCompleted
}

// Withdrawal is one payout request against an affiliate's available balance.
type Withdrawal struct {
	ID          uuid.UUID `bson:"_id" json:"id"`
	AffiliateID uuid.UUID `bson:"affiliate_id" json:"affiliateId"`

	Amount int64            `bson:"amount" json:"amount"`
	Status WithdrawalStatus `bson:"status" json:"status"`

	// Method and Account describe where the money goes, e.g. a mobile
	// banking provider and wallet number.
	Method  string `bson:"method" json:"method"`
	Account string `bson:"account" json:"account"`

	// Note carries the reviewer's reason on rejection.
	Note string `bson:"note,omitempty" json:"note,omitempty"`

	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
}
