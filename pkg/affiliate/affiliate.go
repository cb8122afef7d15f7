package affiliate

import (
	"time"

	"github.com/google/uuid"
)

// AffiliateStatus gates whether new commissions may accrue. Affiliates are
// never deleted; misbehaving ones are suspended.
type AffiliateStatus string

const (
	AffiliateActive    AffiliateStatus = "active"
	AffiliateInactive  AffiliateStatus = "inactive"
	AffiliateSuspended AffiliateStatus = "suspended"
)

// Affiliate is one referring user's ledger row. The balance fields form the
// ledger invariant: AvailableBalance == TotalEarnings - TotalWithdrawn,
// checked after every mutation.
type Affiliate struct {
	ID     uuid.UUID       `bson:"_id" json:"id"`
	UserID uuid.UUID       `bson:"user_id" json:"userId"`
	Code   string          `bson:"code" json:"code"` // unique promo code
	Status AffiliateStatus `bson:"status" json:"status"`

	TotalEarnings    int64 `bson:"total_earnings" json:"totalEarnings"`
	TotalWithdrawn   int64 `bson:"total_withdrawn" json:"totalWithdrawn"`
	AvailableBalance int64 `bson:"available_balance" json:"availableBalance"`

	TotalOrders     int64 `bson:"total_orders" json:"totalOrders"`
	DeliveredOrders int64 `bson:"delivered_orders" json:"deliveredOrders"`

	// CurrentLevel only ever moves up; reversals never demote.
	CurrentLevel int `bson:"current_level" json:"currentLevel"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// CheckBalance verifies the ledger invariant on this row.
func (a *Affiliate) CheckBalance() error {
	if a.AvailableBalance != a.TotalEarnings-a.TotalWithdrawn {
		return ErrLedgerInvariant
	}
	return nil
}

// IsActive reports whether the affiliate may accrue new commissions.
func (a *Affiliate) IsActive() bool {
	return a.Status == AffiliateActive
}
