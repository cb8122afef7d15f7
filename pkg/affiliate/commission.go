package affiliate

import (
	"time"

	"github.com/google/uuid"
)

// CommissionStatus tracks a commission through the order's lifecycle:
// pending at order placement, approved on delivery, cancelled if the order
// is cancelled. Approved balances accrue; cancellation reverses them.
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "pending"
	CommissionApproved  CommissionStatus = "approved"
	CommissionCancelled CommissionStatus = "cancelled"
)

// Commission is one order's accrual for one affiliate. Level and Percent are
// frozen at accrual time: later level promotions never reprice existing
// rows.
type Commission struct {
	ID          uuid.UUID `bson:"_id" json:"id"`
	AffiliateID uuid.UUID `bson:"affiliate_id" json:"affiliateId"`

	// OrderID is the external order this commission follows. One commission
	// per order.
	OrderID string `bson:"order_id" json:"orderId"`

	OrderTotal int64   `bson:"order_total" json:"orderTotal"`
	Level      int     `bson:"level" json:"level"`
	Percent    float64 `bson:"percent" json:"percent"`
	Amount     int64   `bson:"amount" json:"amount"`

	Status CommissionStatus `bson:"status" json:"status"`

	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updatedAt"`
	ApprovedAt *time.Time `bson:"approved_at,omitempty" json:"approvedAt,omitempty"`
}

// CommissionAmount computes the accrued amount for an order total and
// percentage, rounded to the nearest smallest unit.
func CommissionAmount(orderTotal int64, percent float64) int64 {
	if orderTotal <= 0 || percent <= 0 {
		return 0
	}
	return int64(float64(orderTotal)*percent/100 + 0.5)
}
