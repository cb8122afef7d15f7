package subscription

import (
	"math"
	"time"
)

// ExpiringSoonDays is the window before period end in which a subscription is
// flagged as expiring soon.
const ExpiringSoonDays = 7

// Snapshot is the derived view of a subscription at a point in time. The
// stored status field is never rewritten by reads; every read derives a
// fresh snapshot instead.
type Snapshot struct {
	Status          Status
	IsExpired       bool
	IsGracePeriod   bool
	DaysRemaining   int
	IsExpiringSoon  bool
	RequiresPayment bool
}

// Resolve derives the live status of a subscription at the given time.
// It is a pure function: equal inputs always produce equal outputs, and it
// never fails over its input domain.
//
// Stored statuses other than active (trialing, cancelled, expired) are
// authoritative and returned verbatim. An active subscription is active
// until its period end, then in grace until the grace window closes, then
// expired.
func Resolve(sub *Subscription, now time.Time) Snapshot {
	if sub.Status != StatusActive {
		snap := Snapshot{Status: sub.Status}
		switch sub.Status {
		case StatusTrialing:
			if sub.TrialEndsAt != nil {
				snap.DaysRemaining = daysUntil(now, *sub.TrialEndsAt)
			}
		case StatusExpired:
			snap.IsExpired = true
			snap.RequiresPayment = true
		}
		return snap
	}

	if !now.After(sub.CurrentPeriodEnd) {
		days := daysUntil(now, sub.CurrentPeriodEnd)
		return Snapshot{
			Status:         StatusActive,
			DaysRemaining:  days,
			IsExpiringSoon: days > 0 && days <= ExpiringSoonDays,
		}
	}

	if sub.GracePeriodEndsAt != nil && !now.After(*sub.GracePeriodEndsAt) {
		return Snapshot{
			Status:          StatusGrace,
			IsGracePeriod:   true,
			DaysRemaining:   daysUntil(now, *sub.GracePeriodEndsAt),
			RequiresPayment: true,
		}
	}

	return Snapshot{
		Status:          StatusExpired,
		IsExpired:       true,
		DaysRemaining:   0,
		RequiresPayment: true,
	}
}

// daysUntil returns whole days from now until end, rounded up, floored at 0.
func daysUntil(now, end time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
