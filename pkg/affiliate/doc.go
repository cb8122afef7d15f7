// Package affiliate maintains the commission ledger for referring users:
// enrollment with unique promo codes, per-order commission accrual that
// follows the order's own lifecycle, tiered commission rates driven by
// delivered-sales thresholds, and a withdrawal state machine.
//
// The ledger invariant, available balance equals total earnings minus total
// withdrawn, is checked after every balance mutation. Commission percentages
// are frozen at accrual; levels only ever move up. Balance mutations run
// under a per-affiliate lock and land as conditional store updates, so
// duplicate delivery notifications settle a commission exactly once.
package affiliate
