// Package billing runs the renewal cycle for subscriptions: it opens hosted
// checkout sessions against a payment gateway, settles the resulting
// invoices from validated gateway callbacks, and applies the paid billing
// window to the subscription record.
//
// An invoice is created pending when a checkout opens and moves to exactly
// one terminal state, paid or failed. Settlement is idempotent per
// transaction id: duplicate IPN deliveries and racing success/failure
// callbacks resolve to whichever verdict landed first, enforced by a
// conditional store transition plus a per-transaction lock.
//
// Browser redirects are treated as advisory. A success outcome settles an
// invoice only after the gateway confirms the transaction server-side.
package billing
