// Package subscription implements the tenant subscription lifecycle: the
// plan catalog, the subscription record and its persistence, and the pure
// status resolver that derives the live state of a subscription from its
// period and grace timestamps.
//
// # Status derivation
//
// The stored status field is only rewritten by renewal confirmation and
// explicit cancellation. Every read derives the live state instead:
//
//	sub, snap, err := svc.Current(ctx, tenantID)
//	if snap.RequiresPayment {
//		// send the merchant to checkout (billing package)
//	}
//
// An active subscription past its period end is in its grace window until
// GracePeriodEndsAt, then expired. Trialing, cancelled, and expired stored
// statuses are authoritative and returned verbatim.
//
// # Plan catalog
//
// Plans are near-immutable and loaded once at startup from a PlanSource
// (in-memory for tests, YAML file for deployments). A plan's feature map is
// heterogeneous (toggles, numeric limits with "unlimited", strings, lists)
// and is normalized into the FeatureValue tagged union at the boundary.
//
// # Persistence
//
// Store implementations enforce one live record per tenant: MemoryStore for
// tests and single-node use, PGStore backed by pgx with a partial unique
// index. Renewal payments mutate subscriptions only through ExtendPeriod so
// the period, totals, and status move together.
package subscription
