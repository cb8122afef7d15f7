package subscription

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoplane/shoplane/pkg/pg"
)

// PGStore is the PostgreSQL Store. The one-live-record-per-tenant invariant
// is enforced by a partial unique index on tenant_id over live statuses, so
// concurrent creations cannot both succeed.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const subscriptionColumns = `id, tenant_id, plan_id, status, cycle_months, amount, currency,
	grace_days, current_period_start, current_period_end, trial_ends_at,
	grace_period_ends_at, cancel_at_period_end, auto_renew, total_paid,
	renewal_count, last_payment_at, created_at, updated_at, cancelled_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &sub.Status, &sub.CycleMonths,
		&sub.Amount.Amount, &sub.Amount.Currency, &sub.GraceDays,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEndsAt,
		&sub.GracePeriodEndsAt, &sub.CancelAtPeriodEnd, &sub.AutoRenew,
		&sub.TotalPaid, &sub.RenewalCount, &sub.LastPaymentAt,
		&sub.CreatedAt, &sub.UpdatedAt, &sub.CancelledAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (s *PGStore) Create(ctx context.Context, sub *Subscription) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		sub.ID, sub.TenantID, sub.PlanID, sub.Status, sub.CycleMonths,
		sub.Amount.Amount, sub.Amount.Currency, sub.GraceDays,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.TrialEndsAt,
		sub.GracePeriodEndsAt, sub.CancelAtPeriodEnd, sub.AutoRenew,
		sub.TotalPaid, sub.RenewalCount, sub.LastPaymentAt,
		sub.CreatedAt, sub.UpdatedAt, sub.CancelledAt,
	)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			return ErrSubscriptionAlreadyExists
		}
		return err
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row)
}

func (s *PGStore) GetLiveByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE tenant_id = $1 AND status = ANY($2)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID, liveStatusStrings(),
	)
	return scanSubscription(row)
}

func (s *PGStore) Update(ctx context.Context, sub *Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			status = $2, cancel_at_period_end = $3, auto_renew = $4,
			grace_period_ends_at = $5, cancelled_at = $6, updated_at = $7
		WHERE id = $1`,
		sub.ID, sub.Status, sub.CancelAtPeriodEnd, sub.AutoRenew,
		sub.GracePeriodEndsAt, sub.CancelledAt, sub.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) ExtendPeriod(ctx context.Context, id uuid.UUID, ext PeriodExtension) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			status = $2,
			current_period_start = $3,
			current_period_end = $4,
			grace_period_ends_at = $5,
			trial_ends_at = NULL,
			total_paid = total_paid + $6,
			renewal_count = renewal_count + 1,
			last_payment_at = $7,
			updated_at = $7
		WHERE id = $1`,
		id, StatusActive, ext.PeriodStart, ext.PeriodEnd, ext.GraceEndsAt,
		ext.AmountPaid, ext.PaidAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) ListByStatus(ctx context.Context, status Status, limit int) ([]Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE status = $1
		 ORDER BY current_period_end ASC
		 LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func liveStatusStrings() []string {
	out := make([]string, len(liveStatuses))
	for i, s := range liveStatuses {
		out[i] = string(s)
	}
	return out
}

var _ Store = (*PGStore)(nil)
var _ Store = (*MemoryStore)(nil)
