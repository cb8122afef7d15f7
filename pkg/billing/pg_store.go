package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoplane/shoplane/pkg/pg"
)

// PGInvoiceStore is the PostgreSQL InvoiceStore. Settlement transitions are
// conditional updates on the pending status; the affected-row count is the
// idempotency guard under concurrent IPN and redirect delivery.
type PGInvoiceStore struct {
	pool *pgxpool.Pool
}

func NewPGInvoiceStore(pool *pgxpool.Pool) *PGInvoiceStore {
	return &PGInvoiceStore{pool: pool}
}

const invoiceColumns = `id, tenant_id, subscription_id, amount, currency, status,
	transaction_id, gateway_session_id, period_start, period_end,
	created_at, updated_at, paid_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(
		&inv.ID, &inv.TenantID, &inv.SubscriptionID,
		&inv.Amount.Amount, &inv.Amount.Currency, &inv.Status,
		&inv.TransactionID, &inv.GatewaySessionID,
		&inv.PeriodStart, &inv.PeriodEnd,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.PaidAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (s *PGInvoiceStore) Create(ctx context.Context, inv *Invoice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		inv.ID, inv.TenantID, inv.SubscriptionID,
		inv.Amount.Amount, inv.Amount.Currency, inv.Status,
		inv.TransactionID, inv.GatewaySessionID,
		inv.PeriodStart, inv.PeriodEnd,
		inv.CreatedAt, inv.UpdatedAt, inv.PaidAt,
	)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			// The partial unique index on pending invoices closes the race
			// between two concurrent renewal starts.
			if pg.ConstraintName(err) == "invoices_one_pending_per_subscription" {
				return ErrRenewalPending
			}
			return ErrDuplicateTransaction
		}
		return err
	}
	return nil
}

func (s *PGInvoiceStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (s *PGInvoiceStore) GetByTransactionID(ctx context.Context, txID string) (*Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE transaction_id = $1`, txID)
	return scanInvoice(row)
}

func (s *PGInvoiceStore) FindPendingBySubscription(ctx context.Context, subID uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE subscription_id = $1 AND status = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		subID, InvoicePending,
	)
	return scanInvoice(row)
}

func (s *PGInvoiceStore) SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE invoices SET gateway_session_id = $2 WHERE id = $1`, id, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (s *PGInvoiceStore) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices
		SET status = $2, paid_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, InvoicePaid, paidAt, InvoicePending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGInvoiceStore) MarkFailed(ctx context.Context, id uuid.UUID, failedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE invoices
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = $4`,
		id, InvoiceFailed, failedAt, InvoicePending,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PGInvoiceStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+`
		 FROM invoices
		 WHERE status = $1 AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		InvoicePending, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

var _ InvoiceStore = (*PGInvoiceStore)(nil)
