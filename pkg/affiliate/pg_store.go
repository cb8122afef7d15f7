package affiliate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shoplane/shoplane/pkg/pg"
)

// PGStore is the PostgreSQL ledger store. Commission and withdrawal
// transitions pair a conditional status update with the balance arithmetic
// inside one transaction; the affected-row count of the conditional update
// is the idempotency guard.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const affiliateColumns = `id, user_id, code, status, total_earnings, total_withdrawn,
	available_balance, total_orders, delivered_orders, current_level,
	created_at, updated_at`

func scanAffiliate(row pgx.Row) (*Affiliate, error) {
	var a Affiliate
	err := row.Scan(
		&a.ID, &a.UserID, &a.Code, &a.Status, &a.TotalEarnings,
		&a.TotalWithdrawn, &a.AvailableBalance, &a.TotalOrders,
		&a.DeliveredOrders, &a.CurrentLevel, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) CreateAffiliate(ctx context.Context, a *Affiliate) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO affiliates (`+affiliateColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.UserID, a.Code, a.Status, a.TotalEarnings, a.TotalWithdrawn,
		a.AvailableBalance, a.TotalOrders, a.DeliveredOrders, a.CurrentLevel,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (s *PGStore) GetAffiliate(ctx context.Context, id uuid.UUID) (*Affiliate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates WHERE id = $1`, id)
	return scanAffiliate(row)
}

func (s *PGStore) GetAffiliateByCode(ctx context.Context, code string) (*Affiliate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+affiliateColumns+` FROM affiliates WHERE code = $1`, code)
	return scanAffiliate(row)
}

func (s *PGStore) SetAffiliateStatus(ctx context.Context, id uuid.UUID, status AffiliateStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE affiliates SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAffiliateNotFound
	}
	return nil
}

const commissionColumns = `id, affiliate_id, order_id, order_total, level, percent, amount,
	status, created_at, updated_at, approved_at`

func scanCommission(row pgx.Row) (*Commission, error) {
	var c Commission
	err := row.Scan(
		&c.ID, &c.AffiliateID, &c.OrderID, &c.OrderTotal, &c.Level,
		&c.Percent, &c.Amount, &c.Status, &c.CreatedAt, &c.UpdatedAt,
		&c.ApprovedAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrCommissionNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *PGStore) RecordAccrual(ctx context.Context, c *Commission) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO affiliate_commissions (`+commissionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		c.ID, c.AffiliateID, c.OrderID, c.OrderTotal, c.Level, c.Percent,
		c.Amount, c.Status, c.CreatedAt, c.UpdatedAt, c.ApprovedAt,
	)
	if err != nil {
		if pg.IsDuplicateKey(err) {
			return ErrDuplicateCommission
		}
		if pg.IsForeignKeyViolation(err) {
			return ErrAffiliateNotFound
		}
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE affiliates SET total_orders = total_orders + 1, updated_at = $2
		WHERE id = $1`,
		c.AffiliateID, c.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAffiliateNotFound
	}

	return tx.Commit(ctx)
}

func (s *PGStore) GetCommission(ctx context.Context, id uuid.UUID) (*Commission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM affiliate_commissions WHERE id = $1`, id)
	return scanCommission(row)
}

func (s *PGStore) GetCommissionByOrder(ctx context.Context, orderID string) (*Commission, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+commissionColumns+` FROM affiliate_commissions WHERE order_id = $1`, orderID)
	return scanCommission(row)
}

func (s *PGStore) ApproveCommission(ctx context.Context, id uuid.UUID, newLevel int, at time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var affiliateID uuid.UUID
	var amount int64
	err = tx.QueryRow(ctx, `
		UPDATE affiliate_commissions
		SET status = $2, approved_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING affiliate_id, amount`,
		id, CommissionApproved, at, CommissionPending,
	).Scan(&affiliateID, &amount)
	if err != nil {
		if pg.IsNotFound(err) {
			// Not pending, or no such row. Distinguish for the caller.
			var exists bool
			if checkErr := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM affiliate_commissions WHERE id = $1)`, id,
			).Scan(&exists); checkErr != nil {
				return false, checkErr
			}
			if !exists {
				return false, ErrCommissionNotFound
			}
			return false, nil
		}
		return false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE affiliates
		SET total_earnings = total_earnings + $2,
		    available_balance = available_balance + $2,
		    delivered_orders = delivered_orders + 1,
		    current_level = GREATEST(current_level, $3),
		    updated_at = $4
		WHERE id = $1`,
		affiliateID, amount, newLevel, at)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) CancelCommission(ctx context.Context, id uuid.UUID, at time.Time) (CommissionStatus, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback(ctx)

	var from CommissionStatus
	var affiliateID uuid.UUID
	var amount int64
	err = tx.QueryRow(ctx, `
		UPDATE affiliate_commissions c
		SET status = $2, updated_at = $3
		FROM (SELECT id, status FROM affiliate_commissions WHERE id = $1 FOR UPDATE) prev
		WHERE c.id = prev.id AND prev.status <> $2
		RETURNING prev.status, c.affiliate_id, c.amount`,
		id, CommissionCancelled, at,
	).Scan(&from, &affiliateID, &amount)
	if err != nil {
		if pg.IsNotFound(err) {
			var status CommissionStatus
			if checkErr := s.pool.QueryRow(ctx,
				`SELECT status FROM affiliate_commissions WHERE id = $1`, id,
			).Scan(&status); checkErr != nil {
				if pg.IsNotFound(checkErr) {
					return "", false, ErrCommissionNotFound
				}
				return "", false, checkErr
			}
			return status, false, nil
		}
		return "", false, err
	}

	if from == CommissionApproved {
		_, err = tx.Exec(ctx, `
			UPDATE affiliates
			SET total_earnings = total_earnings - $2,
			    available_balance = available_balance - $2,
			    updated_at = $3
			WHERE id = $1`,
			affiliateID, amount, at)
		if err != nil {
			return "", false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	return from, true, nil
}

func (s *PGStore) ListCommissions(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Commission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+commissionColumns+` FROM affiliate_commissions
		WHERE affiliate_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		affiliateID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const withdrawalColumns = `id, affiliate_id, amount, status, method, account, note,
	created_at, updated_at, completed_at`

func scanWithdrawal(row pgx.Row) (*Withdrawal, error) {
	var w Withdrawal
	err := row.Scan(
		&w.ID, &w.AffiliateID, &w.Amount, &w.Status, &w.Method, &w.Account,
		&w.Note, &w.CreatedAt, &w.UpdatedAt, &w.CompletedAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrWithdrawalNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (s *PGStore) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO affiliate_withdrawals (`+withdrawalColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		w.ID, w.AffiliateID, w.Amount, w.Status, w.Method, w.Account, w.Note,
		w.CreatedAt, w.UpdatedAt, w.CompletedAt,
	)
	if err != nil && pg.IsForeignKeyViolation(err) {
		return ErrAffiliateNotFound
	}
	return err
}

func (s *PGStore) GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+withdrawalColumns+` FROM affiliate_withdrawals WHERE id = $1`, id)
	return scanWithdrawal(row)
}

func (s *PGStore) SetWithdrawalStatus(ctx context.Context, id uuid.UUID, from, to WithdrawalStatus, note string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE affiliate_withdrawals
		SET status = $3, note = CASE WHEN $4 <> '' THEN $4 ELSE note END, updated_at = $5
		WHERE id = $1 AND status = $2`,
		id, from, to, note, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if checkErr := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM affiliate_withdrawals WHERE id = $1)`, id,
		).Scan(&exists); checkErr != nil {
			return false, checkErr
		}
		if !exists {
			return false, ErrWithdrawalNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *PGStore) CompleteWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var affiliateID uuid.UUID
	var amount int64
	err = tx.QueryRow(ctx, `
		UPDATE affiliate_withdrawals
		SET status = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = $4
		RETURNING affiliate_id, amount`,
		id, WithdrawalCompleted, at, WithdrawalApproved,
	).Scan(&affiliateID, &amount)
	if err != nil {
		if pg.IsNotFound(err) {
			var exists bool
			if checkErr := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM affiliate_withdrawals WHERE id = $1)`, id,
			).Scan(&exists); checkErr != nil {
				return false, checkErr
			}
			if !exists {
				return false, ErrWithdrawalNotFound
			}
			return false, nil
		}
		return false, err
	}

	// Guarded decrement: a reversal may have consumed the balance since
	// approval, in which case the payout must not complete.
	tag, err := tx.Exec(ctx, `
		UPDATE affiliates
		SET available_balance = available_balance - $2,
		    total_withdrawn = total_withdrawn + $2,
		    updated_at = $3
		WHERE id = $1 AND available_balance >= $2`,
		affiliateID, amount, at)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, ErrInsufficientBalance
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) ListWithdrawals(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Withdrawal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+withdrawalColumns+` FROM affiliate_withdrawals
		WHERE affiliate_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		affiliateID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

var _ Store = (*PGStore)(nil)
