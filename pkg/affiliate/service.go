package affiliate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Locker serializes ledger mutations for one affiliate across processes.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Service is the affiliate ledger: enrollment, per-order commission
// accrual, balance mutations, and the withdrawal workflow. Every balance
// mutation runs under a per-affiliate lock and is followed by an invariant
// check on the row it touched.
type Service struct {
	store      Store
	config     ProgramConfig
	thresholds Thresholds
	locker     Locker
	log        *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for ledger events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the ledger service. Thresholds are normalized once
// here; the resolvers never see the legacy configuration shapes.
func NewService(store Store, config ProgramConfig, locker Locker, opts ...Option) *Service {
	if store == nil {
		panic("affiliate: store is required")
	}
	if locker == nil {
		panic("affiliate: locker is required")
	}

	s := &Service{
		store:      store,
		config:     config,
		thresholds: config.NormalizeThresholds(),
		locker:     locker,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) lockAffiliate(ctx context.Context, id uuid.UUID) (func(), error) {
	return s.locker.Lock(ctx, "affiliate:ledger:"+id.String())
}

// Enroll creates an affiliate for a user. An empty code gets a generated
// one. Codes are case-insensitive, stored upper.
func (s *Service) Enroll(ctx context.Context, userID uuid.UUID, code string) (*Affiliate, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = generateCode()
	}
	if len(code) < 4 || len(code) > 24 {
		return nil, fmt.Errorf("%w: code must be 4-24 characters", ErrInvalidCode)
	}

	now := s.now().UTC()
	a := &Affiliate{
		ID:           uuid.New(),
		UserID:       userID,
		Code:         code,
		Status:       AffiliateActive,
		CurrentLevel: MinLevel,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAffiliate(ctx, a); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "affiliate enrolled",
		slog.String("affiliate_id", a.ID.String()),
		slog.String("code", a.Code))
	return a, nil
}

// Get returns an affiliate by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Affiliate, error) {
	return s.store.GetAffiliate(ctx, id)
}

// GetByCode returns the affiliate owning a promo code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Affiliate, error) {
	return s.store.GetAffiliateByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// Suspend blocks further accruals without deleting history.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) error {
	return s.store.SetAffiliateStatus(ctx, id, AffiliateSuspended)
}

// Accrue records a pending commission for an order placed through a promo
// code. The percentage is the affiliate's current tier at this moment and
// stays frozen on the row; later promotions never reprice it. Balances are
// untouched until the order is delivered.
func (s *Service) Accrue(ctx context.Context, code, orderID string, orderTotal int64) (*Commission, error) {
	if orderID == "" || orderTotal <= 0 {
		return nil, fmt.Errorf("%w: order id and positive total required", ErrInvalidAmount)
	}

	a, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !a.IsActive() {
		return nil, ErrAffiliateInactive
	}

	release, err := s.lockAffiliate(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.now().UTC()
	percent := s.config.PercentFor(a.CurrentLevel)
	c := &Commission{
		ID:          uuid.New(),
		AffiliateID: a.ID,
		OrderID:     orderID,
		OrderTotal:  orderTotal,
		Level:       a.CurrentLevel,
		Percent:     percent,
		Amount:      CommissionAmount(orderTotal, percent),
		Status:      CommissionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.RecordAccrual(ctx, c); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "commission accrued",
		slog.String("affiliate_id", a.ID.String()),
		slog.String("order_id", orderID),
		slog.Int64("amount", c.Amount))
	return c, nil
}

// Confirm settles the commission for a delivered order: the row moves to
// approved and the affiliate's earnings, available balance, and delivered
// count grow, exactly once. The level is recomputed from the new delivered
// count and only ever moves up.
func (s *Service) Confirm(ctx context.Context, orderID string) (*Commission, bool, error) {
	c, err := s.store.GetCommissionByOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	release, err := s.lockAffiliate(ctx, c.AffiliateID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	a, err := s.store.GetAffiliate(ctx, c.AffiliateID)
	if err != nil {
		return nil, false, err
	}
	newLevel := LevelFor(a.DeliveredOrders+1, s.thresholds)

	applied, err := s.store.ApproveCommission(ctx, c.ID, newLevel, s.now().UTC())
	if err != nil {
		return nil, false, err
	}
	if !applied {
		current, err := s.store.GetCommission(ctx, c.ID)
		return current, false, err
	}

	if err := s.verifyBalance(ctx, c.AffiliateID); err != nil {
		return nil, false, err
	}

	s.log.InfoContext(ctx, "commission confirmed",
		slog.String("affiliate_id", c.AffiliateID.String()),
		slog.String("order_id", orderID),
		slog.Int64("amount", c.Amount),
		slog.Int("level", newLevel))

	current, err := s.store.GetCommission(ctx, c.ID)
	return current, true, err
}

// Reverse cancels the commission for a cancelled order. An approved
// commission gives its amount back; a pending one just closes. When a
// withdrawal already consumed the funds the balance goes negative and the
// call reports ErrNegativeBalance: the arithmetic stays consistent, the
// condition needs a human.
func (s *Service) Reverse(ctx context.Context, orderID string) (*Commission, bool, error) {
	c, err := s.store.GetCommissionByOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}

	release, err := s.lockAffiliate(ctx, c.AffiliateID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	from, applied, err := s.store.CancelCommission(ctx, c.ID, s.now().UTC())
	if err != nil {
		return nil, false, err
	}
	current, getErr := s.store.GetCommission(ctx, c.ID)
	if getErr != nil {
		return nil, false, getErr
	}
	if !applied {
		return current, false, nil
	}

	if from == CommissionApproved {
		a, err := s.store.GetAffiliate(ctx, c.AffiliateID)
		if err != nil {
			return nil, false, err
		}
		if err := a.CheckBalance(); err != nil {
			s.log.ErrorContext(ctx, "balance invariant violated after reversal",
				slog.String("affiliate_id", a.ID.String()))
			return nil, false, err
		}
		if a.AvailableBalance < 0 {
			s.log.ErrorContext(ctx, "reversal left a negative balance",
				slog.String("affiliate_id", a.ID.String()),
				slog.String("order_id", orderID),
				slog.Int64("balance", a.AvailableBalance))
			return current, true, ErrNegativeBalance
		}
	}

	s.log.InfoContext(ctx, "commission reversed",
		slog.String("affiliate_id", c.AffiliateID.String()),
		slog.String("order_id", orderID))
	return current, true, nil
}

// ProgressOf reports how far an affiliate is toward the next level.
func (s *Service) ProgressOf(ctx context.Context, id uuid.UUID) (Progress, error) {
	a, err := s.store.GetAffiliate(ctx, id)
	if err != nil {
		return Progress{}, err
	}
	return ProgressTo(a.CurrentLevel, a.DeliveredOrders, s.thresholds), nil
}

// ListCommissions returns an affiliate's commission history, newest first.
func (s *Service) ListCommissions(ctx context.Context, id uuid.UUID, limit int) ([]Commission, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListCommissions(ctx, id, limit)
}

// RequestWithdrawal opens a payout request. The amount is validated against
// the current available balance under the affiliate lock, so concurrent
// requests see each other; an overdraw is rejected outright, nothing is
// persisted. Funds stay available until completion.
func (s *Service) RequestWithdrawal(ctx context.Context, affiliateID uuid.UUID, amount int64, method, account string) (*Withdrawal, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount < s.config.MinWithdrawal {
		return nil, fmt.Errorf("%w: minimum is %d", ErrBelowMinimum, s.config.MinWithdrawal)
	}

	release, err := s.lockAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	defer release()

	a, err := s.store.GetAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, err
	}
	if amount > a.AvailableBalance {
		return nil, ErrInsufficientBalance
	}

	now := s.now().UTC()
	w := &Withdrawal{
		ID:          uuid.New(),
		AffiliateID: affiliateID,
		Amount:      amount,
		Status:      WithdrawalPending,
		Method:      method,
		Account:     account,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "withdrawal requested",
		slog.String("affiliate_id", affiliateID.String()),
		slog.Int64("amount", amount))
	return w, nil
}

// ApproveWithdrawal moves a pending request to approved. Idempotent: an
// already-decided request reports applied=false.
func (s *Service) ApproveWithdrawal(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.store.SetWithdrawalStatus(ctx, id, WithdrawalPending, WithdrawalApproved, "", s.now().UTC())
}

// RejectWithdrawal closes a pending request without touching the balance.
func (s *Service) RejectWithdrawal(ctx context.Context, id uuid.UUID, note string) (bool, error) {
	return s.store.SetWithdrawalStatus(ctx, id, WithdrawalPending, WithdrawalRejected, note, s.now().UTC())
}

// CompleteWithdrawal pays out an approved request: the balance drops and
// total withdrawn grows atomically with the status flip. The balance is
// re-checked at this point; a reversal since approval may have consumed it.
func (s *Service) CompleteWithdrawal(ctx context.Context, id uuid.UUID) (bool, error) {
	w, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return false, err
	}

	release, err := s.lockAffiliate(ctx, w.AffiliateID)
	if err != nil {
		return false, err
	}
	defer release()

	applied, err := s.store.CompleteWithdrawal(ctx, id, s.now().UTC())
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	if err := s.verifyBalance(ctx, w.AffiliateID); err != nil {
		return false, err
	}

	s.log.InfoContext(ctx, "withdrawal completed",
		slog.String("affiliate_id", w.AffiliateID.String()),
		slog.Int64("amount", w.Amount))
	return true, nil
}

// ListWithdrawals returns an affiliate's payout history, newest first.
func (s *Service) ListWithdrawals(ctx context.Context, id uuid.UUID, limit int) ([]Withdrawal, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListWithdrawals(ctx, id, limit)
}

// verifyBalance re-reads the row and checks the ledger invariant. A
// violation is logged and surfaced; it must never pass silently.
func (s *Service) verifyBalance(ctx context.Context, id uuid.UUID) error {
	a, err := s.store.GetAffiliate(ctx, id)
	if err != nil {
		return err
	}
	if err := a.CheckBalance(); err != nil {
		s.log.ErrorContext(ctx, "balance invariant violated",
			slog.String("affiliate_id", id.String()),
			slog.Int64("earnings", a.TotalEarnings),
			slog.Int64("withdrawn", a.TotalWithdrawn),
			slog.Int64("available", a.AvailableBalance))
		return err
	}
	return nil
}

// generateCode builds a short referral code from random uuid bytes.
func generateCode() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:10])
}
