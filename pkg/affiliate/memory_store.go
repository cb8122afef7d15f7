package affiliate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and single-node setups. One
// mutex serializes all mutations; the SQL and document stores achieve the
// same discipline with conditional updates.
type MemoryStore struct {
	mu          sync.Mutex
	affiliates  map[uuid.UUID]*Affiliate
	byCode      map[string]uuid.UUID
	commissions map[uuid.UUID]*Commission
	byOrder     map[string]uuid.UUID
	withdrawals map[uuid.UUID]*Withdrawal
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		affiliates:  make(map[uuid.UUID]*Affiliate),
		byCode:      make(map[string]uuid.UUID),
		commissions: make(map[uuid.UUID]*Commission),
		byOrder:     make(map[string]uuid.UUID),
		withdrawals: make(map[uuid.UUID]*Withdrawal),
	}
}

func (s *MemoryStore) CreateAffiliate(ctx context.Context, a *Affiliate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byCode[a.Code]; taken {
		return ErrCodeTaken
	}
	cp := *a
	s.affiliates[a.ID] = &cp
	s.byCode[a.Code] = a.ID
	return nil
}

func (s *MemoryStore) GetAffiliate(ctx context.Context, id uuid.UUID) (*Affiliate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getAffiliateLocked(id)
}

func (s *MemoryStore) getAffiliateLocked(id uuid.UUID) (*Affiliate, error) {
	a, ok := s.affiliates[id]
	if !ok {
		return nil, ErrAffiliateNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) GetAffiliateByCode(ctx context.Context, code string) (*Affiliate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCode[code]
	if !ok {
		return nil, ErrAffiliateNotFound
	}
	return s.getAffiliateLocked(id)
}

func (s *MemoryStore) SetAffiliateStatus(ctx context.Context, id uuid.UUID, status AffiliateStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.affiliates[id]
	if !ok {
		return ErrAffiliateNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RecordAccrual(ctx context.Context, c *Commission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byOrder[c.OrderID]; dup {
		return ErrDuplicateCommission
	}
	a, ok := s.affiliates[c.AffiliateID]
	if !ok {
		return ErrAffiliateNotFound
	}

	cp := *c
	s.commissions[c.ID] = &cp
	s.byOrder[c.OrderID] = c.ID
	a.TotalOrders++
	a.UpdatedAt = c.CreatedAt
	return nil
}

func (s *MemoryStore) GetCommission(ctx context.Context, id uuid.UUID) (*Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commissions[id]
	if !ok {
		return nil, ErrCommissionNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) GetCommissionByOrder(ctx context.Context, orderID string) (*Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, ErrCommissionNotFound
	}
	cp := *s.commissions[id]
	return &cp, nil
}

func (s *MemoryStore) ApproveCommission(ctx context.Context, id uuid.UUID, newLevel int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commissions[id]
	if !ok {
		return false, ErrCommissionNotFound
	}
	if c.Status != CommissionPending {
		return false, nil
	}
	a, ok := s.affiliates[c.AffiliateID]
	if !ok {
		return false, ErrAffiliateNotFound
	}

	c.Status = CommissionApproved
	c.ApprovedAt = &at
	c.UpdatedAt = at

	a.TotalEarnings += c.Amount
	a.AvailableBalance += c.Amount
	a.DeliveredOrders++
	if newLevel > a.CurrentLevel {
		a.CurrentLevel = newLevel
	}
	a.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) CancelCommission(ctx context.Context, id uuid.UUID, at time.Time) (CommissionStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commissions[id]
	if !ok {
		return "", false, ErrCommissionNotFound
	}
	if c.Status == CommissionCancelled {
		return CommissionCancelled, false, nil
	}

	from := c.Status
	c.Status = CommissionCancelled
	c.UpdatedAt = at

	if from == CommissionApproved {
		a, ok := s.affiliates[c.AffiliateID]
		if !ok {
			return "", false, ErrAffiliateNotFound
		}
		a.TotalEarnings -= c.Amount
		a.AvailableBalance -= c.Amount
		a.UpdatedAt = at
	}
	return from, true, nil
}

func (s *MemoryStore) ListCommissions(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Commission
	for _, c := range s.commissions {
		if c.AffiliateID == affiliateID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.affiliates[w.AffiliateID]; !ok {
		return ErrAffiliateNotFound
	}
	cp := *w
	s.withdrawals[w.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWithdrawal(ctx context.Context, id uuid.UUID) (*Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *MemoryStore) SetWithdrawalStatus(ctx context.Context, id uuid.UUID, from, to WithdrawalStatus, note string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return false, ErrWithdrawalNotFound
	}
	if w.Status != from {
		return false, nil
	}
	w.Status = to
	if note != "" {
		w.Note = note
	}
	w.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) CompleteWithdrawal(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return false, ErrWithdrawalNotFound
	}
	if w.Status != WithdrawalApproved {
		return false, nil
	}
	a, ok := s.affiliates[w.AffiliateID]
	if !ok {
		return false, ErrAffiliateNotFound
	}
	if a.AvailableBalance < w.Amount {
		return false, ErrInsufficientBalance
	}

	w.Status = WithdrawalCompleted
	w.CompletedAt = &at
	w.UpdatedAt = at

	a.AvailableBalance -= w.Amount
	a.TotalWithdrawn += w.Amount
	a.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) ListWithdrawals(ctx context.Context, affiliateID uuid.UUID, limit int) ([]Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Withdrawal
	for _, w := range s.withdrawals {
		if w.AffiliateID == affiliateID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
