package subscription

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used in tests and single-node setups.
// Mutations are serialized by a single mutex; the SQL store achieves the
// same per-record discipline with conditional updates.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]*Subscription)}
}

func (s *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.subs {
		if existing.TenantID == sub.TenantID && existing.Status.IsLive() {
			return ErrSubscriptionAlreadyExists
		}
	}

	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryStore) GetLiveByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.TenantID == tenantID && sub.Status.IsLive() {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

func (s *MemoryStore) ExtendPeriod(ctx context.Context, id uuid.UUID, ext PeriodExtension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}

	sub.Status = StatusActive
	sub.CurrentPeriodStart = ext.PeriodStart
	sub.CurrentPeriodEnd = ext.PeriodEnd
	sub.GracePeriodEndsAt = ext.GraceEndsAt
	sub.TrialEndsAt = nil
	sub.TotalPaid += ext.AmountPaid
	sub.RenewalCount++
	paidAt := ext.PaidAt
	sub.LastPaymentAt = &paidAt
	sub.UpdatedAt = ext.PaidAt
	return nil
}

// Remove drops a record. Production records are never deleted; this exists
// for tests that need to simulate missing data.
func (s *MemoryStore) Remove(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, id)
	return nil
}

func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Subscription
	for _, sub := range s.subs {
		if sub.Status == status {
			out = append(out, *sub)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
