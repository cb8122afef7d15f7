package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryInvoiceStore is an in-process InvoiceStore for tests and single-node
// setups. Conditional transitions mirror the SQL store's semantics.
type MemoryInvoiceStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*Invoice
	byTxID   map[string]uuid.UUID
}

func NewMemoryInvoiceStore() *MemoryInvoiceStore {
	return &MemoryInvoiceStore{
		invoices: make(map[uuid.UUID]*Invoice),
		byTxID:   make(map[string]uuid.UUID),
	}
}

func (s *MemoryInvoiceStore) Create(ctx context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byTxID[inv.TransactionID]; ok {
		return ErrDuplicateTransaction
	}
	cp := *inv
	s.invoices[inv.ID] = &cp
	s.byTxID[inv.TransactionID] = inv.ID
	return nil
}

func (s *MemoryInvoiceStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	delete(s.byTxID, inv.TransactionID)
	delete(s.invoices, id)
	return nil
}

func (s *MemoryInvoiceStore) GetByTransactionID(ctx context.Context, txID string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTxID[txID]
	if !ok {
		return nil, ErrInvoiceNotFound
	}
	cp := *s.invoices[id]
	return &cp, nil
}

func (s *MemoryInvoiceStore) FindPendingBySubscription(ctx context.Context, subID uuid.UUID) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invoices {
		if inv.SubscriptionID == subID && inv.Status == InvoicePending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrInvoiceNotFound
}

func (s *MemoryInvoiceStore) SetGatewaySession(ctx context.Context, id uuid.UUID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return ErrInvoiceNotFound
	}
	inv.GatewaySessionID = sessionID
	return nil
}

func (s *MemoryInvoiceStore) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return false, ErrInvoiceNotFound
	}
	if inv.Status != InvoicePending {
		return false, nil
	}
	inv.Status = InvoicePaid
	inv.PaidAt = &paidAt
	inv.UpdatedAt = paidAt
	return true, nil
}

func (s *MemoryInvoiceStore) MarkFailed(ctx context.Context, id uuid.UUID, failedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return false, ErrInvoiceNotFound
	}
	if inv.Status != InvoicePending {
		return false, nil
	}
	inv.Status = InvoiceFailed
	inv.UpdatedAt = failedAt
	return true, nil
}

func (s *MemoryInvoiceStore) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Invoice
	for _, inv := range s.invoices {
		if inv.Status == InvoicePending && inv.CreatedAt.Before(cutoff) {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ InvoiceStore = (*MemoryInvoiceStore)(nil)
