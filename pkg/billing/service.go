package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shoplane/shoplane/pkg/subscription"
)

// Locker serializes reconciliation of a single transaction across processes.
// Lock blocks until the key is held or ctx expires; the returned func
// releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

const (
	// defaultStaleAfter is how long a pending invoice may sit without a
	// gateway verdict before the sweep fails it.
	defaultStaleAfter = 2 * time.Hour

	sweepBatchSize = 200
)

// RenewalService orchestrates the renewal cycle: it opens checkout sessions
// against the gateway, settles invoices from validated gateway callbacks,
// and applies the paid period to the subscription record.
type RenewalService struct {
	invoices InvoiceStore
	subs     subscription.Store
	gateway  Gateway
	locker   Locker
	log      *slog.Logger
	now      func() time.Time

	callbacks  CallbackURLs
	staleAfter time.Duration
}

// RenewalOption configures a RenewalService.
type RenewalOption func(*RenewalService)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) RenewalOption {
	return func(s *RenewalService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger for renewal events.
func WithLogger(log *slog.Logger) RenewalOption {
	return func(s *RenewalService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStaleAfter sets how long pending invoices live before the sweep
// fails them. Panics on non-positive durations.
func WithStaleAfter(d time.Duration) RenewalOption {
	return func(s *RenewalService) {
		if d <= 0 {
			panic("billing: stale-after duration must be positive")
		}
		s.staleAfter = d
	}
}

// NewRenewalService creates the orchestrator. All dependencies are required;
// nil dependencies panic to surface wiring mistakes at startup.
func NewRenewalService(
	invoices InvoiceStore,
	subs subscription.Store,
	gateway Gateway,
	locker Locker,
	callbacks CallbackURLs,
	opts ...RenewalOption,
) *RenewalService {
	if invoices == nil {
		panic("billing: invoice store is required")
	}
	if subs == nil {
		panic("billing: subscription store is required")
	}
	if gateway == nil {
		panic("billing: gateway is required")
	}
	if locker == nil {
		panic("billing: locker is required")
	}

	s := &RenewalService{
		invoices:   invoices,
		subs:       subs,
		gateway:    gateway,
		locker:     locker,
		log:        slog.Default(),
		now:        time.Now,
		callbacks:  callbacks,
		staleAfter: defaultStaleAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenewalRequest starts a checkout for a subscription. Months overrides the
// subscription's billing cycle length when positive; the charge is prorated
// from the cycle price.
type RenewalRequest struct {
	SubscriptionID uuid.UUID
	Months         int
	CustomerEmail  string

	// PriceID is passed through to catalog-priced gateways.
	PriceID string
}

// Renewal is an opened checkout: the pending invoice plus the session the
// customer must be redirected to.
type Renewal struct {
	Invoice *Invoice
	Session *Session
}

// StartRenewal opens a hosted checkout session for the subscription's next
// billing period. The new period window is computed now and frozen on the
// invoice. At most one pending invoice may exist per subscription; a second
// call while one is open returns ErrRenewalPending.
//
// If the gateway rejects the session the pending invoice is removed again,
// so a retry starts clean.
func (s *RenewalService) StartRenewal(ctx context.Context, req RenewalRequest) (*Renewal, error) {
	sub, err := s.subs.Get(ctx, req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == subscription.StatusCancelled {
		return nil, fmt.Errorf("%w: subscription is cancelled", subscription.ErrInvalidSubscriptionState)
	}

	if _, err := s.invoices.FindPendingBySubscription(ctx, sub.ID); err == nil {
		return nil, ErrRenewalPending
	} else if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	months := req.Months
	if months <= 0 {
		months = sub.CycleMonths
	}

	amount := sub.Amount
	if months != sub.CycleMonths && sub.CycleMonths > 0 {
		amount.Amount = sub.Amount.Amount * int64(months) / int64(sub.CycleMonths)
	}
	if amount.Amount <= 0 {
		return nil, fmt.Errorf("%w: nothing to charge", subscription.ErrInvalidSubscriptionState)
	}

	// Renewing before expiry extends from the current period end; renewing
	// after expiry starts a fresh period from now. No paid time is lost
	// either way.
	periodStart := now
	if sub.CurrentPeriodEnd.After(now) {
		periodStart = sub.CurrentPeriodEnd
	}
	periodEnd := periodStart.AddDate(0, months, 0)

	inv := &Invoice{
		ID:             uuid.New(),
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		Amount:         amount,
		Status:         InvoicePending,
		TransactionID:  uuid.NewString(),
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, err
	}

	session, err := s.gateway.Initiate(ctx, InitiateRequest{
		TransactionID: inv.TransactionID,
		Amount:        amount,
		TenantID:      sub.TenantID,
		CustomerEmail: req.CustomerEmail,
		Callbacks:     s.callbacks,
		PriceID:       req.PriceID,
	})
	if err != nil {
		if delErr := s.invoices.Delete(ctx, inv.ID); delErr != nil {
			s.log.ErrorContext(ctx, "failed to roll back invoice after gateway error",
				slog.String("invoice_id", inv.ID.String()),
				slog.String("error", delErr.Error()))
		}
		return nil, err
	}

	if err := s.invoices.SetGatewaySession(ctx, inv.ID, session.SessionID); err != nil {
		s.log.WarnContext(ctx, "failed to record gateway session id",
			slog.String("invoice_id", inv.ID.String()),
			slog.String("error", err.Error()))
	}
	inv.GatewaySessionID = session.SessionID

	s.log.InfoContext(ctx, "renewal checkout opened",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("transaction_id", inv.TransactionID),
		slog.Int("months", months))

	return &Renewal{Invoice: inv, Session: session}, nil
}

// CallbackResult is what a gateway callback reconciled to.
type CallbackResult struct {
	Invoice *Invoice
	// Applied reports whether this call performed the settlement. False
	// means the invoice was already terminal and nothing changed.
	Applied bool
}

// Reconcile settles an invoice from a gateway callback or IPN. Success
// outcomes are never trusted from the redirect alone: the gateway is asked
// to validate the transaction server-side before the invoice is marked paid
// and the subscription period is extended.
//
// Reconcile is idempotent per transaction: duplicate deliveries, and
// success/failure deliveries racing each other, resolve to whichever verdict
// settled the invoice first.
func (s *RenewalService) Reconcile(ctx context.Context, transactionID string, outcome Outcome, validationID string) (*CallbackResult, error) {
	if transactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", ErrGatewayInvalidPayload)
	}

	release, err := s.locker.Lock(ctx, "billing:reconcile:"+transactionID)
	if err != nil {
		return nil, err
	}
	defer release()

	inv, err := s.invoices.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return &CallbackResult{Invoice: inv, Applied: false}, nil
	}

	switch outcome {
	case OutcomeSuccess:
		return s.settlePaid(ctx, inv, validationID)
	case OutcomeFailed, OutcomeCancelled:
		return s.settleFailed(ctx, inv, outcome)
	default:
		return nil, fmt.Errorf("%w: unknown outcome %q", ErrGatewayInvalidPayload, outcome)
	}
}

func (s *RenewalService) settlePaid(ctx context.Context, inv *Invoice, validationID string) (*CallbackResult, error) {
	validation, err := s.gateway.Validate(ctx, validationID)
	if err != nil {
		return nil, err
	}
	if validation.Status != ValidationValid {
		s.log.WarnContext(ctx, "gateway rejected success callback",
			slog.String("transaction_id", inv.TransactionID),
			slog.String("validation_id", validationID))
		return nil, fmt.Errorf("%w: gateway did not confirm the transaction", ErrGatewayInvalidPayload)
	}
	if validation.TransactionID != "" && validation.TransactionID != inv.TransactionID {
		return nil, fmt.Errorf("%w: validation is for transaction %q", ErrGatewayInvalidPayload, validation.TransactionID)
	}
	if validation.Amount != 0 {
		if validation.Amount != inv.Amount.Amount ||
			(validation.Currency != "" && validation.Currency != inv.Amount.Currency) {
			return nil, fmt.Errorf("%w: validated amount %d %s does not match invoice %d %s",
				ErrGatewayInvalidPayload,
				validation.Amount, validation.Currency,
				inv.Amount.Amount, inv.Amount.Currency)
		}
	}

	paidAt := s.now().UTC()
	applied, err := s.invoices.MarkPaid(ctx, inv.ID, paidAt)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the settle race to another process.
		current, err := s.invoices.GetByTransactionID(ctx, inv.TransactionID)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Invoice: current, Applied: false}, nil
	}

	inv.Status = InvoicePaid
	inv.PaidAt = &paidAt

	sub, err := s.subs.Get(ctx, inv.SubscriptionID)
	if err != nil {
		return nil, s.settlementIncomplete(ctx, inv, err)
	}

	ext := subscription.PeriodExtension{
		PeriodStart: inv.PeriodStart,
		PeriodEnd:   inv.PeriodEnd,
		AmountPaid:  inv.Amount.Amount,
		PaidAt:      paidAt,
	}
	if sub.GraceDays > 0 {
		graceEnd := inv.PeriodEnd.AddDate(0, 0, sub.GraceDays)
		ext.GraceEndsAt = &graceEnd
	}
	if err := s.subs.ExtendPeriod(ctx, inv.SubscriptionID, ext); err != nil {
		return nil, s.settlementIncomplete(ctx, inv, err)
	}

	s.log.InfoContext(ctx, "renewal settled",
		slog.String("subscription_id", inv.SubscriptionID.String()),
		slog.String("transaction_id", inv.TransactionID),
		slog.Int64("amount", inv.Amount.Amount),
		slog.Time("period_end", inv.PeriodEnd))

	return &CallbackResult{Invoice: inv, Applied: true}, nil
}

// settlementIncomplete records the paid-but-not-extended condition. The
// invoice stays paid: the money moved, so the fix is applying the extension,
// never refusing the payment.
func (s *RenewalService) settlementIncomplete(ctx context.Context, inv *Invoice, cause error) error {
	s.log.ErrorContext(ctx, "invoice paid but period extension failed",
		slog.String("invoice_id", inv.ID.String()),
		slog.String("subscription_id", inv.SubscriptionID.String()),
		slog.String("transaction_id", inv.TransactionID),
		slog.String("error", cause.Error()))
	return errors.Join(ErrSettlementIncomplete, cause)
}

func (s *RenewalService) settleFailed(ctx context.Context, inv *Invoice, outcome Outcome) (*CallbackResult, error) {
	applied, err := s.invoices.MarkFailed(ctx, inv.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := s.invoices.GetByTransactionID(ctx, inv.TransactionID)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{Invoice: current, Applied: false}, nil
	}

	inv.Status = InvoiceFailed

	s.log.InfoContext(ctx, "renewal failed",
		slog.String("subscription_id", inv.SubscriptionID.String()),
		slog.String("transaction_id", inv.TransactionID),
		slog.String("outcome", string(outcome)))

	return &CallbackResult{Invoice: inv, Applied: true}, nil
}

// SweepStale fails pending invoices that never received a gateway verdict,
// so their subscriptions can open a fresh renewal. Returns how many invoices
// were failed.
func (s *RenewalService) SweepStale(ctx context.Context) (int, error) {
	now := s.now().UTC()
	cutoff := now.Add(-s.staleAfter)

	stale, err := s.invoices.ListStalePending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	failed := 0
	for i := range stale {
		inv := &stale[i]
		applied, err := s.invoices.MarkFailed(ctx, inv.ID, now)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to expire stale invoice",
				slog.String("invoice_id", inv.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if applied {
			failed++
		}
	}

	if failed > 0 {
		s.log.InfoContext(ctx, "stale invoices expired", slog.Int("count", failed))
	}
	return failed, nil
}
