package affiliate_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplane/shoplane/pkg/affiliate"
)

func testConfig() affiliate.ProgramConfig {
	return affiliate.ProgramConfig{
		SalesThresholds: affiliate.Thresholds{2: 10, 3: 25, 4: 50, 5: 100},
		Levels: map[int]affiliate.LevelConfig{
			1: {Percent: 3},
			2: {Percent: 5},
			3: {Percent: 7},
			4: {Percent: 10},
			5: {Percent: 12},
		},
		MinWithdrawal: 500,
	}
}

func newTestService(t *testing.T) (*affiliate.Service, *affiliate.MemoryStore) {
	t.Helper()

	store := affiliate.NewMemoryStore()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	svc := affiliate.NewService(store, testConfig(), affiliate.NewMemoryLocker(),
		affiliate.WithClock(func() time.Time { return now }))
	return svc, store
}

func enroll(t *testing.T, svc *affiliate.Service, code string) *affiliate.Affiliate {
	t.Helper()

	a, err := svc.Enroll(context.Background(), uuid.New(), code)
	require.NoError(t, err)
	return a
}

// confirmOrders pushes n delivered orders through the ledger.
func confirmOrders(t *testing.T, svc *affiliate.Service, code string, n int, total int64) {
	t.Helper()

	ctx := context.Background()
	for i := 0; i < n; i++ {
		orderID := uuid.NewString()
		_, err := svc.Accrue(ctx, code, orderID, total)
		require.NoError(t, err)
		_, applied, err := svc.Confirm(ctx, orderID)
		require.NoError(t, err)
		require.True(t, applied)
	}
}

func TestService_Enroll(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Enroll(ctx, uuid.New(), "summer24")
	require.NoError(t, err)
	assert.Equal(t, "SUMMER24", a.Code)
	assert.Equal(t, affiliate.MinLevel, a.CurrentLevel)
	assert.Equal(t, affiliate.AffiliateActive, a.Status)

	_, err = svc.Enroll(ctx, uuid.New(), "summer24")
	assert.ErrorIs(t, err, affiliate.ErrCodeTaken)

	generated, err := svc.Enroll(ctx, uuid.New(), "")
	require.NoError(t, err)
	assert.Len(t, generated.Code, 10)

	_, err = svc.Enroll(ctx, uuid.New(), "ab")
	assert.ErrorIs(t, err, affiliate.ErrInvalidCode)
}

func TestService_Accrue(t *testing.T) {
	t.Parallel()

	t.Run("freezes the current tier percentage", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "acc1")

		c, err := svc.Accrue(context.Background(), "acc1", "order-1", 1000)
		require.NoError(t, err)
		assert.Equal(t, a.ID, c.AffiliateID)
		assert.Equal(t, affiliate.CommissionPending, c.Status)
		assert.Equal(t, 1, c.Level)
		assert.Equal(t, 3.0, c.Percent)
		assert.Equal(t, int64(30), c.Amount)

		// Balances untouched before delivery.
		fresh, err := svc.Get(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Zero(t, fresh.TotalEarnings)
		assert.Zero(t, fresh.AvailableBalance)
		assert.Equal(t, int64(1), fresh.TotalOrders)
	})

	t.Run("duplicate order is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		enroll(t, svc, "acc2")

		_, err := svc.Accrue(context.Background(), "acc2", "order-1", 1000)
		require.NoError(t, err)
		_, err = svc.Accrue(context.Background(), "acc2", "order-1", 1000)
		assert.ErrorIs(t, err, affiliate.ErrDuplicateCommission)
	})

	t.Run("suspended affiliate cannot accrue", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "acc3")
		require.NoError(t, svc.Suspend(context.Background(), a.ID))

		_, err := svc.Accrue(context.Background(), "acc3", "order-1", 1000)
		assert.ErrorIs(t, err, affiliate.ErrAffiliateInactive)
	})
}

func TestService_Confirm(t *testing.T) {
	t.Parallel()

	t.Run("double confirm settles once", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "cnf1")
		ctx := context.Background()

		// Order total 1000 at 5% must accrue 50. Tier 2 requires seeding
		// delivered sales first.
		confirmOrders(t, svc, "cnf1", 10, 100)
		leveled, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 2, leveled.CurrentLevel)

		c, err := svc.Accrue(ctx, "cnf1", "order-x", 1000)
		require.NoError(t, err)
		require.Equal(t, 5.0, c.Percent)
		require.Equal(t, int64(50), c.Amount)

		before, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)

		first, applied, err := svc.Confirm(ctx, "order-x")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, affiliate.CommissionApproved, first.Status)

		second, applied, err := svc.Confirm(ctx, "order-x")
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Equal(t, affiliate.CommissionApproved, second.Status)

		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, before.TotalEarnings+50, after.TotalEarnings)
		assert.Equal(t, before.AvailableBalance+50, after.AvailableBalance)
		assert.Equal(t, before.DeliveredOrders+1, after.DeliveredOrders)
		require.NoError(t, after.CheckBalance())
	})

	t.Run("level rises with delivered orders and never falls", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "cnf2")
		ctx := context.Background()

		confirmOrders(t, svc, "cnf2", 25, 100)
		leveled, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, leveled.CurrentLevel)

		// Reversing every order does not demote.
		commissions, err := svc.ListCommissions(ctx, a.ID, 100)
		require.NoError(t, err)
		for _, c := range commissions {
			_, _, err := svc.Reverse(ctx, c.OrderID)
			require.NoError(t, err)
		}
		still, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, still.CurrentLevel)
		require.NoError(t, still.CheckBalance())
	})

	t.Run("unknown order", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		_, _, err := svc.Confirm(context.Background(), "no-such-order")
		assert.ErrorIs(t, err, affiliate.ErrCommissionNotFound)
	})
}

func TestService_Reverse(t *testing.T) {
	t.Parallel()

	t.Run("approved reversal refunds the balance", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "rev1")
		ctx := context.Background()

		_, err := svc.Accrue(ctx, "rev1", "order-1", 1000)
		require.NoError(t, err)
		_, _, err = svc.Confirm(ctx, "order-1")
		require.NoError(t, err)

		c, applied, err := svc.Reverse(ctx, "order-1")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, affiliate.CommissionCancelled, c.Status)

		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Zero(t, after.TotalEarnings)
		assert.Zero(t, after.AvailableBalance)
		require.NoError(t, after.CheckBalance())
	})

	t.Run("pending reversal leaves balances alone", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "rev2")
		ctx := context.Background()

		_, err := svc.Accrue(ctx, "rev2", "order-1", 1000)
		require.NoError(t, err)

		c, applied, err := svc.Reverse(ctx, "order-1")
		require.NoError(t, err)
		assert.True(t, applied)
		assert.Equal(t, affiliate.CommissionCancelled, c.Status)

		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Zero(t, after.TotalEarnings)
		require.NoError(t, after.CheckBalance())
	})

	t.Run("double reversal is a no-op", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		enroll(t, svc, "rev3")
		ctx := context.Background()

		_, err := svc.Accrue(ctx, "rev3", "order-1", 1000)
		require.NoError(t, err)
		_, _, err = svc.Confirm(ctx, "order-1")
		require.NoError(t, err)

		_, applied, err := svc.Reverse(ctx, "order-1")
		require.NoError(t, err)
		require.True(t, applied)

		_, applied, err = svc.Reverse(ctx, "order-1")
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("reversal after payout reports the negative balance", func(t *testing.T) {
		t.Parallel()

		svc, _ := newTestService(t)
		a := enroll(t, svc, "rev4")
		ctx := context.Background()

		_, err := svc.Accrue(ctx, "rev4", "order-1", 20000)
		require.NoError(t, err)
		_, _, err = svc.Confirm(ctx, "order-1")
		require.NoError(t, err)

		// Pay the whole balance out, then cancel the order behind it.
		w, err := svc.RequestWithdrawal(ctx, a.ID, 600, "bkash", "017xxxxxxxx")
		require.NoError(t, err)
		_, err = svc.ApproveWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		_, err = svc.CompleteWithdrawal(ctx, w.ID)
		require.NoError(t, err)

		_, applied, err := svc.Reverse(ctx, "order-1")
		assert.ErrorIs(t, err, affiliate.ErrNegativeBalance)
		assert.True(t, applied)

		// Arithmetic stays consistent even in the reportable condition.
		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		require.NoError(t, after.CheckBalance())
		assert.Negative(t, after.AvailableBalance)
	})
}

func TestService_Withdrawals(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T) (*affiliate.Service, *affiliate.Affiliate) {
		t.Helper()
		svc, _ := newTestService(t)
		a := enroll(t, svc, "wd"+uuid.NewString()[:6])
		ctx := context.Background()
		// 20000 at 3% -> 600 available.
		_, err := svc.Accrue(ctx, a.Code, "order-1", 20000)
		require.NoError(t, err)
		_, _, err = svc.Confirm(ctx, "order-1")
		require.NoError(t, err)
		return svc, a
	}

	t.Run("overdraw is rejected without persisting", func(t *testing.T) {
		t.Parallel()

		svc, a := seed(t)
		ctx := context.Background()

		_, err := svc.RequestWithdrawal(ctx, a.ID, 601, "bkash", "017xxxxxxxx")
		assert.ErrorIs(t, err, affiliate.ErrInsufficientBalance)

		pending, err := svc.ListWithdrawals(ctx, a.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("below minimum is rejected", func(t *testing.T) {
		t.Parallel()

		svc, a := seed(t)
		_, err := svc.RequestWithdrawal(context.Background(), a.ID, 499, "bkash", "017xxxxxxxx")
		assert.ErrorIs(t, err, affiliate.ErrBelowMinimum)
	})

	t.Run("full lifecycle decrements only at completion", func(t *testing.T) {
		t.Parallel()

		svc, a := seed(t)
		ctx := context.Background()

		w, err := svc.RequestWithdrawal(ctx, a.ID, 600, "bkash", "017xxxxxxxx")
		require.NoError(t, err)
		assert.Equal(t, affiliate.WithdrawalPending, w.Status)

		// Requesting does not reserve funds.
		mid, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(600), mid.AvailableBalance)

		applied, err := svc.ApproveWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = svc.CompleteWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		require.True(t, applied)

		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Zero(t, after.AvailableBalance)
		assert.Equal(t, int64(600), after.TotalWithdrawn)
		require.NoError(t, after.CheckBalance())

		// Completion is idempotent.
		applied, err = svc.CompleteWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("rejection never touches the balance", func(t *testing.T) {
		t.Parallel()

		svc, a := seed(t)
		ctx := context.Background()

		w, err := svc.RequestWithdrawal(ctx, a.ID, 600, "bkash", "017xxxxxxxx")
		require.NoError(t, err)

		applied, err := svc.RejectWithdrawal(ctx, w.ID, "account mismatch")
		require.NoError(t, err)
		require.True(t, applied)

		got, err := svc.ListWithdrawals(ctx, a.ID, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, affiliate.WithdrawalRejected, got[0].Status)
		assert.Equal(t, "account mismatch", got[0].Note)

		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(600), after.AvailableBalance)

		// A rejected request cannot be completed.
		applied, err = svc.CompleteWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("completion fails when a reversal consumed the balance", func(t *testing.T) {
		t.Parallel()

		svc, a := seed(t)
		ctx := context.Background()

		w, err := svc.RequestWithdrawal(ctx, a.ID, 600, "bkash", "017xxxxxxxx")
		require.NoError(t, err)
		_, err = svc.ApproveWithdrawal(ctx, w.ID)
		require.NoError(t, err)

		_, _, err = svc.Reverse(ctx, "order-1")
		require.NoError(t, err)

		_, err = svc.CompleteWithdrawal(ctx, w.ID)
		assert.ErrorIs(t, err, affiliate.ErrInsufficientBalance)

		after, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		require.NoError(t, after.CheckBalance())
	})
}

// The ledger invariant holds across an arbitrary interleaving of accruals,
// confirmations, reversals, and payouts.
func TestLedgerInvariant(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	a := enroll(t, svc, "ledger")
	ctx := context.Background()

	check := func() {
		fresh, err := svc.Get(ctx, a.ID)
		require.NoError(t, err)
		require.NoError(t, fresh.CheckBalance())
	}

	for i := 0; i < 30; i++ {
		orderID := uuid.NewString()
		_, err := svc.Accrue(ctx, "ledger", orderID, 10000)
		require.NoError(t, err)
		check()

		switch i % 3 {
		case 0:
			_, _, err = svc.Confirm(ctx, orderID)
			require.NoError(t, err)
		case 1:
			_, _, err = svc.Confirm(ctx, orderID)
			require.NoError(t, err)
			_, _, err = svc.Reverse(ctx, orderID)
			require.NoError(t, err)
		case 2:
			_, _, err = svc.Reverse(ctx, orderID)
			require.NoError(t, err)
		}
		check()
	}

	fresh, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	if fresh.AvailableBalance >= 500 {
		w, err := svc.RequestWithdrawal(ctx, a.ID, 500, "nagad", "018xxxxxxxx")
		require.NoError(t, err)
		_, err = svc.ApproveWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		_, err = svc.CompleteWithdrawal(ctx, w.ID)
		require.NoError(t, err)
		check()
	}
}
