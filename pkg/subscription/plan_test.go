package subscription_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoplane/shoplane/pkg/subscription"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	starter := subscription.Plan{
		ID:          "starter",
		Name:        "Starter",
		Price:       subscription.Money{Amount: 1500, Currency: "USD"},
		CycleMonths: 1,
		GraceDays:   3,
		TrialDays:   14,
		Public:      true,
		Features: map[string]subscription.FeatureValue{
			"products":      subscription.NumberFeature(100),
			"custom_domain": subscription.BoolFeature(false),
		},
	}
	free := subscription.Plan{
		ID:     "free",
		Name:   "Free",
		Public: false,
	}

	t.Run("get and public listing", func(t *testing.T) {
		t.Parallel()

		catalog, err := subscription.NewCatalog(context.Background(),
			subscription.NewMemorySource(starter, free))
		require.NoError(t, err)

		got, err := catalog.Get("starter")
		require.NoError(t, err)
		assert.Equal(t, "Starter", got.Name)

		_, err = catalog.Get("enterprise")
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)

		public := catalog.Public()
		require.Len(t, public, 1)
		assert.Equal(t, "starter", public[0].ID)
	})

	t.Run("paid plan without cycle is rejected", func(t *testing.T) {
		t.Parallel()

		bad := starter
		bad.CycleMonths = 0
		_, err := subscription.NewCatalog(context.Background(), subscription.NewMemorySource(bad))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})

	t.Run("paid plan without currency is rejected", func(t *testing.T) {
		t.Parallel()

		bad := starter
		bad.Price.Currency = ""
		_, err := subscription.NewCatalog(context.Background(), subscription.NewMemorySource(bad))
		assert.ErrorIs(t, err, subscription.ErrInvalidPlanConfiguration)
	})
}

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	const catalogYAML = `plans:
  - id: starter
    name: Starter
    price:
      amount: 1500
      currency: USD
    cycle_months: 1
    trial_days: 14
    grace_days: 3
    public: true
    features:
      products: 100
      custom_domain: false
      storage: unlimited
      support: email
      regions: [eu, us]
`
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o600))

	catalog, err := subscription.NewCatalog(context.Background(), subscription.NewYAMLSource(path))
	require.NoError(t, err)

	plan, err := catalog.Get("starter")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), plan.Price.Amount)
	assert.Equal(t, 1, plan.CycleMonths)

	limit, ok := plan.Features["products"].Limit()
	require.True(t, ok)
	assert.Equal(t, int64(100), limit)

	assert.False(t, plan.HasFeature("custom_domain"))

	storage, ok := plan.Features["storage"].Limit()
	require.True(t, ok)
	assert.Equal(t, subscription.Unlimited, storage)
	assert.True(t, plan.Features["storage"].Enabled())

	support, ok := plan.Features["support"].Text()
	require.True(t, ok)
	assert.Equal(t, "email", support)

	regions, ok := plan.Features["regions"].List()
	require.True(t, ok)
	assert.Equal(t, []string{"eu", "us"}, regions)
}

func TestPlan_TrialEndsAt(t *testing.T) {
	t.Parallel()

	start := mustTime(t, "2025-06-01T00:00:00Z")

	p := subscription.Plan{TrialDays: 14}
	assert.Equal(t, start.AddDate(0, 0, 14), p.TrialEndsAt(start))

	none := subscription.Plan{}
	assert.Equal(t, start, none.TrialEndsAt(start))
}
