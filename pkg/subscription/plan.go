package subscription

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan is a near-immutable catalog entry. The lifecycle engine only reads
// plans; editing the catalog is an operator concern outside this core.
type Plan struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Price       Money                   `yaml:"price"`
	CycleMonths int                     `yaml:"cycle_months"`
	TrialDays   int                     `yaml:"trial_days"`
	GraceDays   int                     `yaml:"grace_days"`
	Features    map[string]FeatureValue `yaml:"features"`
	Public      bool                    `yaml:"public"`
}

// TrialEndsAt calculates when a trial started at the given time ends.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays).UTC()
}

// HasFeature reports whether the plan grants the named feature.
func (p Plan) HasFeature(name string) bool {
	v, ok := p.Features[name]
	return ok && v.Enabled()
}

// PlanSource loads plan definitions into the catalog.
type PlanSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// Catalog holds validated plans in memory. Plans change rarely enough that a
// restart on catalog change is acceptable.
type Catalog struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewCatalog loads and validates plans from the source.
func NewCatalog(ctx context.Context, src PlanSource) (*Catalog, error) {
	if src == nil {
		panic("subscription: PlanSource is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	return &Catalog{plans: plans}, nil
}

// Get returns the plan with the given id.
func (c *Catalog) Get(id string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan, ok := c.plans[id]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// Public returns the plans available for self-service signup.
func (c *Catalog) Public() []Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Plan
	for _, p := range c.plans {
		if p.Public {
			out = append(out, p)
		}
	}
	return out
}

func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("catalog is empty"))
	}
	for id, plan := range plans {
		if plan.ID != id {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan ID mismatch: map key %s != plan.ID %s", id, plan.ID))
		}
		if plan.CycleMonths <= 0 && plan.Price.Amount > 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("paid plan %s has no billing cycle", id))
		}
		if plan.TrialDays < 0 || plan.GraceDays < 0 {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %s has negative trial or grace days", id))
		}
		if plan.Price.Amount > 0 && plan.Price.Currency == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("paid plan %s has no currency", id))
		}
	}
	return nil
}

type memorySource struct {
	plans map[string]Plan
}

// NewMemorySource returns a PlanSource backed by the given plans, keyed by ID.
func NewMemorySource(plans ...Plan) PlanSource {
	if len(plans) == 0 {
		panic("subscription: at least one plan is required")
	}
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		cp := p
		cp.Features = maps.Clone(p.Features)
		m[p.ID] = cp
	}
	return &memorySource{plans: m}
}

func (s *memorySource) Load(ctx context.Context) (map[string]Plan, error) {
	return maps.Clone(s.plans), nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a PlanSource reading a YAML catalog file of the form:
//
//	plans:
//	  - id: starter
//	    name: Starter
//	    price: {amount: 1500, currency: USD}
//	    cycle_months: 1
//	    grace_days: 7
//	    features:
//	      products: 100
//	      custom_domain: false
//	      storage: unlimited
func NewYAMLSource(path string) PlanSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	plans := make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		plans[p.ID] = p
	}
	return plans, nil
}
