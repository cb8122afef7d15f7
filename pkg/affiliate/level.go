package affiliate

// MinLevel and MaxLevel bound the commission tiers.
const (
	MinLevel = 1
	MaxLevel = 5
)

// Thresholds maps a level to the cumulative delivered sales required to
// reach it. Level 1 is implicit: any missing or zero entry means the level
// is reachable from zero sales.
type Thresholds map[int]int64

// LevelConfig describes one commission tier.
type LevelConfig struct {
	// Percent is the commission percentage applied to order totals while the
	// affiliate holds this level.
	Percent float64 `yaml:"percent" json:"percent"`

	// RequiredSales is the legacy per-level threshold shape. Consulted only
	// when the program has no flat threshold map.
	RequiredSales int64 `yaml:"required_sales" json:"requiredSales"`
}

// ProgramConfig is the affiliate program configuration: commission tiers,
// thresholds, and withdrawal policy. Two threshold shapes exist in
// historical data; NormalizeThresholds folds both into one canonical map.
type ProgramConfig struct {
	// SalesThresholds is the flat level -> required-sales map. Takes
	// precedence over per-level RequiredSales when non-empty.
	SalesThresholds Thresholds `yaml:"sales_thresholds" json:"salesThresholds"`

	Levels map[int]LevelConfig `yaml:"levels" json:"commissionLevels"`

	// MinWithdrawal is the smallest payout an affiliate may request, in
	// smallest currency units.
	MinWithdrawal int64 `yaml:"min_withdrawal" json:"minWithdrawal"`
}

// NormalizeThresholds resolves the canonical threshold map: the flat map
// wins when present, otherwise each level's RequiredSales is used. Both
// shapes remain readable indefinitely; normalization happens once at the
// boundary so the resolvers never branch on shape.
func (c ProgramConfig) NormalizeThresholds() Thresholds {
	if len(c.SalesThresholds) > 0 {
		out := make(Thresholds, len(c.SalesThresholds))
		for lvl, req := range c.SalesThresholds {
			out[lvl] = req
		}
		return out
	}
	out := make(Thresholds, len(c.Levels))
	for lvl, lc := range c.Levels {
		out[lvl] = lc.RequiredSales
	}
	return out
}

// PercentFor returns the commission percentage for a level, falling back to
// the lowest configured tier for unknown levels.
func (c ProgramConfig) PercentFor(level int) float64 {
	if lc, ok := c.Levels[level]; ok {
		return lc.Percent
	}
	if lc, ok := c.Levels[MinLevel]; ok {
		return lc.Percent
	}
	return 0
}

// LevelFor returns the highest level whose threshold is met by the delivered
// sales count. Total over its input domain: with no thresholds met the
// affiliate is at level 1.
func LevelFor(deliveredSales int64, thresholds Thresholds) int {
	for lvl := MaxLevel; lvl > MinLevel; lvl-- {
		req, ok := thresholds[lvl]
		if ok && req > 0 && deliveredSales >= req {
			return lvl
		}
	}
	return MinLevel
}

// Progress describes how far an affiliate is toward the next level.
// NextLevel is zero once the top tier is reached.
type Progress struct {
	NextLevel     int
	RequiredSales int64
	Percent       float64 // 0-100, capped
}

// ProgressTo computes the next achievable level and a 0-100 completion
// percentage for it. At the top level the progress is complete.
func ProgressTo(currentLevel int, deliveredSales int64, thresholds Thresholds) Progress {
	for lvl := currentLevel + 1; lvl <= MaxLevel; lvl++ {
		req, ok := thresholds[lvl]
		if !ok || req <= 0 {
			continue
		}
		pct := float64(deliveredSales) / float64(req) * 100
		if pct > 100 {
			pct = 100
		}
		return Progress{NextLevel: lvl, RequiredSales: req, Percent: pct}
	}
	return Progress{Percent: 100}
}
