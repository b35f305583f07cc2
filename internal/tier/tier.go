// Package tier holds the static membership tier definitions. The set is
// fixed at process start and never mutated at runtime.
package tier

import (
	"fmt"
	"sort"

	"github.com/GoAffiliate/tiergate/internal/config"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/shopspring/decimal"
)

// Definition is one membership level and its ceilings.
type Definition struct {
	Name                 model.TierName  `json:"name"`
	MaxAffiliates        int             `json:"maxAffiliates"`
	ClickLimit           int             `json:"clickLimit"`
	SalesToUpgrade       int             `json:"salesToUpgrade"` // 0 = terminal tier
	CommissionMultiplier decimal.Decimal `json:"commissionMultiplier"`
	Priority             int             `json:"priority"`
}

// Terminal reports whether the tier has no upgrade path.
func (d Definition) Terminal() bool {
	return d.SalesToUpgrade <= 0
}

// Registry is the ordered, closed set of tiers. Traversal order is the
// configured priority order (lowest first); signup scans fill lower tiers
// before higher ones.
type Registry struct {
	ordered []Definition
	byName  map[model.TierName]Definition
}

// DefaultDefinitions is the stock four-level program used when no tiers
// are configured. Slot counts sum to 1000, matching the default global
// affiliate ceiling.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "NEWBIE", MaxAffiliates: 500, ClickLimit: 100, SalesToUpgrade: 10, CommissionMultiplier: decimal.NewFromFloat(1.0), Priority: 1},
		{Name: "ACTIVE", MaxAffiliates: 300, ClickLimit: 250, SalesToUpgrade: 50, CommissionMultiplier: decimal.NewFromFloat(1.25), Priority: 2},
		{Name: "PRO", MaxAffiliates: 150, ClickLimit: 500, SalesToUpgrade: 150, CommissionMultiplier: decimal.NewFromFloat(1.5), Priority: 3},
		{Name: "ELITE", MaxAffiliates: 50, ClickLimit: 1000, SalesToUpgrade: 0, CommissionMultiplier: decimal.NewFromFloat(2.0), Priority: 4},
	}
}

// NewRegistry builds the registry from configuration, falling back to the
// stock definitions when none are configured.
func NewRegistry(cfgs []config.TierConfig) *Registry {
	defs := make([]Definition, 0, len(cfgs))
	for i, tc := range cfgs {
		mult := decimal.NewFromInt(1)
		if tc.CommissionMultiplier != "" {
			if parsed, err := decimal.NewFromString(tc.CommissionMultiplier); err == nil {
				mult = parsed
			}
		}
		priority := tc.Priority
		if priority == 0 {
			priority = i + 1
		}
		defs = append(defs, Definition{
			Name:                 model.TierName(tc.Name),
			MaxAffiliates:        tc.MaxAffiliates,
			ClickLimit:           tc.ClickLimit,
			SalesToUpgrade:       tc.SalesToUpgrade,
			CommissionMultiplier: mult,
			Priority:             priority,
		})
	}
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}

	sort.SliceStable(defs, func(i, j int) bool {
		return defs[i].Priority < defs[j].Priority
	})

	byName := make(map[model.TierName]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	return &Registry{ordered: defs, byName: byName}
}

// Ordered returns the tiers in priority order, lowest first.
func (r *Registry) Ordered() []Definition {
	out := make([]Definition, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Get(name model.TierName) (Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Lowest returns the entry tier.
func (r *Registry) Lowest() Definition {
	return r.ordered[0]
}

// Next returns the tier above the named one, false at the terminal tier or
// for an unknown name.
func (r *Registry) Next(name model.TierName) (Definition, bool) {
	for i, d := range r.ordered {
		if d.Name == name {
			if i+1 < len(r.ordered) {
				return r.ordered[i+1], true
			}
			return Definition{}, false
		}
	}
	return Definition{}, false
}

// ValidateTotal checks that tier slots sum to the global affiliate ceiling.
// A mismatch is a configuration error, not a runtime fault; callers log it
// and continue.
func (r *Registry) ValidateTotal(maxAffiliates int) error {
	sum := 0
	for _, d := range r.ordered {
		sum += d.MaxAffiliates
	}
	if maxAffiliates > 0 && sum != maxAffiliates {
		return fmt.Errorf("tier slots sum to %d, program ceiling is %d", sum, maxAffiliates)
	}
	return nil
}

// Progress returns percent progress toward the next tier, capped at 100.
// Terminal tiers report 100; unknown tiers report 0.
func (r *Registry) Progress(totalSales int, name model.TierName) float64 {
	d, ok := r.byName[name]
	if !ok {
		return 0
	}
	if d.Terminal() {
		return 100
	}
	p := 100 * float64(totalSales) / float64(d.SalesToUpgrade)
	if p > 100 {
		return 100
	}
	return p
}
