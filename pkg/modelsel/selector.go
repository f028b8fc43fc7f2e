// Package modelsel decides which vision-model tier a request should pay for.
package modelsel

import (
	"fmt"

	"github.com/garagehq/docvision/pkg/doctype"
)

// Tier is a cost/capability class of the remote vision model.
type Tier int

const (
	TierFast Tier = iota // cheapest, good for digit reading
	TierStandard
	TierPower // most capable, required for structured documents
)

func (t Tier) String() string {
	switch t {
	case TierFast:
		return "fast"
	case TierStandard:
		return "standard"
	case TierPower:
		return "power"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Budget is the caller-supplied cost budget.
type Budget string

const (
	BudgetLow    Budget = "low"
	BudgetMedium Budget = "medium"
	BudgetHigh   Budget = "high"
)

// ParseBudget defaults anything unrecognized to medium.
func ParseBudget(s string) Budget {
	switch Budget(s) {
	case BudgetLow, BudgetMedium, BudgetHigh:
		return Budget(s)
	default:
		return BudgetMedium
	}
}

// Choice is the outcome of model selection. Computed once per request and
// immutable afterwards; the fallback list is consulted only when an
// invocation attempt fails, never proactively.
type Choice struct {
	Model         string
	Tier          Tier
	Fallbacks     []string
	Justification string
}

// Selector maps tiers to concrete model identifiers and applies the
// selection policy. Select is pure: same inputs, same Choice.
type Selector struct {
	models map[Tier]string

	// Accuracy gate: a non-critical type whose historical validated rate
	// fell below MinAccuracy (with at least MinSamples outcomes) is bumped
	// up one tier.
	MinAccuracy float64
	MinSamples  int
}

// NewSelector builds a selector from a tier -> model identifier table.
// All three tiers must be present.
func NewSelector(models map[Tier]string) (*Selector, error) {
	for _, t := range []Tier{TierFast, TierStandard, TierPower} {
		if models[t] == "" {
			return nil, fmt.Errorf("modelsel: no model configured for tier %s", t)
		}
	}
	return &Selector{
		models:      models,
		MinAccuracy: 0.7,
		MinSamples:  10,
	}, nil
}

// defaultTier is the per-type starting point. Simple, low-risk reads go
// cheap; multi-field structured documents always get the most capable tier.
func defaultTier(t doctype.Type) Tier {
	if doctype.SpecFor(t).Critical {
		return TierPower
	}
	if t == doctype.Odometer {
		return TierFast
	}
	return TierStandard
}

// Select picks a model for the document type under the given budget,
// consulting the historical accuracy snapshot for the type.
func (s *Selector) Select(t doctype.Type, b Budget, hist Snapshot) Choice {
	spec := doctype.SpecFor(t)
	tier := defaultTier(t)
	why := fmt.Sprintf("default tier %s for %s", tier, t)

	if spec.Critical {
		// Budget never downgrades critical types: a wrong structured parse
		// is costlier to recover from than the tier price delta.
		why = fmt.Sprintf("%s requires structured multi-field parsing; pinned to %s", t, tier)
	} else {
		if acc, ok := hist[t]; ok && acc.Samples >= s.MinSamples && acc.ValidatedRate() < s.MinAccuracy && tier < TierPower {
			tier++
			why = fmt.Sprintf("accuracy %.0f%% over %d runs below target; upgraded to %s",
				acc.ValidatedRate()*100, acc.Samples, tier)
		} else if b == BudgetLow && tier > TierFast {
			tier--
			why = fmt.Sprintf("low budget; downgraded %s to %s", t, tier)
		}
	}

	return Choice{
		Model:         s.models[tier],
		Tier:          tier,
		Fallbacks:     s.fallbacks(tier),
		Justification: why,
	}
}

// fallbacks orders the remaining tiers most-capable-first. Falling down a
// tier on failure is deliberate: a cheaper answer beats no answer once the
// preferred model is unavailable.
func (s *Selector) fallbacks(primary Tier) []string {
	out := make([]string, 0, 2)
	for _, t := range []Tier{TierPower, TierStandard, TierFast} {
		if t == primary {
			continue
		}
		out = append(out, s.models[t])
	}
	return out
}
