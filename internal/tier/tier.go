// Package tier maps cumulative daily usage to the recitation requirement
// the gate demands, and scales that requirement when the user carries
// outstanding dhikr debt.
package tier

import (
	"fmt"

	"github.com/zikrgate/zikrgate/internal/dhikr"
)

// DefaultBoundaries are the minute boundaries of the four usage bands:
// [0,20) → tier 0, [20,40) → tier 1, [40,55) → tier 2, [55,60) → tier 3.
// Usage at or beyond the top boundary also maps to tier 3: the ceiling
// tier is the catch-all for any usage, including usage the ledger should
// already have hard-blocked.
var DefaultBoundaries = [4]int{20, 40, 55, 60}

// DefaultMaxDebtMultiplier caps how far debt can scale a requirement.
const DefaultMaxDebtMultiplier = 3

// Policy selects the required recitation for a given amount of daily
// usage. It is read-only after construction and safe for concurrent use.
type Policy struct {
	boundaries [4]int
	maxMult    int
	tiers      [4]dhikr.Requirement
}

// New builds a Policy over the four catalog tiers in ascending order.
// boundaries must be strictly ascending and positive; maxDebtMultiplier
// must be at least 1.
func New(boundaries [4]int, maxDebtMultiplier int) (*Policy, error) {
	if boundaries[0] <= 0 {
		return nil, fmt.Errorf("tier: first boundary %d must be positive", boundaries[0])
	}
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return nil, fmt.Errorf("tier: boundaries %v must be strictly ascending", boundaries)
		}
	}
	if maxDebtMultiplier < 1 {
		return nil, fmt.Errorf("tier: max debt multiplier %d must be >= 1", maxDebtMultiplier)
	}

	all := dhikr.All()
	if len(all) < 4 {
		return nil, fmt.Errorf("tier: catalog has %d entries, need 4", len(all))
	}

	p := &Policy{boundaries: boundaries, maxMult: maxDebtMultiplier}
	copy(p.tiers[:], all[:4])
	return p, nil
}

// Default returns a Policy with the default boundaries and multiplier cap.
func Default() *Policy {
	p, err := New(DefaultBoundaries, DefaultMaxDebtMultiplier)
	if err != nil {
		// The defaults are statically valid.
		panic(err)
	}
	return p
}

// Required returns the requirement for the given cumulative daily usage.
// The bands are half-open in ascending order; everything at or past the
// third boundary lands in the ceiling tier.
func (p *Policy) Required(minutesUsedToday int) dhikr.Requirement {
	for i := 0; i < 3; i++ {
		if minutesUsedToday < p.boundaries[i] {
			return p.tiers[i]
		}
	}
	return p.tiers[3]
}

// ApplyDebt scales base by the debt multiplier min(debt+1, cap) when debt
// is positive; otherwise base is returned unchanged. Only the repetition
// count changes.
func (p *Policy) ApplyDebt(base dhikr.Requirement, debt int) dhikr.Requirement {
	if debt <= 0 {
		return base
	}
	mult := debt + 1
	if mult > p.maxMult {
		mult = p.maxMult
	}
	return dhikr.WithMultiplier(base, mult)
}
