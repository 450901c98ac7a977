// Package plan holds the static subscription table and the usage evaluator.
//
// Plans are code, not data: the only thing persisted per user is the tier
// label. Everything else (ceilings, prices, support level) is looked up
// here through an exhaustive switch on Tier.
package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is a closed enumeration of subscription tiers.
//
// WHY AN INT AND NOT A STRING?
// A string-keyed map lets any typo ("pro", "PRO ") silently miss. With a
// dedicated type, the only way to get a Tier from outside is ParseTier,
// which rejects anything Valid does not accept. For still falls back to
// the FREE plan, so a stray value never grants more than the free limits.
type Tier int

const (
	Free Tier = iota
	Pro
	Enterprise
)

// Tiers lists every tier in display order.
var Tiers = []Tier{Free, Pro, Enterprise}

func (t Tier) String() string {
	switch t {
	case Free:
		return "FREE"
	case Pro:
		return "PRO"
	case Enterprise:
		return "ENTERPRISE"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool {
	switch t {
	case Free, Pro, Enterprise:
		return true
	}
	return false
}

// ParseTier converts the persisted label back into a Tier. Case and
// surrounding whitespace are ignored.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FREE":
		return Free, nil
	case "PRO":
		return Pro, nil
	case "ENTERPRISE":
		return Enterprise, nil
	}
	return Free, fmt.Errorf("plan: unknown tier %q", s)
}

// MarshalText makes Tier serialise as its label in JSON and in SQL scans
// done through encoding.TextUnmarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("plan: invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Limit is a resource ceiling. Unlimited marks an unbounded ceiling and
// encodes as JSON null.
type Limit int

const Unlimited Limit = -1

// Bounded reports whether the limit is finite.
func (l Limit) Bounded() bool {
	return l >= 0
}

// Allows reports whether `adding` more units fit on top of `used`.
func (l Limit) Allows(used, adding int) bool {
	if !l.Bounded() {
		return true
	}
	return used+adding <= int(l)
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if !l.Bounded() {
		return []byte("null"), nil
	}
	return json.Marshal(int(l))
}

// Plan is one row of the static plan table.
type Plan struct {
	Tier               Tier  `json:"name"`
	MonthlyPrice       int   `json:"monthlyPrice"`
	AnnualPrice        int   `json:"annualPrice"`
	MaxProjects        Limit `json:"maxProjects"`
	MaxPollsPerProject Limit `json:"maxPollsPerProject"`
	MaxTotalPolls      Limit `json:"maxTotalPolls"`
	MaxResponses       Limit `json:"maxResponses"`
	PrioritySupport    bool  `json:"prioritySupport"`
}

// Unlimited reports whether every ceiling of the plan is unbounded.
func (p Plan) Unlimited() bool {
	return !p.MaxProjects.Bounded() &&
		!p.MaxPollsPerProject.Bounded() &&
		!p.MaxTotalPolls.Bounded() &&
		!p.MaxResponses.Bounded()
}

// For returns the plan for a tier. Unknown tiers fall back to the most
// restrictive plan so a corrupted label can never unlock quota.
func For(t Tier) Plan {
	switch t {
	case Free:
		return Plan{
			Tier:               Free,
			MaxProjects:        2,
			MaxPollsPerProject: 2,
			MaxTotalPolls:      4,
			MaxResponses:       1000,
		}
	case Pro:
		return Plan{
			Tier:               Pro,
			MonthlyPrice:       7,
			AnnualPrice:        5,
			MaxProjects:        10,
			MaxPollsPerProject: 10,
			MaxTotalPolls:      20,
			MaxResponses:       10000,
			PrioritySupport:    true,
		}
	case Enterprise:
		return Plan{
			Tier:               Enterprise,
			MonthlyPrice:       30,
			AnnualPrice:        25,
			MaxProjects:        Unlimited,
			MaxPollsPerProject: Unlimited,
			MaxTotalPolls:      Unlimited,
			MaxResponses:       Unlimited,
		}
	}
	return For(Free)
}

// All returns the plan table in display order.
func All() []Plan {
	plans := make([]Plan, 0, len(Tiers))
	for _, t := range Tiers {
		plans = append(plans, For(t))
	}
	return plans
}
