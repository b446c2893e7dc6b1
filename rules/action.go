package rules

import "strings"

// Action is an agent's chosen behavior for one day.
type Action uint8

const (
	ActionRest Action = iota
	ActionOviposit
	ActionFeed
	ActionHunt
	ActionGrow
	ActionDie
	numActions
)

var actionNames = [numActions]string{
	ActionRest:     "rest",
	ActionOviposit: "oviposit",
	ActionFeed:     "feed",
	ActionHunt:     "hunt",
	ActionGrow:     "grow",
	ActionDie:      "die",
}

// Actions lists every action in declaration order.
func Actions() []Action {
	out := make([]Action, numActions)
	for i := range out {
		out[i] = Action(i)
	}
	return out
}

func (a Action) String() string {
	if a < numActions {
		return actionNames[a]
	}
	return "rest"
}

// ParseAction maps a rule-engine symbol to an Action. Unrecognized symbols
// resolve to ActionRest with ok=false.
func ParseAction(s string) (a Action, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range actionNames {
		if name == s {
			return Action(i), true
		}
	}
	return ActionRest, false
}

// DefaultActionCosts are the energy costs used when neither configuration
// nor the engine supplies one.
var DefaultActionCosts = map[Action]float64{
	ActionOviposit: 20,
	ActionFeed:     10,
	ActionHunt:     15,
	ActionGrow:     5,
	ActionRest:     1,
	ActionDie:      0,
}

// Trend classifies recent population movement.
type Trend uint8

const (
	TrendUnknown Trend = iota
	TrendGrowing
	TrendStable
	TrendDeclining
)

var trendNames = []string{"unknown", "growing", "stable", "declining"}

func (t Trend) String() string {
	if int(t) < len(trendNames) {
		return trendNames[t]
	}
	return "unknown"
}

// ParseTrend maps a symbol to a Trend, TrendUnknown when unrecognized.
func ParseTrend(s string) (Trend, bool) {
	for i, name := range trendNames[1:] {
		if strings.EqualFold(name, s) {
			return Trend(i + 1), true
		}
	}
	return TrendUnknown, false
}

// Risk classifies extinction risk.
type Risk uint8

const (
	RiskUnknown Risk = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskCritical
)

var riskNames = []string{"unknown", "low", "moderate", "high", "critical"}

func (r Risk) String() string {
	if int(r) < len(riskNames) {
		return riskNames[r]
	}
	return "unknown"
}

// ParseRisk maps a symbol to a Risk, RiskUnknown when unrecognized.
func ParseRisk(s string) (Risk, bool) {
	for i, name := range riskNames[1:] {
		if strings.EqualFold(name, s) {
			return Risk(i + 1), true
		}
	}
	return RiskUnknown, false
}
