package position

import (
	"sort"
	"strings"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// DefaultGroups are geographic clusters whose daily highs move together.
func DefaultGroups() map[string][]string {
	return map[string][]string{
		"Northeast":  {"NYC", "PHL", "BOS", "DCA"},
		"Southeast":  {"MIA", "ATL", "TPA"},
		"Midwest":    {"CHI", "DTW", "MSP", "STL"},
		"Texas":      {"HOU", "DAL", "SAN"},
		"West Coast": {"LAX", "SDG", "SJC", "SEA"},
	}
}

// Groups maps city codes to correlation groups.
type Groups struct {
	byCity map[string]string
}

// NewGroups indexes the group definition by city.
func NewGroups(def map[string][]string) *Groups {
	g := &Groups{byCity: make(map[string]string)}
	for group, cities := range def {
		for _, c := range cities {
			g.byCity[strings.ToUpper(c)] = group
		}
	}
	return g
}

// For returns the group of a city. Ungrouped cities form a group of their
// own so that same-city markets still share a cap.
func (g *Groups) For(city string) string {
	if city == "" {
		return ""
	}
	city = strings.ToUpper(city)
	if group, ok := g.byCity[city]; ok {
		return group
	}
	return "city:" + city
}

// DrawdownState is the breaker state recomputed each cycle.
type DrawdownState struct {
	Active     bool
	Drawdown   float64
	Equity     float64
	Peak       float64
	Multiplier float64 // factor to apply to the Kelly multiplier
}

// Drawdown evaluates the breaker against the current bankroll. It is a pure
// function of the bankroll: it clears as soon as equity recovers.
func (m *Manager) Drawdown(b domain.Bankroll) DrawdownState {
	st := DrawdownState{
		Equity:     b.Equity(),
		Peak:       b.Peak,
		Drawdown:   b.Drawdown(),
		Multiplier: 1,
	}
	if b.Peak > 0 && st.Equity < b.Peak*(1-m.cfg.DrawdownThreshold) {
		st.Active = true
		st.Multiplier = m.cfg.DrawdownReduction
	}
	return st
}

// Exposure is the cost basis at risk, total and per group. The engine keeps
// one per cycle and adds every committed trade to it.
type Exposure struct {
	Total   float64
	ByGroup map[string]float64
}

// NewExposure sums the cost basis of open positions.
func NewExposure(positions []domain.Position) Exposure {
	e := Exposure{ByGroup: make(map[string]float64)}
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		e.Add(p.CorrelationGroup, p.CostUSD)
	}
	return e
}

// Add books usd against the total and the group.
func (e *Exposure) Add(group string, usd float64) {
	if e.ByGroup == nil {
		e.ByGroup = make(map[string]float64)
	}
	e.Total += usd
	if group != "" {
		e.ByGroup[group] += usd
	}
}

// Group returns the exposure of one group.
func (e Exposure) Group(group string) float64 {
	if group == "" {
		return 0
	}
	return e.ByGroup[group]
}

// OverCap lists the groups whose exposure exceeds limit*bankroll, sorted.
// A fall in bankroll can push existing exposure over the cap; new trades in
// those groups are then refused by the sizer.
func (e Exposure) OverCap(bankroll, limit float64) []string {
	if limit <= 0 {
		return nil
	}
	var over []string
	for g, v := range e.ByGroup {
		if v > limit*bankroll {
			over = append(over, g)
		}
	}
	sort.Strings(over)
	return over
}
