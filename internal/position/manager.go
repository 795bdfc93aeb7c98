// Package position runs the per-position exit state machine and the
// portfolio-level risk checks evaluated once per cycle.
package position

import (
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Config holds the exit and portfolio thresholds.
type Config struct {
	StopLoss                float64 // unrealized loss fraction of entry price
	TakeProfit              float64 // fraction of max gain captured
	MinExitEdge             float64
	DrawdownThreshold       float64
	DrawdownReduction       float64 // Kelly multiplier factor while the breaker is active
	HoldWeatherToResolution bool    // skip price exits on weather positions
	Groups                  map[string][]string
}

// DefaultConfig returns the production thresholds and the default
// geographic correlation groups.
func DefaultConfig() Config {
	return Config{
		StopLoss:          0.15,
		TakeProfit:        0.90,
		MinExitEdge:       0.02,
		DrawdownThreshold: 0.30,
		DrawdownReduction: 0.5,
		Groups:            DefaultGroups(),
	}
}

// Mark is the fresh state of a held side: the price it would sell at and,
// when a new estimate was produced this cycle, the model's win probability.
type Mark struct {
	Price       float64
	Probability *float64
}

// Manager decides exits; it never places orders.
type Manager struct {
	cfg    Config
	groups *Groups
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Groups == nil {
		cfg.Groups = DefaultGroups()
	}
	return &Manager{cfg: cfg, groups: NewGroups(cfg.Groups)}
}

// Groups returns the correlation-group index.
func (m *Manager) Groups() *Groups {
	return m.groups
}

// Evaluate applies the exit rules in priority order; the first match wins:
// stop-loss, take-profit, edge decay. Otherwise the position stays open.
func (m *Manager) Evaluate(pos domain.Position, mark Mark) domain.ExitDecision {
	d := domain.ExitDecision{Position: pos, Price: mark.Price}
	if !pos.IsOpen() || mark.Price <= 0 {
		return d
	}

	priceExits := !(pos.Weather && m.cfg.HoldWeatherToResolution)

	if priceExits && pos.EntryPrice > 0 {
		loss := (pos.EntryPrice - mark.Price) / pos.EntryPrice
		if loss >= m.cfg.StopLoss {
			d.Exit, d.Reason = true, domain.ExitStopLoss
			d.Detail = fmt.Sprintf("loss %.1f%% >= %.1f%%", loss*100, m.cfg.StopLoss*100)
			return d
		}
	}

	if priceExits && pos.EntryPrice < 1 {
		captured := (mark.Price - pos.EntryPrice) / (1 - pos.EntryPrice)
		if captured >= m.cfg.TakeProfit {
			d.Exit, d.Reason = true, domain.ExitTakeProfit
			d.Detail = fmt.Sprintf("captured %.1f%% >= %.1f%%", captured*100, m.cfg.TakeProfit*100)
			return d
		}
	}

	if mark.Probability != nil {
		edge := *mark.Probability - mark.Price // signed: an overpriced held side is negative
		if edge < m.cfg.MinExitEdge {
			d.Exit, d.Reason = true, domain.ExitEdgeDecay
			d.Detail = fmt.Sprintf("edge %.3f < %.3f", edge, m.cfg.MinExitEdge)
			return d
		}
	}

	return d
}

// Review evaluates every open position. A position without a mark, whose
// token had no usable book this cycle, is held. Marks are keyed by position ID.
func (m *Manager) Review(positions []domain.Position, marks map[string]Mark) []domain.ExitDecision {
	decisions := make([]domain.ExitDecision, 0, len(positions))
	for _, pos := range positions {
		if !pos.IsOpen() {
			continue
		}
		mark, ok := marks[pos.ID]
		if !ok {
			decisions = append(decisions, domain.ExitDecision{Position: pos, Price: pos.Mark()})
			continue
		}
		decisions = append(decisions, m.Evaluate(pos, mark))
	}
	return decisions
}
