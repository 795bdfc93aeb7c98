// Package paper simulates order execution.
package paper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyweather/internal/domain"
	"github.com/google/uuid"
)

// Executor fills every well-formed order in full at its limit price.
type Executor struct{}

// NewExecutor creates a paper executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Paper reports true.
func (e *Executor) Paper() bool { return true }

// Execute simulates the fill.
func (e *Executor) Execute(ctx context.Context, order domain.Order) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, fmt.Errorf("paper.Execute %s: %w: %w", order.MarketID, domain.ErrExecution, err)
	}
	if !domain.ValidPrice(order.LimitPrice) || order.Shares <= 0 {
		return domain.Fill{}, fmt.Errorf("paper.Execute %s: price=%.4f shares=%.4f: %w",
			order.MarketID, order.LimitPrice, order.Shares, domain.ErrExecution)
	}

	fill := domain.Fill{
		OrderID:   "paper-" + uuid.New().String(),
		Filled:    true,
		FillPrice: order.LimitPrice,
		Shares:    order.Shares,
		Paper:     true,
	}
	slog.Debug("paper fill",
		"market", order.MarketID,
		"action", order.Action,
		"side", order.Side,
		"price", fill.FillPrice,
		"shares", fill.Shares,
	)
	return fill, nil
}
