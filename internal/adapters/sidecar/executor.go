package sidecar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

const orderPath = "/order"

// Executor places real orders through the sidecar, which holds the keys and
// signs them. An order that is not reported as filled opens nothing.
type Executor struct {
	client *Client
}

// NewExecutor wraps a sidecar client.
func NewExecutor(c *Client) *Executor {
	return &Executor{client: c}
}

// Paper reports false: fills are real.
func (e *Executor) Paper() bool { return false }

// Execute submits a limit order.
func (e *Executor) Execute(ctx context.Context, order domain.Order) (domain.Fill, error) {
	if order.TokenID == "" || !domain.ValidPrice(order.LimitPrice) || order.Shares <= 0 {
		return domain.Fill{}, fmt.Errorf("sidecar.Execute %s: bad order price=%.4f shares=%.4f: %w",
			order.MarketID, order.LimitPrice, order.Shares, domain.ErrExecution)
	}

	req := orderRequest{
		TokenID: order.TokenID,
		Price:   order.LimitPrice,
		Size:    order.Shares,
		Side:    strings.ToUpper(string(order.Action)),
		Outcome: string(order.Side),
	}
	var resp orderResponse
	if err := e.client.postJSON(ctx, orderPath, req, &resp); err != nil {
		return domain.Fill{}, fmt.Errorf("sidecar.Execute %s: %w: %w", order.MarketID, domain.ErrExecution, err)
	}

	status := strings.ToLower(resp.Status)
	if status != "matched" && status != "filled" {
		return domain.Fill{}, fmt.Errorf("sidecar.Execute %s: order %s status %q: %w",
			order.MarketID, resp.OrderID, resp.Status, domain.ErrExecution)
	}

	fill := domain.Fill{
		OrderID:   resp.OrderID,
		Filled:    true,
		FillPrice: order.LimitPrice,
		Shares:    order.Shares,
	}
	if domain.ValidPrice(resp.FilledPrice) {
		fill.FillPrice = resp.FilledPrice
	}
	if resp.FilledSize > 0 {
		fill.Shares = resp.FilledSize
	}
	slog.Info("order filled",
		"market", order.MarketID,
		"action", order.Action,
		"side", order.Side,
		"price", fill.FillPrice,
		"shares", fill.Shares,
		"order_id", fill.OrderID,
	)
	return fill, nil
}
