package sidecar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

const analyzePath = "/analyze"

// Analyze asks the sidecar's language model for a probability. The sidecar
// reports the spend in cost_usd on success and on billed failures alike, so
// the returned judgment carries CostUSD even when err is set.
func (c *Client) Analyze(ctx context.Context, facts domain.Facts) (domain.Judgment, error) {
	var resp analyzeResponse
	err := c.postJSON(ctx, analyzePath, facts, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			var billed analyzeResponse
			if json.Unmarshal(se.Body, &billed) == nil {
				return domain.Judgment{CostUSD: billed.CostUSD}, fmt.Errorf("sidecar.Analyze %s: %w", facts.MarketID, err)
			}
		}
		return domain.Judgment{}, fmt.Errorf("sidecar.Analyze %s: %w", facts.MarketID, err)
	}

	j := domain.Judgment{
		Confidence:  resp.Confidence,
		Reasoning:   resp.Reasoning,
		DataQuality: resp.DataQuality,
		CostUSD:     resp.CostUSD,
	}
	if resp.Probability == nil {
		return j, fmt.Errorf("sidecar.Analyze %s: no probability in answer: %s", facts.MarketID, resp.Error)
	}
	j.Probability = *resp.Probability
	return j, nil
}

// Provider names the cost provider in the API cost log.
func (c *Client) Provider() string {
	return c.model
}
