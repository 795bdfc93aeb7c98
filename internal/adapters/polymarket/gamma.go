package polymarket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	gammaEventsPath  = "/events"
)

// FetchMarkets lists open markets: the generic scan filtered by liquidity and
// volume, plus every child market of the weather events. Weather markets skip
// the volume floors; they are thin but priced.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	generic, err := c.scanMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("polymarket.FetchMarkets: %w", err)
	}

	seen := make(map[string]bool, len(generic))
	out := make([]domain.Market, 0, len(generic))
	for _, m := range generic {
		seen[m.ConditionID] = true
		out = append(out, m)
	}

	if c.cfg.WeatherTagID > 0 {
		weather, err := c.scanWeatherEvents(ctx)
		if err != nil {
			// The generic list is still usable.
			slog.Warn("weather events scan failed", "err", err)
		}
		for _, m := range weather {
			if seen[m.ConditionID] {
				continue
			}
			seen[m.ConditionID] = true
			out = append(out, m)
		}
	}

	slog.Info("markets fetched", "generic", len(generic), "total", len(out))
	return out, nil
}

// scanMarkets pages through GET /markets until a short page or MaxMarkets.
func (c *Client) scanMarkets(ctx context.Context) ([]domain.Market, error) {
	var (
		kept    []domain.Market
		scanned int
	)
	for offset := 0; ; offset += c.cfg.PageSize {
		url := fmt.Sprintf("%s%s?closed=false&active=true&limit=%d&offset=%d",
			c.cfg.GammaBase, gammaMarketsPath, c.cfg.PageSize, offset)

		var page []gammaMarket
		if err := c.get(ctx, c.gammaLimiter, url, &page); err != nil {
			return nil, fmt.Errorf("GET /markets offset %d: %w", offset, err)
		}
		scanned += len(page)

		for _, gm := range page {
			m, ok := mapGammaMarket(gm)
			if !ok || !c.passesFilters(m) {
				continue
			}
			kept = append(kept, m)
			if c.cfg.MaxMarkets > 0 && len(kept) >= c.cfg.MaxMarkets {
				slog.Debug("market cap reached", "max", c.cfg.MaxMarkets, "scanned", scanned)
				return kept, nil
			}
		}

		if len(page) < c.cfg.PageSize {
			break
		}
	}
	slog.Debug("gamma scan complete", "scanned", scanned, "kept", len(kept))
	return kept, nil
}

func (c *Client) passesFilters(m domain.Market) bool {
	if m.Closed || !m.Active {
		return false
	}
	return m.Liquidity >= c.cfg.MinLiquidity && m.Volume >= c.cfg.MinVolume
}

// scanWeatherEvents fetches the temperature events by tag in one request.
func (c *Client) scanWeatherEvents(ctx context.Context) ([]domain.Market, error) {
	url := fmt.Sprintf("%s%s?tag_id=%d&closed=false&limit=200", c.cfg.GammaBase, gammaEventsPath, c.cfg.WeatherTagID)

	var events []gammaEvent
	if err := c.get(ctx, c.gammaLimiter, url, &events); err != nil {
		return nil, fmt.Errorf("GET /events: %w", err)
	}

	var out []domain.Market
	for _, e := range events {
		for _, gm := range e.Markets {
			m, ok := mapGammaMarket(gm)
			if !ok || m.Closed || !m.Active {
				continue
			}
			m.Weather = true
			out = append(out, m)
		}
	}
	slog.Debug("weather events fetched", "events", len(events), "markets", len(out))
	return out, nil
}
