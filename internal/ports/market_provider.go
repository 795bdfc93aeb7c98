package ports

import (
	"context"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// MarketProvider lists the markets the engine evaluates each cycle.
type MarketProvider interface {
	// FetchMarkets returns active, unresolved markets that already passed the
	// upstream liquidity and volume filters.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)
}

// QuoteProvider prices markets from the order books.
type QuoteProvider interface {
	// FetchQuotes returns one quote per market ID. Markets without a usable
	// book are absent from the map.
	FetchQuotes(ctx context.Context, markets []domain.Market) (map[string]domain.MarketQuote, error)

	// FetchMarks returns the liquidation price per token ID: the best bid, or
	// the best ask when the book has no bids. Tokens without a usable book
	// are absent from the map.
	FetchMarks(ctx context.Context, tokenIDs []string) (map[string]float64, error)
}
