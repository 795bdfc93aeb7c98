package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// mapGammaMarket converts a Gamma DTO. It reports false when the market
// cannot be traded: no condition id or not exactly two outcome tokens.
func mapGammaMarket(gm gammaMarket) (domain.Market, bool) {
	if gm.ConditionID == "" {
		return domain.Market{}, false
	}
	tokens, ok := mapTokens(gm.ClobTokenIDs, gm.Outcomes, gm.OutcomePrices)
	if !ok {
		return domain.Market{}, false
	}

	m := domain.Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		Volume:      number(gm.Volume),
		Volume24h:   number(gm.Volume24h),
		Liquidity:   number(gm.Liquidity),
		Tokens:      tokens,
		Active:      gm.Active,
		Closed:      gm.Closed,
	}
	for _, raw := range []string{gm.EndDate, gm.EndDateISO} {
		if t, ok := parseEndDate(raw); ok {
			m.EndDate = t
			break
		}
	}
	return m, true
}

// mapTokens decodes the three string-encoded arrays into the YES/NO pair.
func mapTokens(idsRaw, outcomesRaw, pricesRaw string) ([2]domain.Token, bool) {
	var tokens [2]domain.Token
	var ids, outcomes, prices []string
	if err := json.Unmarshal([]byte(idsRaw), &ids); err != nil {
		return tokens, false
	}
	if err := json.Unmarshal([]byte(outcomesRaw), &outcomes); err != nil {
		return tokens, false
	}
	if len(ids) != 2 || len(outcomes) != 2 {
		return tokens, false
	}
	_ = json.Unmarshal([]byte(pricesRaw), &prices) // prices are informative only

	for i := range tokens {
		tokens[i] = domain.Token{TokenID: ids[i], Outcome: outcomes[i]}
		if i < len(prices) {
			tokens[i].Price, _ = strconv.ParseFloat(prices[i], 64)
		}
	}
	return tokens, true
}

func number(n json.Number) float64 {
	v, err := n.Float64()
	if err != nil {
		return 0
	}
	return v
}

// parseEndDate accepts the layouts Gamma is known to send.
func parseEndDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// mapOrderBooks turns a POST /books answer into tokenID -> book.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries parses and sorts one side: ascending for asks, descending
// for bids. Unparseable or empty levels are dropped.
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price, err1 := strconv.ParseFloat(r.Price, 64)
		size, err2 := strconv.ParseFloat(r.Size, 64)
		if err1 != nil || err2 != nil || price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})
	return entries
}

// quoteFromBooks prices a market at the best asks. A market without a valid
// YES ask has no quote; a missing NO ask leaves NoPrice at 0.
func quoteFromBooks(m domain.Market, books map[string]domain.OrderBook, at time.Time) (domain.MarketQuote, bool) {
	yes, ok := books[m.YesToken().TokenID]
	if !ok || !domain.ValidPrice(yes.BestAsk()) {
		return domain.MarketQuote{}, false
	}
	no := books[m.NoToken().TokenID]

	q := domain.MarketQuote{
		MarketID:  m.ConditionID,
		YesPrice:  yes.BestAsk(),
		YesBid:    yes.BestBid(),
		NoBid:     no.BestBid(),
		Volume24h: m.Volume24h,
		Liquidity: m.Liquidity,
		FetchedAt: at,
	}
	if domain.ValidPrice(no.BestAsk()) {
		q.NoPrice = no.BestAsk()
	}
	return q, true
}

// markFromBook is the liquidation price of one token: best bid, else best ask.
func markFromBook(b domain.OrderBook) (float64, bool) {
	if bid := b.BestBid(); domain.ValidPrice(bid) {
		return bid, true
	}
	if ask := b.BestAsk(); domain.ValidPrice(ask) {
		return ask, true
	}
	return 0, false
}
