package domain

import "time"

// Market represents a binary prediction market on Polymarket.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	EndDate     time.Time // resolution date, from Gamma
	Volume      float64   // lifetime USDC volume
	Volume24h   float64   // USDC traded in the last 24h
	Liquidity   float64
	Weather     bool // listed under the weather tag
	Tokens      [2]Token
	Active      bool
	Closed      bool
}

// Token is one side of the market (YES/NO).
type Token struct {
	TokenID string
	Outcome string  // "Yes" | "No"
	Price   float64 // last price reported by Gamma
}

// Side is the outcome a position is long on.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other outcome.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketQuote is the observed YES/NO price pair for a market.
// The two prices do not need to sum to 1.
type MarketQuote struct {
	MarketID  string
	YesPrice  float64 // best ask for YES
	NoPrice   float64 // best ask for NO, 0 when unknown
	YesBid    float64
	NoBid     float64
	Volume24h float64
	Liquidity float64
	FetchedAt time.Time
}

// PriceFor returns the price paid to buy the given side.
// A missing NO ask falls back to the YES complement.
func (q MarketQuote) PriceFor(side Side) float64 {
	if side == SideYes {
		return q.YesPrice
	}
	if q.NoPrice > 0 {
		return q.NoPrice
	}
	return 1 - q.YesPrice
}

// MarkFor returns the liquidation price of the given side: the best bid when
// the book has one, otherwise the ask.
func (q MarketQuote) MarkFor(side Side) float64 {
	bid := q.YesBid
	if side == SideNo {
		bid = q.NoBid
	}
	if bid > 0 {
		return bid
	}
	return q.PriceFor(side)
}

// ValidPrice reports whether p is a tradeable binary price.
func ValidPrice(p float64) bool {
	return p > 0 && p < 1
}

// HoursToResolution returns the hours from now until the market resolves.
// Returns 0 when EndDate is unset or already past.
func (m Market) HoursToResolution(now time.Time) float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := m.EndDate.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// YesToken returns the YES token of the market.
func (m Market) YesToken() Token {
	for _, t := range m.Tokens {
		if t.Outcome == "Yes" {
			return t
		}
	}
	return m.Tokens[0]
}

// NoToken returns the NO token of the market.
func (m Market) NoToken() Token {
	for _, t := range m.Tokens {
		if t.Outcome == "No" {
			return t
		}
	}
	return m.Tokens[1]
}

// TokenFor returns the token bought when taking the given side.
func (m Market) TokenFor(side Side) Token {
	if side == SideYes {
		return m.YesToken()
	}
	return m.NoToken()
}

// TruncateQuestion shortens the market question to maxLen characters.
// An empty question falls back to the first characters of the conditionID.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
