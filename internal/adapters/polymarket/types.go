package polymarket

import "encoding/json"

// Raw API DTOs, only used inside this package. mapping.go converts them.

// gammaMarket is one item of GET /markets. Token ids, outcomes and prices
// come as JSON arrays encoded inside strings; numbers sometimes as strings.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	EndDate       string      `json:"endDate"`
	EndDateISO    string      `json:"endDateIso"`
	Volume        json.Number `json:"volume"`
	Volume24h     json.Number `json:"volume24hr"`
	Liquidity     json.Number `json:"liquidity"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
	ClobTokenIDs  string      `json:"clobTokenIds"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
}

// gammaEvent is one item of GET /events; weather markets are its children.
type gammaEvent struct {
	Slug    string        `json:"slug"`
	Markets []gammaMarket `json:"markets"`
}

// orderBookRequest is one item of the POST /books body.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse is one book of the POST /books answer.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw keeps the API strings for exact parsing.
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}
