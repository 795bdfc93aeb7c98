package domain

// OrderBook is the CLOB book of one outcome token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // best (highest) first
	Asks    []BookEntry // best (lowest) first
}

// BookEntry is one price level.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid returns the highest bid, 0 on an empty side.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk returns the lowest ask, 0 on an empty side.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}
