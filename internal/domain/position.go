package domain

import "time"

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionExited PositionStatus = "exited"
)

// ExitReason tags why a position left the Open state.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEdgeDecay  ExitReason = "edge_decay"
	ExitResolved   ExitReason = "resolved"
)

// Position is a holding in one side of a market.
// Entry fields never change after insert; CurrentPrice and CurrentProbability
// are marks refreshed every cycle.
type Position struct {
	ID               string
	MarketID         string
	Question         string
	TokenID          string
	Side             Side
	EntryPrice       float64
	Shares           float64
	CostUSD          float64
	CorrelationGroup string
	EntryProbability float64
	Weather          bool
	Status           PositionStatus
	OpenedAt         time.Time

	CurrentPrice       float64
	CurrentProbability *float64
	MarkedAt           time.Time

	ExitReason  ExitReason
	ExitPrice   float64
	RealizedPnL float64
	ClosedAt    time.Time
}

// IsOpen reports whether the position still holds shares.
func (p Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// Mark returns the latest price, falling back to the entry price.
func (p Position) Mark() float64 {
	if p.CurrentPrice > 0 {
		return p.CurrentPrice
	}
	return p.EntryPrice
}

// LiquidationValue is what the shares would fetch at the current mark.
func (p Position) LiquidationValue() float64 {
	return p.Mark() * p.Shares
}

// UnrealizedPnL is the mark-to-market gain over cost basis.
func (p Position) UnrealizedPnL() float64 {
	return p.LiquidationValue() - p.CostUSD
}

// ExitDecision is the position manager's verdict for one position.
type ExitDecision struct {
	Position Position
	Exit     bool
	Reason   ExitReason
	Price    float64 // price the exit would execute at
	Detail   string
}
