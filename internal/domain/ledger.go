package domain

import "time"

// EntryKind classifies a bankroll ledger row.
type EntryKind string

const (
	EntrySeed       EntryKind = "seed"
	EntryTrade      EntryKind = "trade"
	EntryExit       EntryKind = "exit"
	EntryAPICost    EntryKind = "api_cost"
	EntrySettlement EntryKind = "settlement"
	EntryAdjustment EntryKind = "adjustment"
)

// LedgerEntry is one append-only cash movement. Amount is signed: debits are
// negative.
type LedgerEntry struct {
	ID          string
	Cycle       int64
	Kind        EntryKind
	Amount      float64
	MarketID    string
	Description string
	CreatedAt   time.Time
}

// Bankroll is the solvency picture reconstructed from the ledger.
type Bankroll struct {
	AvailableCash    float64
	OpenExposure     float64 // cost basis of open positions
	LiquidationValue float64 // open positions at current marks
	Peak             float64
	OpenPositions    int
}

// Equity is cash plus what open positions would liquidate for.
func (b Bankroll) Equity() float64 {
	return b.AvailableCash + b.LiquidationValue
}

// Drawdown returns the fractional drop of equity from the peak.
func (b Bankroll) Drawdown() float64 {
	if b.Peak <= 0 {
		return 0
	}
	dd := (b.Peak - b.Equity()) / b.Peak
	if dd < 0 {
		return 0
	}
	return dd
}

// TradeAction distinguishes entries from exits in the trade log.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// TradeRecord is one filled order in the trade log.
type TradeRecord struct {
	ID         string
	PositionID string
	Cycle      int64
	MarketID   string
	Question   string
	Side       Side
	Action     TradeAction
	Price      float64
	Shares     float64
	SizeUSD    float64
	Edge       float64
	Reason     string
	Paper      bool
	CreatedAt  time.Time
}

// APICost is a metered external-analysis charge.
type APICost struct {
	Cycle     int64
	MarketID  string
	Provider  string
	CostUSD   float64
	CreatedAt time.Time
}

// CycleRecord is the append-only summary of one cycle.
type CycleRecord struct {
	CycleNumber      int64
	MarketsScanned   int
	MarketsEvaluated int
	MarketsSkipped   int
	TradesPlaced     int
	PositionsExited  int
	APICostUSD       float64
	BankrollBefore   float64
	BankrollAfter    float64
	DrawdownActive   bool
	Aborted          bool // stopped part-way by an infrastructure error
	StartedAt        time.Time
	FinishedAt       time.Time
}

// DeathReport is the audit artifact emitted on solvency breach.
type DeathReport struct {
	Cause           string
	Cycle           int64
	Bankroll        Bankroll
	InitialSeed     float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalAPICost    float64
	TotalPnL        float64
	TradeCount      int
	Trades          []TradeRecord
	OpenPositions   []Position
	ClosedPositions []Position
	RecentCycles    []CycleRecord
	CreatedAt       time.Time
}

// StatusReport is the bankroll picture with its PnL breakdown, as shown by
// the report command.
type StatusReport struct {
	Bankroll        Bankroll
	Alive           bool
	InitialSeed     float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	TotalAPICost    float64
	TotalPnL        float64
	TradeCount      int
	Trades          []TradeRecord
	OpenPositions   []Position
	ClosedPositions []Position
	RecentCycles    []CycleRecord
	CreatedAt       time.Time
}
