package domain

import "time"

// Order is what the executor receives.
type Order struct {
	MarketID   string
	TokenID    string
	Side       Side
	Action     TradeAction
	SizeUSD    float64
	Shares     float64
	LimitPrice float64
}

// Fill is the executor's answer.
type Fill struct {
	OrderID   string
	Filled    bool
	FillPrice float64
	Shares    float64
	Paper     bool
}

// DecisionStatus is the outcome of evaluating one market in one cycle.
type DecisionStatus string

const (
	DecisionTraded  DecisionStatus = "traded"
	DecisionSkipped DecisionStatus = "skipped"
	DecisionError   DecisionStatus = "error"
)

// Decision is the per-market audit row of a cycle.
type Decision struct {
	Cycle            int64
	MarketID         string
	Question         string
	Weather          bool
	Status           DecisionStatus
	Reason           SkipReason
	Side             Side
	ModelProbability float64
	MarketPrice      float64
	Edge             float64
	SizeUSD          float64
	Detail           string
	CreatedAt        time.Time
}

// CycleSummary is what the notifier shows after each cycle.
type CycleSummary struct {
	Record    CycleRecord
	Bankroll  Bankroll
	Drawdown  float64
	Decisions []Decision
	Exits     []ExitDecision
	Skipped   map[SkipReason]int
}
