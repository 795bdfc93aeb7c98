package domain

// EdgeSignal is a tradeable mispricing found for one market in one cycle.
// ModelProbability and MarketPrice are expressed from the chosen side.
type EdgeSignal struct {
	MarketID            string
	Side                Side
	ModelProbability    float64
	MarketPrice         float64
	Edge                float64
	ModelYesProbability float64
}

// SkipReason tags why a market produced no trade in a cycle.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNoData           SkipReason = "no_data"
	SkipInvalidPrice     SkipReason = "invalid_price"
	SkipBelowThreshold   SkipReason = "below_threshold"
	SkipLowQuality       SkipReason = "low_quality"
	SkipLowConfidence    SkipReason = "low_confidence"
	SkipNoJudgment       SkipReason = "no_judgment"
	SkipBudget           SkipReason = "api_budget"
	SkipNonPositiveKelly SkipReason = "non_positive_kelly"
	SkipExposureCap      SkipReason = "exposure_cap"
	SkipCorrelationCap   SkipReason = "correlation_cap"
	SkipTooSmall         SkipReason = "too_small"
	SkipAlreadyHeld      SkipReason = "already_held"
	SkipExecution        SkipReason = "execution_failed"
	SkipError            SkipReason = "error"
)
