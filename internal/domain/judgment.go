package domain

// Judgment is the parsed output of the analysis collaborator.
// CostUSD is meaningful even when the call failed after being billed.
type Judgment struct {
	Probability float64
	Confidence  float64
	Reasoning   string
	DataQuality string // high | medium | low
	CostUSD     float64
}

// Facts is the structured input handed to the analyst.
type Facts struct {
	MarketID          string        `json:"market_id"`
	Question          string        `json:"question"`
	YesPrice          float64       `json:"yes_price"`
	NoPrice           float64       `json:"no_price"`
	Volume24h         float64       `json:"volume_24h"`
	Liquidity         float64       `json:"liquidity"`
	HoursToResolution float64       `json:"hours_to_resolution"`
	Weather           *WeatherFacts `json:"weather,omitempty"`
}

// WeatherFacts summarizes the model view of a weather market.
type WeatherFacts struct {
	City             string  `json:"city"`
	Date             string  `json:"date"`
	Outcome          string  `json:"outcome"`
	ModelProbability float64 `json:"model_probability"`
	EnsembleMean     float64 `json:"ensemble_mean"`
	EnsembleStd      float64 `json:"ensemble_std"`
	RawMean          float64 `json:"raw_mean"`
	Members          int     `json:"members"`
	AnchorSource     string  `json:"anchor_source,omitempty"`
	SpreadFactor     float64 `json:"spread_factor"`
	Degenerate       bool    `json:"degenerate"`
}
