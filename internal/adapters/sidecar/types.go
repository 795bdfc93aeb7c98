package sidecar

// ensembleResponse is GET /weather/ensemble.
type ensembleResponse struct {
	City         string    `json:"city"`
	Date         string    `json:"date"`
	Models       []string  `json:"models"`
	Members      []float64 `json:"members"`
	NBMMaxTemp   *float64  `json:"nbm_max_temp"`
	NWSHigh      *float64  `json:"nws_high"`
	SpreadFactor *float64  `json:"spread_factor"`
	HRRRMaxTemp  *float64  `json:"hrrr_max_temp"`
}

// actualResponse is GET /weather/actual.
type actualResponse struct {
	City   string   `json:"city"`
	Date   string   `json:"date"`
	High   *float64 `json:"high"`
	Source string   `json:"source"`
}

// analyzeResponse is POST /analyze, also the body of a billed failure.
type analyzeResponse struct {
	Probability *float64 `json:"probability"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	DataQuality string   `json:"data_quality"`
	CostUSD     float64  `json:"cost_usd"`
	Error       string   `json:"error"`
}

// orderRequest is POST /order.
type orderRequest struct {
	TokenID string  `json:"token_id"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Side    string  `json:"side"`   // BUY | SELL
	Outcome string  `json:"outcome"` // YES | NO
}

type orderResponse struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	FilledPrice float64 `json:"filled_price"`
	FilledSize  float64 `json:"filled_size"`
}
