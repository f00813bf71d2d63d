package domain

import "time"

// Opportunity is a detected, costed cross-venue price discrepancy for one
// pair. Opportunities are immutable once created; each detection cycle
// produces a fresh, independent set.
type Opportunity struct {
	ID               string    `json:"id"`
	Pair             string    `json:"pair"`
	Buy              Quote     `json:"buy"`  // the lower-priced side
	Sell             Quote     `json:"sell"` // the higher-priced side
	PriceGap         float64   `json:"price_gap"`
	PriceGapPercent  float64   `json:"price_gap_percent"`
	ReferenceSize    float64   `json:"reference_size"` // base units used for sizing
	GrossProfitUSD   float64   `json:"gross_profit_usd"`
	CostUSD          float64   `json:"cost_usd"` // summed buy-side + sell-side execution cost
	NetProfitUSD     float64   `json:"net_profit_usd"`
	NetMarginPercent float64   `json:"net_margin_percent"`
	Profitable       bool      `json:"profitable"`
	DetectedAt       time.Time `json:"detected_at"`
}
