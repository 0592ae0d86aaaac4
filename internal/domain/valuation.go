package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Valuation is the authoritative current price snapshot of an asset.
// ValueUSD / Value is the asset's native/USD exchange rate.
type Valuation struct {
	Value           decimal.Decimal `json:"value"`
	ValueUSD        decimal.Decimal `json:"valueUsd"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
}

// ExchangeRate returns ValueUSD / Value. A zero native value has no rate.
func (v Valuation) ExchangeRate() (decimal.Decimal, error) {
	if v.Value.IsZero() {
		return decimal.Zero, fmt.Errorf("native value is zero, exchange rate undefined: %w", ErrInvalidState)
	}
	return v.ValueUSD.Div(v.Value), nil
}

// Asset holds the valuation-relevant fields of a tokenized real-world asset.
// Fields other than CurrentPrice are owned by external collaborators.
type Asset struct {
	TokenID      int64     `json:"tokenId"`
	CurrentPrice Valuation `json:"currentPrice"`
	IsListed     bool      `json:"isListed"`
	CreatedAt    time.Time `json:"createdAt"`
}
