package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies where a realized price came from.
type SourceKind string

const (
	SourceKindOracle  SourceKind = "oracle"
	SourceKindListing SourceKind = "listing"
	SourceKindSale    SourceKind = "sale"
	SourceKindManual  SourceKind = "manual"
)

// SourceKinds lists every valid SourceKind in display order.
var SourceKinds = []SourceKind{SourceKindOracle, SourceKindListing, SourceKindSale, SourceKindManual}

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindOracle, SourceKindListing, SourceKindSale, SourceKindManual:
		return true
	}
	return false
}

// PriceSource describes the origin of a ledger entry.
type PriceSource struct {
	Kind         SourceKind `json:"kind"`
	SourceName   string     `json:"sourceName,omitempty"`
	ModelVersion string     `json:"modelVersion,omitempty"`
	PredictionID string     `json:"predictionId,omitempty"` // set for entries produced by an accepted prediction
}

// PriceFactor is one driver attached to a ledger entry.
type PriceFactor struct {
	Name   string    `json:"name"`
	Weight float64   `json:"weight"`
	Impact Direction `json:"impact"`
}

// ChainRef is an opaque on-chain reference supplied by an external collaborator.
// It is stored but never validated.
type ChainRef struct {
	TxHash      string    `json:"txHash"`
	BlockNumber int64     `json:"blockNumber"`
	Timestamp   time.Time `json:"timestamp"`
}

// PriceHistoryEntry is an immutable realized price in the ledger.
type PriceHistoryEntry struct {
	ID              string          `json:"id"`
	TokenID         int64           `json:"tokenId"`
	Price           decimal.Decimal `json:"price"`
	PriceUSD        decimal.Decimal `json:"priceUsd"`
	Timestamp       time.Time       `json:"timestamp"`
	Source          PriceSource     `json:"source"`
	ConfidenceScore *float64        `json:"confidenceScore,omitempty"`
	Factors         []PriceFactor   `json:"factors,omitempty"`
	ChainRef        *ChainRef       `json:"chainRef,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// TimeRange is an optional inclusive [From, To] window. Nil bounds are open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t lies inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// Valid reports whether the bounds are ordered.
func (r TimeRange) Valid() bool {
	return r.From == nil || r.To == nil || !r.From.After(*r.To)
}
