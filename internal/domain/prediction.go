package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PredictionStatus is the lifecycle state of an oracle prediction.
// pending is initial; accepted and rejected are terminal.
type PredictionStatus string

const (
	PredictionPending  PredictionStatus = "pending"
	PredictionAccepted PredictionStatus = "accepted"
	PredictionRejected PredictionStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s PredictionStatus) Valid() bool {
	switch s {
	case PredictionPending, PredictionAccepted, PredictionRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted.
func (s PredictionStatus) Terminal() bool {
	return s == PredictionAccepted || s == PredictionRejected
}

// Direction is the sign of a feature's influence on a valuation.
type Direction string

const (
	DirectionPositive Direction = "positive"
	DirectionNegative Direction = "negative"
	DirectionNeutral  Direction = "neutral"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	switch d {
	case DirectionPositive, DirectionNegative, DirectionNeutral:
		return true
	}
	return false
}

// Sign maps the direction to +1, -1 or 0.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionPositive:
		return 1
	case DirectionNegative:
		return -1
	}
	return 0
}

// FeatureImportance explains how much one model input drove a prediction.
type FeatureImportance struct {
	Feature    string    `json:"feature"`
	Importance float64   `json:"importance"`
	Direction  Direction `json:"direction"`
}

// Prediction is an AI-submitted candidate valuation.
type Prediction struct {
	ID                 string              `json:"id"`
	TokenID            int64               `json:"tokenId"`
	Timestamp          time.Time           `json:"timestamp"`
	PredictedPrice     decimal.Decimal     `json:"predictedPrice"`
	ConfidenceScore    float64             `json:"confidenceScore"`
	SourcesUsed        []string            `json:"sourcesUsed"`
	ModelVersion       string              `json:"modelVersion"`
	Inputs             json.RawMessage     `json:"inputs,omitempty"`
	FeatureImportance  []FeatureImportance `json:"featureImportance"`
	PerformanceMetrics map[string]float64  `json:"performanceMetrics,omitempty"`
	Status             PredictionStatus    `json:"status"`
	RejectionReason    string              `json:"rejectionReason,omitempty"`
	ChainRef           *ChainRef           `json:"chainRef,omitempty"`
	ResolvedAt         *time.Time          `json:"resolvedAt,omitempty"`
}
