package domain

import "time"

// DataSourceKind is the transport of an external price feed.
type DataSourceKind string

const (
	DataSourceAPI    DataSourceKind = "api"
	DataSourceFile   DataSourceKind = "file"
	DataSourceStream DataSourceKind = "stream"
)

// Valid reports whether k is a known kind.
func (k DataSourceKind) Valid() bool {
	switch k {
	case DataSourceAPI, DataSourceFile, DataSourceStream:
		return true
	}
	return false
}

// Score bounds for Reliability and PriceAccuracy.
const (
	MinScore = 0.0
	MaxScore = 100.0
)

// DataSourceConfig holds fetch settings. Mapping and Auth are opaque to the core.
type DataSourceConfig struct {
	RefreshIntervalSeconds int               `json:"refreshIntervalSeconds"`
	Mapping                map[string]string `json:"mapping,omitempty"`
	Auth                   map[string]string `json:"auth,omitempty"`
}

// RefreshInterval returns the configured interval as a duration.
func (c DataSourceConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

// DataSource is an external price feed tracked by the registry.
type DataSource struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Kind          DataSourceKind   `json:"kind"`
	Config        DataSourceConfig `json:"config"`
	Enabled       bool             `json:"enabled"`
	LastFetchAt   *time.Time       `json:"lastFetchAt,omitempty"`
	NextFetchAt   *time.Time       `json:"nextFetchAt,omitempty"`
	ErrorCount    int              `json:"errorCount"`
	LastError     string           `json:"lastError,omitempty"`
	Reliability   float64          `json:"reliability"`
	LatencyMs     int64            `json:"latencyMs"`
	PriceAccuracy float64          `json:"priceAccuracy"`
	Weighting     float64          `json:"weighting"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}
