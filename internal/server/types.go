package server

import (
	"time"

	"github.com/kiesman99/retile/internal/config"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

// HealthStatus is the server state reported by the health endpoint
type HealthStatus string

const Healthy HealthStatus = "healthy"

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    HealthStatus `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	Uptime    *int         `json:"uptime,omitempty"`
	Version   *string      `json:"version,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	RequestId *string         `json:"request_id,omitempty"`
	Details   *map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeInvalidJSON    = "INVALID_JSON"
	ErrCodeUnknownDataset = "UNKNOWN_DATASET"
	ErrCodeTileNotFound   = "TILE_NOT_IN_MANIFEST"
	ErrCodeTileFetch      = "TILE_FETCH_ERROR"
	ErrCodeTileTimeout    = "TILE_FETCH_TIMEOUT"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// DatasetInfo describes one configured dataset
type DatasetInfo struct {
	Name        string       `json:"name"`
	Template    string       `json:"template"`
	Format      pixel.Format `json:"format"`
	Compression string       `json:"compression"`
	Tiles       *int         `json:"tiles,omitempty"`
}

// DatasetsResponse is returned by GET /datasets
type DatasetsResponse struct {
	Datasets []DatasetInfo `json:"datasets"`
}

// PreviewRequest renders one tile of an ad-hoc dataset
type PreviewRequest struct {
	Config config.DatasetConfig `json:"config"`
	Coord  tile.TileCoord       `json:"coord"`
	MinVal float64              `json:"min_val"`
	MaxVal float64              `json:"max_val"`
	Format string               `json:"format,omitempty"`
}

// PreviewParams are the query parameters of GET /datasets/{name}/preview
type PreviewParams struct {
	X      int
	Y      int
	Z      *int
	Min    *float64
	Max    *float64
	Format *string
}
