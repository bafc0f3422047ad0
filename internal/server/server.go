package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kiesman99/retile/internal/config"
	"github.com/kiesman99/retile/internal/dataset"
	"github.com/kiesman99/retile/internal/preview"
	"github.com/kiesman99/retile/pkg/tile"
)

// Preview value range used when a request gives none
const (
	DefaultMin = 0
	DefaultMax = 400
)

// source is a configured dataset. Providers are not safe for concurrent use
// and their Load result is only valid until the next Load, so every access
// holds mu.
type source struct {
	mu       sync.Mutex
	name     string
	cfg      config.DatasetConfig
	provider *dataset.Provider
	manifest *dataset.Manifest
}

// Options configures a Server
type Options struct {
	Version string
	// Fetcher reads configured datasets. Ad-hoc previews go through it too,
	// restricted to http and https resources.
	Fetcher  tile.Fetcher
	Datasets map[string]config.DatasetConfig
	// MaxTileBytes caps the raw tile size of ad-hoc previews; zero means
	// config.DefaultMaxTileBytes
	MaxTileBytes int
	Logger       *zap.Logger
}

// Server renders tile previews over HTTP
type Server struct {
	startTime    time.Time
	version      string
	fetcher      tile.Fetcher
	adhocFetcher tile.Fetcher
	maxTileBytes int
	logger       *zap.Logger
	datasets     map[string]*source
}

// NewServer builds a provider for every dataset, loading manifests where
// configured
func NewServer(ctx context.Context, opts Options) (*Server, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("server: a fetcher is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxTileBytes <= 0 {
		opts.MaxTileBytes = config.DefaultMaxTileBytes
	}
	s := &Server{
		startTime:    time.Now(),
		version:      opts.Version,
		fetcher:      opts.Fetcher,
		adhocFetcher: tile.RemoteOnly(opts.Fetcher),
		maxTileBytes: opts.MaxTileBytes,
		logger:       opts.Logger,
		datasets:     make(map[string]*source, len(opts.Datasets)),
	}

	for name, d := range opts.Datasets {
		src, err := s.newSource(ctx, s.fetcher, name, d, d.CacheSlots)
		if err != nil {
			return nil, fmt.Errorf("dataset %s: %w", name, err)
		}
		s.datasets[name] = src
	}
	return s, nil
}

func (s *Server) newSource(ctx context.Context, fetcher tile.Fetcher, name string, d config.DatasetConfig, slots int) (*source, error) {
	resolved, err := d.Resolve()
	if err != nil {
		return nil, err
	}
	c, err := d.Codec()
	if err != nil {
		return nil, err
	}

	var manifest *dataset.Manifest
	if d.Manifest != "" {
		manifest, err = dataset.LoadManifest(ctx, fetcher, d.Manifest)
		if err != nil {
			return nil, err
		}
	}

	p, err := dataset.NewProvider(d.Template, c, fetcher, dataset.ProviderOptions{
		Offset:     d.Offset,
		CacheSlots: slots,
		Manifest:   manifest,
		Logger:     s.logger.With(zap.String("dataset", name)),
	})
	if err != nil {
		return nil, err
	}
	return &source{name: name, cfg: resolved, provider: p, manifest: manifest}, nil
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())

	response := HealthResponse{
		Status:    Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) names() []string {
	names := make([]string, 0, len(s.datasets))
	for name := range s.datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListDatasets returns the configured datasets sorted by name
func (s *Server) ListDatasets(w http.ResponseWriter, r *http.Request) {
	names := s.names()

	response := DatasetsResponse{Datasets: make([]DatasetInfo, 0, len(names))}
	for _, name := range names {
		src := s.datasets[name]
		info := DatasetInfo{
			Name:        name,
			Template:    src.cfg.Template,
			Format:      src.provider.Format(),
			Compression: src.cfg.Compression,
		}
		if src.manifest != nil {
			n := src.manifest.Len()
			info.Tiles = &n
		}
		response.Datasets = append(response.Datasets, info)
	}
	s.writeJSON(w, http.StatusOK, response)
}

// GetDatasetPreview renders a tile of a configured dataset
func (s *Server) GetDatasetPreview(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)

	name := chi.URLParam(r, "name")
	src, ok := s.datasets[name]
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, ErrCodeUnknownDataset,
			fmt.Sprintf("unknown dataset %q", name), &requestID, map[string]any{
				"available": s.names(),
			})
		return
	}

	params, err := bindPreviewParams(r)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), &requestID, nil)
		return
	}

	coord := tile.TileCoord{X: params.X, Y: params.Y}
	if params.Z != nil {
		coord.Z = *params.Z
	}
	lo, hi := float64(DefaultMin), float64(DefaultMax)
	if params.Min != nil {
		lo = *params.Min
	}
	if params.Max != nil {
		hi = *params.Max
	}
	format := ""
	if params.Format != nil {
		format = *params.Format
	}

	s.renderPreview(w, r, requestID, src, coord, lo, hi, format)
}

func bindPreviewParams(r *http.Request) (PreviewParams, error) {
	var params PreviewParams
	q := r.URL.Query()

	if err := runtime.BindQueryParameter("form", true, true, "x", q, &params.X); err != nil {
		return params, fmt.Errorf("invalid format for parameter x: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, true, "y", q, &params.Y); err != nil {
		return params, fmt.Errorf("invalid format for parameter y: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "z", q, &params.Z); err != nil {
		return params, fmt.Errorf("invalid format for parameter z: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "min", q, &params.Min); err != nil {
		return params, fmt.Errorf("invalid format for parameter min: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "max", q, &params.Max); err != nil {
		return params, fmt.Errorf("invalid format for parameter max: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "format", q, &params.Format); err != nil {
		return params, fmt.Errorf("invalid format for parameter format: %w", err)
	}
	return params, nil
}

// GetPreview renders a tile of the dataset described by the JSON in the
// request query parameter
func (s *Server) GetPreview(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)

	raw := r.URL.Query().Get("request")
	if raw == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"query parameter 'request' is required", &requestID, nil)
		return
	}

	var req PreviewRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidJSON,
			"Invalid JSON in request parameter", &requestID, nil)
		return
	}
	s.adhocPreview(w, r, requestID, &req)
}

// CreatePreview is GetPreview with the request in the body
func (s *Server) CreatePreview(w http.ResponseWriter, r *http.Request) {
	requestID := getRequestID(r)

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidJSON,
			"Invalid JSON in request body", &requestID, nil)
		return
	}
	s.adhocPreview(w, r, requestID, &req)
}

func (s *Server) adhocPreview(w http.ResponseWriter, r *http.Request, requestID string, req *PreviewRequest) {
	if err := req.Config.Validate("config"); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), &requestID, nil)
		return
	}
	if err := s.checkAdhoc(req.Config); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), &requestID, nil)
		return
	}

	// one slot, the request renders a single tile
	src, err := s.newSource(r.Context(), s.adhocFetcher, "adhoc", req.Config, 1)
	if err != nil {
		s.handlePreviewError(w, err, &requestID)
		return
	}
	s.renderPreview(w, r, requestID, src, req.Coord, req.MinVal, req.MaxVal, req.Format)
}

// checkAdhoc rejects client-supplied datasets that would read server-local
// files or allocate a tile larger than maxTileBytes
func (s *Server) checkAdhoc(d config.DatasetConfig) error {
	if !tile.IsRemote(d.Template) {
		return fmt.Errorf("config.template: %w", tile.ErrLocalResource)
	}
	if d.Manifest != "" && !tile.IsRemote(d.Manifest) {
		return fmt.Errorf("config.manifest: %w", tile.ErrLocalResource)
	}

	resolved, err := d.Resolve()
	if err != nil {
		return err
	}
	size, err := resolved.Format.CheckedRawSize()
	if err != nil {
		return fmt.Errorf("config.format: %w", err)
	}
	if size > s.maxTileBytes {
		return fmt.Errorf("config.format: tile of %d bytes exceeds the limit of %d bytes", size, s.maxTileBytes)
	}
	return nil
}

func (s *Server) renderPreview(w http.ResponseWriter, r *http.Request, requestID string, src *source, coord tile.TileCoord, lo, hi float64, format string) {
	out, err := preview.ParseOutput(format)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), &requestID, nil)
		return
	}
	if !(hi > lo) {
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			fmt.Sprintf("max (%g) must be greater than min (%g)", hi, lo), &requestID, nil)
		return
	}
	// manifests list level-0 tiles only
	if coord.Z == 0 && !src.provider.Has(coord) {
		s.writeErrorResponse(w, http.StatusNotFound, ErrCodeTileNotFound,
			fmt.Sprintf("tile %s is not in the manifest of %s", coord, src.name), &requestID, nil)
		return
	}

	src.mu.Lock()
	buf, err := src.provider.Load(r.Context(), coord)
	var raw []byte
	if err == nil {
		raw = bytes.Clone(buf)
	}
	src.mu.Unlock()
	if err != nil {
		s.handlePreviewError(w, err, &requestID)
		return
	}

	data, err := preview.Render(raw, src.provider.Format(), lo, hi, out)
	if err != nil {
		s.logger.Error("render failed", zap.String("request_id", requestID), zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, ErrCodeInternal,
			"Failed to render preview", &requestID, nil)
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))
	w.Header().Set("ETag", etag)
	w.Header().Set("X-Request-ID", requestID)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", out.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("error writing response", zap.Error(err))
	}
}

// handlePreviewError maps provider errors onto status codes
func (s *Server) handlePreviewError(w http.ResponseWriter, err error, requestID *string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, http.StatusGatewayTimeout, ErrCodeTileTimeout,
			"Tile requests timed out", requestID, nil)
	case errors.Is(err, dataset.ErrFetch):
		s.writeErrorResponse(w, http.StatusBadGateway, ErrCodeTileFetch, err.Error(), requestID, nil)
	case errors.Is(err, tile.ErrTemplate):
		s.writeErrorResponse(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), requestID, nil)
	default:
		s.logger.Error("preview failed", zap.Error(err))
		s.writeErrorResponse(w, http.StatusInternalServerError, ErrCodeInternal,
			"Internal server error", requestID, nil)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("error encoding response", zap.Error(err))
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string, details map[string]any) {
	response := ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}
	if details != nil {
		response.Details = &details
	}
	s.writeJSON(w, statusCode, response)
}

// getRequestID prefers the id set by the RequestID middleware
func getRequestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}
	return fmt.Sprintf("req_%d", time.Now().UnixNano())
}
