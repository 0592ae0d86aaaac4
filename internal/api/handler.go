package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/ledger"
	"github.com/mtlprog/rwaoracle/internal/oracle"
)

const (
	maxLimit     = 1000
	maxBodyBytes = 1 << 20
)

// Handler provides HTTP endpoints for the pricing API.
type Handler struct {
	svc Services
}

// NewHandler creates a new API handler.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

// ListAssets handles GET /api/v1/assets.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Valuations.List(r.Context())
	if err != nil {
		writeServiceError(w, "list assets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]int64{"tokenIds": ids})
}

type registerAssetRequest struct {
	TokenID  int64           `json:"tokenId"`
	Value    decimal.Decimal `json:"value"`
	ValueUSD decimal.Decimal `json:"valueUsd"`
}

// RegisterAsset handles POST /api/v1/assets.
func (h *Handler) RegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req registerAssetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	asset, err := h.svc.Valuations.Register(r.Context(), req.TokenID, req.Value, req.ValueUSD)
	if err != nil {
		writeServiceError(w, "register asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

// GetAsset handles GET /api/v1/assets/{tokenId}.
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	asset, err := h.svc.Valuations.Get(r.Context(), tokenID)
	if err != nil {
		writeServiceError(w, "get asset", err)
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

type setValuationRequest struct {
	Value           *decimal.Decimal `json:"value"`
	ValueUSD        *decimal.Decimal `json:"valueUsd"`
	ConfidenceScore *float64         `json:"confidenceScore,omitempty"`
}

// SetValuation handles PUT /api/v1/assets/{tokenId}/valuation.
func (h *Handler) SetValuation(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	var req setValuationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Value == nil || req.ValueUSD == nil {
		writeError(w, http.StatusBadRequest, "value and valueUsd are required")
		return
	}
	v, err := h.svc.Valuations.SetValuation(r.Context(), tokenID, *req.Value, *req.ValueUSD, req.ConfidenceScore)
	if err != nil {
		writeServiceError(w, "set valuation", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ReconcileAsset handles POST /api/v1/assets/{tokenId}/reconcile.
func (h *Handler) ReconcileAsset(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	changed, err := h.svc.Reconciler.Reconcile(r.Context(), tokenID)
	if err != nil {
		writeServiceError(w, "reconcile valuation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

// QueryHistory handles GET /api/v1/assets/{tokenId}/history.
func (h *Handler) QueryHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, ledger.DefaultQueryLimit)
	if !ok {
		return
	}
	rng, ok := queryRange(w, r)
	if !ok {
		return
	}
	entries, err := h.svc.Ledger.Query(r.Context(), tokenID, limit, rng)
	if err != nil {
		writeServiceError(w, "query history", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// AppendHistory handles POST /api/v1/assets/{tokenId}/history.
func (h *Handler) AppendHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	var entry domain.PriceHistoryEntry
	if !decodeJSON(w, r, &entry) {
		return
	}
	if entry.Source.Kind == domain.SourceKindOracle || entry.Source.PredictionID != "" {
		writeError(w, http.StatusBadRequest, "oracle entries are written by accepting a prediction")
		return
	}
	created, err := h.svc.Ledger.Append(r.Context(), tokenID, entry)
	if err != nil {
		writeServiceError(w, "append history", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// DeleteHistory handles DELETE /api/v1/assets/{tokenId}/history?from=&to=.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	rng, ok := queryRange(w, r)
	if !ok {
		return
	}
	if rng.From == nil || rng.To == nil {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	n, err := h.svc.Ledger.DeleteRange(r.Context(), tokenID, *rng.From, *rng.To)
	if err != nil {
		writeServiceError(w, "delete history", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// AggregateHistory handles GET /api/v1/assets/{tokenId}/history/aggregate.
func (h *Handler) AggregateHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}
	rng, ok := queryRange(w, r)
	if !ok {
		return
	}
	buckets, err := h.svc.Ledger.Aggregate(r.Context(), tokenID, period, rng)
	if err != nil {
		writeServiceError(w, "aggregate history", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(buckets))
}

// SourceDistribution handles GET /api/v1/assets/{tokenId}/history/sources.
func (h *Handler) SourceDistribution(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	shares, err := h.svc.Ledger.SourceDistribution(r.Context(), tokenID)
	if err != nil {
		writeServiceError(w, "source distribution", err)
		return
	}
	writeJSON(w, http.StatusOK, shares)
}

// GetAnalytics handles GET /api/v1/assets/{tokenId}/analytics.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.Analytics.Analytics(r.Context(), tokenID)
	if err != nil {
		writeServiceError(w, "analytics", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// GetTrend handles GET /api/v1/assets/{tokenId}/trend.
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	period, ok := queryPeriod(w, r)
	if !ok {
		return
	}
	rng, ok := queryRange(w, r)
	if !ok {
		return
	}
	trend, err := h.svc.Analytics.Trend(r.Context(), tokenID, period, rng)
	if err != nil {
		writeServiceError(w, "trend", err)
		return
	}
	trend.Buckets = nonNil(trend.Buckets)
	writeJSON(w, http.StatusOK, trend)
}

func pathTokenID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("tokenId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return 0, false
	}
	return id, true
}

// queryLimit reads ?limit, falling back to def. Non-positive values are
// passed through so the service can reject them.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return def, true
	}
	n, err := strconv.Atoi(l)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return min(n, maxLimit), true
}

func queryPeriod(w http.ResponseWriter, r *http.Request) (ledger.Period, bool) {
	p := r.URL.Query().Get("period")
	if p == "" {
		return ledger.PeriodDay, true
	}
	period, err := ledger.ParsePeriod(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return period, true
}

// queryRange reads ?from and ?to as RFC 3339 timestamps or YYYY-MM-DD
// dates. A bare date for "to" covers the whole day.
func queryRange(w http.ResponseWriter, r *http.Request) (domain.TimeRange, bool) {
	var rng domain.TimeRange
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		t, err := parseTime(s, false)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from: expected RFC 3339 or YYYY-MM-DD")
			return rng, false
		}
		rng.From = &t
	}
	if s := q.Get("to"); s != "" {
		t, err := parseTime(s, true)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to: expected RFC 3339 or YYYY-MM-DD")
			return rng, false
		}
		rng.To = &t
	}
	if !rng.Valid() {
		writeError(w, http.StatusBadRequest, "from is after to")
		return rng, false
	}
	return rng, true
}

func parseTime(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is empty")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	var acceptErr *oracle.AcceptError
	switch {
	case errors.As(err, &acceptErr) && acceptErr.Partial():
		slog.Error("partial prediction acceptance", "op", op, "step", acceptErr.Step, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": acceptErr.Error(),
			"step":  string(acceptErr.Step),
		})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "op", op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
