package api

import (
	"net/http"

	"github.com/mtlprog/rwaoracle/internal/source"
)

const defaultSourceLimit = 10

// ListSources handles GET /api/v1/sources.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.svc.Sources.List(r.Context())
	if err != nil {
		writeServiceError(w, "list sources", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sources))
}

// CreateSource handles POST /api/v1/sources.
func (h *Handler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var in source.Input
	if !decodeJSON(w, r, &in) {
		return
	}
	ds, err := h.svc.Sources.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, "create source", err)
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

// GetSource handles GET /api/v1/sources/{id}.
func (h *Handler) GetSource(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Sources.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "get source", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// UpdateSource handles PATCH /api/v1/sources/{id}.
func (h *Handler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	var p source.Patch
	if !decodeJSON(w, r, &p) {
		return
	}
	ds, err := h.svc.Sources.Update(r.Context(), r.PathValue("id"), p)
	if err != nil {
		writeServiceError(w, "update source", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// DeleteSource handles DELETE /api/v1/sources/{id}.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sources.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, "delete source", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetSourceEnabled handles PUT /api/v1/sources/{id}/enabled.
func (h *Handler) SetSourceEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	ds, err := h.svc.Sources.SetEnabled(r.Context(), r.PathValue("id"), *req.Enabled)
	if err != nil {
		writeServiceError(w, "set source enabled", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// RecordFetchOutcome handles POST /api/v1/sources/{id}/outcomes.
func (h *Handler) RecordFetchOutcome(w http.ResponseWriter, r *http.Request) {
	var out source.FetchOutcome
	if !decodeJSON(w, r, &out) {
		return
	}
	ds, err := h.svc.Sources.RecordFetchOutcome(r.Context(), r.PathValue("id"), out)
	if err != nil {
		writeServiceError(w, "record fetch outcome", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

type accuracyRequest struct {
	Accuracy *float64 `json:"accuracy"`
}

// SetSourceAccuracy handles PUT /api/v1/sources/{id}/accuracy.
func (h *Handler) SetSourceAccuracy(w http.ResponseWriter, r *http.Request) {
	var req accuracyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Accuracy == nil {
		writeError(w, http.StatusBadRequest, "accuracy is required")
		return
	}
	ds, err := h.svc.Sources.SetPriceAccuracy(r.Context(), r.PathValue("id"), *req.Accuracy)
	if err != nil {
		writeServiceError(w, "set source accuracy", err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// SelectOptimalSources handles GET /api/v1/sources/optimal?limit=.
func (h *Handler) SelectOptimalSources(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultSourceLimit)
	if !ok {
		return
	}
	sources, err := h.svc.Sources.SelectOptimal(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "select optimal sources", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sources))
}

// DueSources handles GET /api/v1/sources/due?limit=.
func (h *Handler) DueSources(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultSourceLimit)
	if !ok {
		return
	}
	sources, err := h.svc.Sources.Due(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "due sources", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(sources))
}
