package api

import (
	"net/http"

	"github.com/mtlprog/rwaoracle/internal/domain"
	"github.com/mtlprog/rwaoracle/internal/oracle"
)

const defaultPredictionLimit = 50

// SubmitPrediction handles POST /api/v1/assets/{tokenId}/predictions.
func (h *Handler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	var in oracle.PredictionInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.svc.Oracle.Submit(r.Context(), tokenID, in)
	if err != nil {
		writeServiceError(w, "submit prediction", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListPredictions handles GET /api/v1/assets/{tokenId}/predictions?limit=&status=.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := pathTokenID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, defaultPredictionLimit)
	if !ok {
		return
	}
	var status *domain.PredictionStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.PredictionStatus(s)
		status = &st
	}
	predictions, err := h.svc.Oracle.ListByToken(r.Context(), tokenID, limit, status)
	if err != nil {
		writeServiceError(w, "list predictions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(predictions))
}

// GetPrediction handles GET /api/v1/predictions/{id}.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Oracle.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "get prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type acceptRequest struct {
	ChainRef *domain.ChainRef `json:"chainRef,omitempty"`
}

// AcceptPrediction handles POST /api/v1/predictions/{id}/accept. The body is optional.
func (h *Handler) AcceptPrediction(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Oracle.Accept(r.Context(), r.PathValue("id"), req.ChainRef)
	if err != nil {
		writeServiceError(w, "accept prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// RejectPrediction handles POST /api/v1/predictions/{id}/reject. The body is optional.
func (h *Handler) RejectPrediction(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.Oracle.Reject(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeServiceError(w, "reject prediction", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PerformanceSummary handles GET /api/v1/predictions/performance?from=&to=.
func (h *Handler) PerformanceSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := queryRange(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.Oracle.PerformanceSummary(r.Context(), rng)
	if err != nil {
		writeServiceError(w, "performance summary", err)
		return
	}
	sum.ByModel = nonNil(sum.ByModel)
	writeJSON(w, http.StatusOK, sum)
}

// FeatureImportanceSummary handles GET /api/v1/predictions/features?from=&to=.
func (h *Handler) FeatureImportanceSummary(w http.ResponseWriter, r *http.Request) {
	rng, ok := queryRange(w, r)
	if !ok {
		return
	}
	features, err := h.svc.Oracle.FeatureImportanceSummary(r.Context(), rng)
	if err != nil {
		writeServiceError(w, "feature importance summary", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(features))
}
