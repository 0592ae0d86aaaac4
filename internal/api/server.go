package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/rwaoracle/internal/analytics"
	"github.com/mtlprog/rwaoracle/internal/ledger"
	"github.com/mtlprog/rwaoracle/internal/metrics"
	"github.com/mtlprog/rwaoracle/internal/oracle"
	"github.com/mtlprog/rwaoracle/internal/source"
	"github.com/mtlprog/rwaoracle/internal/valuation"
)

// Services are the components exposed over HTTP.
type Services struct {
	Valuations *valuation.Service
	Reconciler *valuation.Reconciler
	Ledger     *ledger.Service
	Analytics  *analytics.Service
	Oracle     *oracle.Service
	Sources    *source.Service
}

// Keys are the bearer API keys granting each role. An empty key disables
// the check for routes that only that role may call.
type Keys struct {
	Admin  string
	Oracle string
}

// NewServer creates an HTTP server with all routes configured.
func NewServer(port string, svc Services, keys Keys) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewRouter(svc, keys),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewRouter registers every route on a ServeMux. Reads are public; writes
// need the admin key, or the oracle key where the oracle is a caller.
func NewRouter(svc Services, keys Keys) http.Handler {
	h := NewHandler(svc)
	admin := func(f http.HandlerFunc) http.Handler { return requireAuth(f, keys.Admin) }
	oracleOrAdmin := func(f http.HandlerFunc) http.Handler { return requireAuth(f, keys.Oracle, keys.Admin) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/assets", h.ListAssets)
	mux.Handle("POST /api/v1/assets", admin(h.RegisterAsset))
	mux.HandleFunc("GET /api/v1/assets/{tokenId}", h.GetAsset)
	mux.Handle("PUT /api/v1/assets/{tokenId}/valuation", admin(h.SetValuation))
	mux.Handle("POST /api/v1/assets/{tokenId}/reconcile", admin(h.ReconcileAsset))

	mux.HandleFunc("GET /api/v1/assets/{tokenId}/history", h.QueryHistory)
	mux.Handle("POST /api/v1/assets/{tokenId}/history", admin(h.AppendHistory))
	mux.Handle("DELETE /api/v1/assets/{tokenId}/history", admin(h.DeleteHistory))
	mux.HandleFunc("GET /api/v1/assets/{tokenId}/history/aggregate", h.AggregateHistory)
	mux.HandleFunc("GET /api/v1/assets/{tokenId}/history/sources", h.SourceDistribution)
	mux.HandleFunc("GET /api/v1/assets/{tokenId}/analytics", h.GetAnalytics)
	mux.HandleFunc("GET /api/v1/assets/{tokenId}/trend", h.GetTrend)

	mux.HandleFunc("GET /api/v1/assets/{tokenId}/predictions", h.ListPredictions)
	mux.Handle("POST /api/v1/assets/{tokenId}/predictions", oracleOrAdmin(h.SubmitPrediction))
	mux.HandleFunc("GET /api/v1/predictions/performance", h.PerformanceSummary)
	mux.HandleFunc("GET /api/v1/predictions/features", h.FeatureImportanceSummary)
	mux.HandleFunc("GET /api/v1/predictions/{id}", h.GetPrediction)
	mux.Handle("POST /api/v1/predictions/{id}/accept", oracleOrAdmin(h.AcceptPrediction))
	mux.Handle("POST /api/v1/predictions/{id}/reject", oracleOrAdmin(h.RejectPrediction))

	mux.HandleFunc("GET /api/v1/sources", h.ListSources)
	mux.Handle("POST /api/v1/sources", admin(h.CreateSource))
	mux.HandleFunc("GET /api/v1/sources/optimal", h.SelectOptimalSources)
	mux.HandleFunc("GET /api/v1/sources/due", h.DueSources)
	mux.HandleFunc("GET /api/v1/sources/{id}", h.GetSource)
	mux.Handle("PATCH /api/v1/sources/{id}", admin(h.UpdateSource))
	mux.Handle("DELETE /api/v1/sources/{id}", admin(h.DeleteSource))
	mux.Handle("PUT /api/v1/sources/{id}/enabled", admin(h.SetSourceEnabled))
	mux.Handle("POST /api/v1/sources/{id}/outcomes", oracleOrAdmin(h.RecordFetchOutcome))
	mux.Handle("PUT /api/v1/sources/{id}/accuracy", oracleOrAdmin(h.SetSourceAccuracy))

	return metrics.InstrumentHandler(mux)
}

// requireAuth admits requests bearing any of the non-empty apiKeys. When
// every key is empty the route is open.
func requireAuth(next http.Handler, apiKeys ...string) http.Handler {
	var keys [][]byte
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	if len(keys) == 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		token := []byte(strings.TrimPrefix(auth, "Bearer "))
		for _, k := range keys {
			if subtle.ConstantTimeCompare(token, k) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
	})
}
