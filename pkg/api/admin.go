package api

import (
	"net/http"

	"github.com/garagehq/docvision/pkg/cost"
)

// AdminAPI provides operator endpoints for session stats.
type AdminAPI struct {
	totals   *cost.SessionTotals
	adminKey string
}

func NewAdminAPI(totals *cost.SessionTotals, adminKey string) *AdminAPI {
	return &AdminAPI{totals: totals, adminKey: adminKey}
}

// RegisterRoutes registers admin endpoints.
func (api *AdminAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/admin/costs", api.authenticate(api.handleCosts))
	mux.HandleFunc("/admin/usage", api.authenticate(api.handleUsage))
}

// authenticate middleware checks the admin key header.
func (api *AdminAPI) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-Key") != api.adminKey {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}
		next(w, r)
	}
}

// handleCosts reports the advisory session spend. The number resets on
// restart; it is visibility, not billing.
func (api *AdminAPI) handleCosts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_cost_usd": api.totals.TotalUSD(),
		"requests":         api.totals.Requests(),
	})
}

func (api *AdminAPI) handleUsage(w http.ResponseWriter, r *http.Request) {
	reqs := api.totals.Requests()
	hits := api.totals.CacheHits()
	var hitRate float64
	if reqs > 0 {
		hitRate = float64(hits) / float64(reqs)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"requests":       reqs,
		"cache_hits":     hits,
		"cache_hit_rate": hitRate,
	})
}
