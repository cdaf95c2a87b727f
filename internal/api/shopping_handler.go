package api

import (
	"net/http"

	"github.com/phrazzld/fesoni/internal/api/shared"
	"github.com/phrazzld/fesoni/internal/orchestrator"
)

// Shopping handles POST /api/shopping. The enhanced flag selects the
// enhanced pipeline, which falls back to the simplified one on failure.
func (h *Handler) Shopping(w http.ResponseWriter, r *http.Request) {
	var req ShoppingRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var (
		res *orchestrator.Result
		err error
	)
	if req.Enhanced {
		res, err = h.shopper.ProcessEnhancedShoppingRequest(r.Context(), req.Input, req.UserID)
	} else {
		res, err = h.shopper.ProcessShoppingRequest(r.Context(), req.Input, req.UserID)
	}
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, res)
}

// SystemStatus handles GET /api/system/status.
func (h *Handler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.shopper.GetSystemStatus(r.Context()))
}

// GatewayMetrics handles GET /api/gateway/metrics.
func (h *Handler) GatewayMetrics(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.gateway.GetMetrics())
}

// RateLimit handles GET /api/gateway/rate-limits/{service}.
func (h *Handler) RateLimit(w http.ResponseWriter, r *http.Request) {
	service, err := getPathParam(r, "service")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, h.gateway.CheckRateLimit(r.Context(), service))
}

// RecentNotifications handles GET /api/notifications.
func (h *Handler) RecentNotifications(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.notifications.Recent())
}
