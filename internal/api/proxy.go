package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"stockverse/internal/app"
	"stockverse/observability"
	"stockverse/services"
)

// Default chart window when the caller gives none
const (
	defaultProxyInterval = "1m"
	defaultProxyRange    = "1d"
)

// HandleProxy forwards a chart request to the named upstream provider and
// returns its JSON unchanged.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	providerName := strings.ToLower(chi.URLParam(r, "provider"))
	provider, err := h.app.ChartProvider(providerName)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusNotFound)
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if err := h.ValidateSymbol(symbol); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := services.ChartRequest{
		Symbol:   symbol,
		Interval: queryOr(r, "interval", defaultProxyInterval),
		Range:    queryOr(r, "range", defaultProxyRange),
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.FetchTimeout())
	defer cancel()

	body, err := provider.GetChart(ctx, req)
	if err != nil {
		status := proxyErrorStatus(err)
		observability.WithProvider(providerName).Warn("proxy request failed",
			"symbol", symbol,
			"status", status,
			"error", err,
		)
		if ue, ok := services.IsUpstreamError(err); ok && len(ue.Body) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write(ue.Body)
			return
		}
		h.jsonError(w, proxyErrorMessage(status), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// HandleListProviders returns the configured proxy providers
func (h *Handler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]interface{}{"providers": h.app.ChartProviders()})
}

func queryOr(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return fallback
}

// proxyErrorStatus maps a provider failure to the status returned to the caller
func proxyErrorStatus(err error) int {
	if ue, ok := services.IsUpstreamError(err); ok {
		return ue.StatusCode
	}
	if errors.Is(err, app.ErrUnknownProvider) {
		return http.StatusNotFound
	}
	if errors.Is(err, services.ErrBreakerOpen) {
		return http.StatusServiceUnavailable
	}
	if isTimeout(err) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func proxyErrorMessage(status int) string {
	switch status {
	case http.StatusGatewayTimeout:
		return "upstream request timed out"
	case http.StatusServiceUnavailable:
		return "upstream temporarily unavailable"
	default:
		return "upstream request failed"
	}
}
