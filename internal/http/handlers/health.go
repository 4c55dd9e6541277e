package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": a.Sessions.Len(),
	})
}

// MetricsHandler serves the registry the workflow counters live on.
func (a *App) MetricsHandler() http.Handler {
	if a.Registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}
