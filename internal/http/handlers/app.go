package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"breedstudio/internal/domain"
	"breedstudio/internal/infra"
	"breedstudio/internal/infra/credentials"
	"breedstudio/internal/providers/image"
	"breedstudio/internal/storage"
	"breedstudio/internal/workflow"
)

const maxBodyBytes = 64 << 20

type App struct {
	Config      *infra.Config
	Logger      zerolog.Logger
	Sessions    *workflow.Manager
	Resolver    workflow.ColorResolver
	Editor      image.Editor
	Store       storage.Store
	Credentials *credentials.Store
	Registry    *prometheus.Registry
	Metrics     *infra.Metrics
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": errorBody{Code: code, Message: message}})
}

// writeError maps workflow and provider failures onto the error envelope.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if pe, ok := image.AsProviderError(err); ok {
		status := pe.Status
		if pe.Code != image.CodeOrgVerification {
			status = http.StatusBadGateway
		}
		a.json(w, status, map[string]any{"error": errorBody{Code: pe.Code, Message: pe.Message, Hint: pe.Hint}})
		return
	}
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrBreedBusy),
		errors.Is(err, domain.ErrMasterNotApproved),
		errors.Is(err, domain.ErrMasterMissing),
		errors.Is(err, domain.ErrNoReference),
		errors.Is(err, domain.ErrNoColors):
		a.error(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrOrgVerification):
		a.json(w, http.StatusForbidden, map[string]any{"error": errorBody{
			Code:    image.CodeOrgVerification,
			Message: err.Error(),
			Hint:    domain.OrgVerificationHint,
		}})
	case errors.Is(err, domain.ErrProviderFailure):
		a.error(w, http.StatusBadGateway, image.CodeUpstream, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		a.error(w, http.StatusGatewayTimeout, "timeout", "operation timed out")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// decode reads a JSON body. An empty body leaves v untouched.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func (a *App) defaultKey() string {
	if a.Credentials == nil {
		return ""
	}
	key, err := a.Credentials.OpenAIAPIKey(context.Background())
	if err != nil {
		a.Logger.Warn().Err(err).Msg("default api key unavailable")
		return ""
	}
	return key
}
