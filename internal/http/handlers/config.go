package handlers

import (
	"net/http"
	"strings"
)

type configResponse struct {
	APIKey    string `json:"apiKey"`
	HasEnvKey bool   `json:"hasEnvKey"`
	EnvFile   string `json:"envFile,omitempty"`
}

type configUpdateRequest struct {
	APIKey string `json:"apiKey"`
}

// GetConfig reports whether a default credential is configured. The key
// itself is masked.
func (a *App) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := a.defaultKey()
	resp := configResponse{APIKey: maskKey(key), HasEnvKey: key != ""}
	if a.Credentials != nil {
		resp.EnvFile = a.Credentials.Path()
	}
	a.json(w, http.StatusOK, resp)
}

// SaveConfig persists the default credential for later starts.
func (a *App) SaveConfig(w http.ResponseWriter, r *http.Request) {
	var req configUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "API key is required")
		return
	}
	if a.Credentials == nil {
		a.error(w, http.StatusInternalServerError, "internal", "credential store not configured")
		return
	}
	if err := a.Credentials.SetOpenAIAPIKey(r.Context(), req.APIKey); err != nil {
		a.Logger.Error().Err(err).Msg("save api key failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to write "+a.Credentials.Path())
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "API key saved to " + a.Credentials.Path(),
	})
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", len(key)-7) + key[len(key)-4:]
}
