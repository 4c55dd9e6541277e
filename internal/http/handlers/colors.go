package handlers

import (
	"net/http"
	"strings"

	"breedstudio/internal/providers/colors"
)

type colorsRequest struct {
	BreedName          string `json:"breedName"`
	AnimalType         string `json:"animalType"`
	APIKey             string `json:"apiKey"`
	CustomColorsPrompt string `json:"customColorsPrompt"`
}

// Colors resolves the natural coat colors of one breed.
func (a *App) Colors(w http.ResponseWriter, r *http.Request) {
	var req colorsRequest
	if !a.decode(w, r, &req) {
		return
	}
	switch {
	case strings.TrimSpace(req.BreedName) == "":
		a.error(w, http.StatusBadRequest, "bad_request", "Breed name is required")
		return
	case strings.TrimSpace(req.AnimalType) == "":
		a.error(w, http.StatusBadRequest, "bad_request", "Animal type is required")
		return
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = a.defaultKey()
	}
	if apiKey == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "API key is required")
		return
	}
	found, err := a.Resolver.Resolve(r.Context(), colors.Request{
		BreedName:  req.BreedName,
		AnimalType: req.AnimalType,
		APIKey:     apiKey,
		Template:   req.CustomColorsPrompt,
	})
	a.Metrics.ObserveColors("llm", err)
	if err != nil {
		a.Logger.Warn().Err(err).Str("breed", req.BreedName).Msg("color lookup failed")
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"colors": found})
}
