package handlers

import (
	"net/http"
	"strings"
	"time"

	"breedstudio/internal/domain"
	"breedstudio/internal/imagegen"
	"breedstudio/internal/providers/image"
	"breedstudio/internal/storage"
)

const (
	kindMaster  = "master"
	kindVariant = "variant"
)

type imageGenerateRequest struct {
	ReferenceImageData string `json:"referenceImageData"`
	BreedName          string `json:"breedName"`
	AnimalType         string `json:"animalType"`
	Color              string `json:"color"`
	APIKey             string `json:"apiKey"`
	CustomPrompt       string `json:"customPrompt"`
	Kind               string `json:"kind"`
}

type imageGenerateResponse struct {
	FileName  string `json:"fileName"`
	ImageData string `json:"imageData"`
	Prompt    string `json:"prompt"`
	IsValid   bool   `json:"isValid"`
}

type imageSaveRequest struct {
	ImageData string `json:"imageData"`
	FileName  string `json:"fileName"`
	BreedName string `json:"breedName"`
}

// ImagesGenerate runs one image edit outside of any session.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	var req imageGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = a.defaultKey()
	}
	if strings.TrimSpace(req.ReferenceImageData) == "" || strings.TrimSpace(req.BreedName) == "" ||
		strings.TrimSpace(req.AnimalType) == "" || strings.TrimSpace(req.Color) == "" || apiKey == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Missing required parameters")
		return
	}
	reference, mime, err := domain.DecodeDataURL(req.ReferenceImageData)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "referenceImageData is not valid base64")
		return
	}

	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	template := req.CustomPrompt
	if strings.TrimSpace(template) == "" {
		template = imagegen.DefaultMasterPrompt
		if kind == kindVariant {
			template = imagegen.DefaultVariantPrompt
		}
	}
	if kind != kindVariant {
		kind = kindMaster
	}
	prompt := imagegen.Render(template, imagegen.Vars{
		AnimalType: req.AnimalType,
		BreedName:  req.BreedName,
		Color:      req.Color,
	})

	started := time.Now()
	asset, err := a.Editor.Edit(r.Context(), image.EditRequest{
		APIKey:   apiKey,
		Prompt:   prompt,
		Image:    reference,
		MIME:     mime,
		Filename: "reference.png",
		Size:     a.Config.ImageSize,
	})
	a.Metrics.ObserveImage(kind, started, err)
	if err != nil {
		a.Logger.Error().Err(err).Str("breed", req.BreedName).Str("color", req.Color).Msg("image generation failed")
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, imageGenerateResponse{
		FileName:  domain.FileName(req.BreedName, req.Color),
		ImageData: domain.DataURL(asset.Data),
		Prompt:    prompt,
		IsValid:   domain.IsPlausibleImage(asset.Data),
	})
}

// ImagesSave writes a generated image below the breed directory.
func (a *App) ImagesSave(w http.ResponseWriter, r *http.Request) {
	var req imageSaveRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ImageData) == "" || strings.TrimSpace(req.FileName) == "" || strings.TrimSpace(req.BreedName) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "Missing required parameters")
		return
	}
	data, _, err := domain.DecodeDataURL(req.ImageData)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "imageData is not valid base64")
		return
	}
	key, err := a.Store.Write(r.Context(), storage.BreedKey(req.BreedName, req.FileName), data)
	a.Metrics.ObserveSave(err)
	if err != nil {
		a.Logger.Error().Err(err).Str("breed", req.BreedName).Str("file", req.FileName).Msg("save image failed")
		a.error(w, http.StatusInternalServerError, "internal", "Failed to save image")
		return
	}
	a.Logger.Info().Str("key", key).Msg("image saved")
	a.json(w, http.StatusOK, map[string]any{
		"success":  true,
		"filePath": storage.PublicPath(key),
		"message":  "Image saved successfully: " + req.FileName,
	})
}
