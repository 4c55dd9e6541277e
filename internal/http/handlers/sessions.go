package handlers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"breedstudio/internal/domain"
	"breedstudio/internal/imagegen"
	"breedstudio/internal/infra"
	"breedstudio/internal/storage"
	"breedstudio/internal/workflow"
)

type sessionCreateRequest struct {
	AnimalType string             `json:"animalType"`
	Manifest   string             `json:"manifest"`
	Prompts    imagegen.Templates `json:"prompts"`
	APIKey     string             `json:"apiKey"`
}

type manifestRequest struct {
	Manifest string `json:"manifest"`
}

type referenceRequest struct {
	ImageData string `json:"imageData"`
}

type selectionRequest struct {
	Colors []string `json:"colors"`
}

type masterDTO struct {
	Color      string `json:"color"`
	FileName   string `json:"fileName"`
	IsApproved bool   `json:"isApproved"`
	ImageURL   string `json:"imageUrl,omitempty"`
	ImageData  string `json:"imageData,omitempty"`
	SaveError  string `json:"saveError,omitempty"`
}

type imageDTO struct {
	FileName     string `json:"fileName"`
	Color        string `json:"color"`
	Version      int    `json:"version"`
	IsError      bool   `json:"isError"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ImageData    string `json:"imageData,omitempty"`
	SaveError    string `json:"saveError,omitempty"`
}

type breedDTO struct {
	BreedName       string        `json:"breedName"`
	AnimalType      string        `json:"animalType"`
	Colors          []string      `json:"colors"`
	Status          domain.Status `json:"status"`
	SelectedColors  []string      `json:"selectedColors"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	MasterImage     *masterDTO    `json:"masterImage,omitempty"`
	ProcessedImages []imageDTO    `json:"processedImages"`
}

type sessionDTO struct {
	ID           string             `json:"id"`
	AnimalType   string             `json:"animalType"`
	Prompts      imagegen.Templates `json:"prompts"`
	HasReference bool               `json:"hasReference"`
	Breeds       []breedDTO         `json:"breeds"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// withImages reports whether the caller asked for inline data URLs.
func withImages(r *http.Request) bool {
	v := r.URL.Query().Get("images")
	return v == "1" || strings.EqualFold(v, "true")
}

func (a *App) imageURL(key string) string {
	if key == "" || a.Config == nil || a.Config.StorageDriver != infra.StorageDriverFS {
		return ""
	}
	return storage.PublicPath(key)
}

func (a *App) toBreedDTO(rec domain.BreedRecord, inline bool) breedDTO {
	out := breedDTO{
		BreedName:       rec.BreedName,
		AnimalType:      rec.AnimalType,
		Colors:          nonNil(rec.Colors),
		Status:          rec.Status,
		SelectedColors:  nonNil(rec.SelectedColors),
		ErrorMessage:    rec.ErrorMessage,
		ProcessedImages: make([]imageDTO, 0, len(rec.ProcessedImages)),
	}
	if m := rec.MasterImage; m != nil {
		out.MasterImage = &masterDTO{
			Color:      m.Color,
			FileName:   m.FileName,
			IsApproved: m.IsApproved,
			ImageURL:   a.imageURL(m.StorageKey),
			SaveError:  m.SaveError,
		}
		if inline {
			out.MasterImage.ImageData = domain.DataURL(m.Image)
		}
	}
	for _, img := range rec.ProcessedImages {
		dto := imageDTO{
			FileName:     img.FileName,
			Color:        img.Color,
			Version:      img.Version,
			IsError:      img.IsError,
			ErrorMessage: img.ErrorMessage,
			ImageURL:     a.imageURL(img.StorageKey),
			SaveError:    img.SaveError,
		}
		if inline {
			dto.ImageData = domain.DataURL(img.Image)
		}
		out.ProcessedImages = append(out.ProcessedImages, dto)
	}
	return out
}

func (a *App) toSessionDTO(v workflow.View, inline bool) sessionDTO {
	out := sessionDTO{
		ID:           v.ID,
		AnimalType:   v.AnimalType,
		Prompts:      v.Templates,
		HasReference: v.HasReference,
		Breeds:       make([]breedDTO, 0, len(v.Breeds)),
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
	for _, rec := range v.Breeds {
		out.Breeds = append(out.Breeds, a.toBreedDTO(rec, inline))
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func (a *App) session(w http.ResponseWriter, r *http.Request) (*workflow.Session, bool) {
	s, err := a.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return nil, false
	}
	return s, true
}

func breedParam(r *http.Request) string {
	raw := chi.URLParam(r, "breed")
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (a *App) SessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	s, err := a.Sessions.Create(r.Context(), workflow.CreateOptions{
		Settings: workflow.Settings{
			AnimalType: req.AnimalType,
			Templates:  req.Prompts,
			APIKey:     req.APIKey,
		},
		Manifest: req.Manifest,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, a.toSessionDTO(s.View(), false))
}

func (a *App) SessionGet(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.toSessionDTO(s.View(), withImages(r)))
}

func (a *App) SessionUpdate(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req sessionCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	v := s.UpdateSettings(r.Context(), workflow.Settings{
		AnimalType: req.AnimalType,
		Templates:  req.Prompts,
		APIKey:     req.APIKey,
	})
	a.json(w, http.StatusOK, a.toSessionDTO(v, false))
}

func (a *App) SessionDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ManifestImport accepts either raw text or {"manifest": "..."}.
func (a *App) ManifestImport(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var text string
	if isJSON(r) {
		var req manifestRequest
		if !a.decode(w, r, &req) {
			return
		}
		text = req.Manifest
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid manifest")
			return
		}
		text = string(body)
	}
	touched, err := s.IngestManifest(r.Context(), text)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"breeds":  touched,
		"session": a.toSessionDTO(s.View(), false),
	})
}

func (a *App) ManifestExport(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", domain.ManifestFileName(s.AnimalType())))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.ExportManifest())
}

// ReferenceSet accepts {"imageData": "data:..."} or a raw image body.
func (a *App) ReferenceSet(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var (
		data     []byte
		mimeType string
		err      error
	)
	if isJSON(r) {
		var req referenceRequest
		if !a.decode(w, r, &req) {
			return
		}
		data, mimeType, err = domain.DecodeDataURL(req.ImageData)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "imageData is not valid base64")
			return
		}
	} else {
		data, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid image body")
			return
		}
		mimeType, _, _ = mime.ParseMediaType(r.Header.Get("Content-Type"))
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = "image/png"
		}
	}
	if err := s.SetReference(r.Context(), data, mimeType); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.toSessionDTO(s.View(), false))
}

func (a *App) ColorsResolve(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	summary, err := s.ResolveColors(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"summary": summary,
		"session": a.toSessionDTO(s.View(), false),
	})
}

func (a *App) GenerateAll(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	summary, err := s.GenerateAll(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"summary": summary,
		"session": a.toSessionDTO(s.View(), false),
	})
}

func (a *App) BreedGet(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	rec, err := s.Breed(breedParam(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.toBreedDTO(rec, withImages(r)))
}

// breedAction adapts a per-breed workflow operation into a handler.
func (a *App) breedAction(op func(s *workflow.Session, r *http.Request, breed string) (domain.BreedRecord, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := a.session(w, r)
		if !ok {
			return
		}
		rec, err := op(s, r, breedParam(r))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		a.json(w, http.StatusOK, a.toBreedDTO(rec, withImages(r)))
	}
}

func (a *App) MasterGenerate() http.HandlerFunc {
	return a.breedAction(func(s *workflow.Session, r *http.Request, breed string) (domain.BreedRecord, error) {
		return s.GenerateMaster(r.Context(), breed)
	})
}

func (a *App) MasterApprove() http.HandlerFunc {
	return a.breedAction(func(s *workflow.Session, r *http.Request, breed string) (domain.BreedRecord, error) {
		return s.ApproveMaster(r.Context(), breed)
	})
}

func (a *App) VariantsGenerate() http.HandlerFunc {
	return a.breedAction(func(s *workflow.Session, r *http.Request, breed string) (domain.BreedRecord, error) {
		return s.GenerateVariants(r.Context(), breed)
	})
}

func (a *App) VariantsSkip() http.HandlerFunc {
	return a.breedAction(func(s *workflow.Session, r *http.Request, breed string) (domain.BreedRecord, error) {
		return s.SkipVariants(r.Context(), breed)
	})
}

func (a *App) VariantsRegenerate() http.HandlerFunc {
	return a.breedAction(func(s *workflow.Session, r *http.Request, breed string) (domain.BreedRecord, error) {
		return s.RegenerateSelected(r.Context(), breed)
	})
}

func (a *App) SelectionSet(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if !a.decode(w, r, &req) {
		return
	}
	rec, err := s.SetSelection(r.Context(), breedParam(r), req.Colors)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.toBreedDTO(rec, false))
}

func (a *App) BreedArchive(w http.ResponseWriter, r *http.Request) {
	s, ok := a.session(w, r)
	if !ok {
		return
	}
	breed := breedParam(r)
	archive, err := s.Archive(r.Context(), breed)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", storage.BreedDir(breed)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func isJSON(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}
