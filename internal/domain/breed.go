package domain

import (
	"encoding/base64"
	"strings"
)

// Status enumerates the per-breed workflow states.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusNeedsMaster Status = "needs_master"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

// DefaultAnimalType is used when a session does not name one.
const DefaultAnimalType = "Dog"

// MinImageDataURLLength is the validity floor for a generated image measured
// on its data URL encoding.
const MinImageDataURLLength = 1000

const pngDataURLPrefix = "data:image/png;base64,"

// MasterImage is the breed-accurate reference that variants are derived from.
type MasterImage struct {
	Color      string `json:"color"`
	Image      []byte `json:"-"`
	FileName   string `json:"fileName"`
	IsApproved bool   `json:"isApproved"`
	StorageKey string `json:"storageKey,omitempty"`
	SaveError  string `json:"saveError,omitempty"`
}

// ProcessedImage is one generated output for a breed. An entry for a call
// that returned no image has Version 0.
type ProcessedImage struct {
	FileName     string `json:"fileName"`
	Color        string `json:"color"`
	Image        []byte `json:"-"`
	Version      int    `json:"version"`
	IsError      bool   `json:"isError"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	StorageKey   string `json:"storageKey,omitempty"`
	SaveError    string `json:"saveError,omitempty"`
}

// BreedRecord tracks everything known about one breed within a session.
type BreedRecord struct {
	BreedName       string           `json:"breedName"`
	AnimalType      string           `json:"animalType"`
	Colors          []string         `json:"colors"`
	MasterImage     *MasterImage     `json:"masterImage,omitempty"`
	ProcessedImages []ProcessedImage `json:"processedImages"`
	Status          Status           `json:"status"`
	SelectedColors  []string         `json:"selectedColors"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
}

// Clone returns a deep copy so callers can read a record without holding
// its lock.
func (r BreedRecord) Clone() BreedRecord {
	out := r
	out.Colors = append([]string(nil), r.Colors...)
	out.SelectedColors = append([]string(nil), r.SelectedColors...)
	if r.MasterImage != nil {
		m := *r.MasterImage
		m.Image = append([]byte(nil), r.MasterImage.Image...)
		out.MasterImage = &m
	}
	if r.ProcessedImages != nil {
		out.ProcessedImages = make([]ProcessedImage, len(r.ProcessedImages))
		for i, img := range r.ProcessedImages {
			img.Image = append([]byte(nil), img.Image...)
			out.ProcessedImages[i] = img
		}
	}
	return out
}

// HasApprovedMaster reports whether variants may be generated.
func (r BreedRecord) HasApprovedMaster() bool {
	return r.MasterImage != nil && r.MasterImage.IsApproved && len(r.MasterImage.Image) > 0
}

// VariantColors returns the colors still to be generated from the master,
// preserving order and skipping the master color.
func (r BreedRecord) VariantColors() []string {
	master := ""
	if r.MasterImage != nil {
		master = r.MasterImage.Color
	}
	out := make([]string, 0, len(r.Colors))
	for _, c := range r.Colors {
		if strings.EqualFold(c, master) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SelectedInOrder returns the selected colors following the order of Colors.
// Selections that are no longer part of Colors are appended at the end.
func (r BreedRecord) SelectedInOrder() []string {
	picked := make(map[string]struct{}, len(r.SelectedColors))
	for _, c := range r.SelectedColors {
		picked[strings.ToLower(c)] = struct{}{}
	}
	out := make([]string, 0, len(r.SelectedColors))
	seen := make(map[string]struct{}, len(r.SelectedColors))
	for _, c := range r.Colors {
		key := strings.ToLower(c)
		if _, ok := picked[key]; ok {
			out = append(out, c)
			seen[key] = struct{}{}
		}
	}
	for _, c := range r.SelectedColors {
		if _, ok := seen[strings.ToLower(c)]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// DataURL encodes an image as a PNG data URL.
func DataURL(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL accepts either a data URL or bare base64 and returns the
// decoded bytes together with the declared MIME type (image/png by default).
func DecodeDataURL(value string) ([]byte, string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, "", ErrInvalidInput
	}
	mime := "image/png"
	if strings.HasPrefix(value, "data:") {
		comma := strings.Index(value, ",")
		if comma < 0 {
			return nil, "", ErrInvalidInput
		}
		header := value[len("data:"):comma]
		if semi := strings.Index(header, ";"); semi >= 0 {
			header = header[:semi]
		}
		if header != "" {
			mime = header
		}
		value = value[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", ErrInvalidInput
	}
	return data, mime, nil
}

// IsPlausibleImage applies the minimal validity heuristic used to flag
// empty or truncated results.
func IsPlausibleImage(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	return len(pngDataURLPrefix)+base64.StdEncoding.EncodedLen(len(data)) > MinImageDataURLLength
}
