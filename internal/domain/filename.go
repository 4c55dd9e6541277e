package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var lower = cases.Lower(language.Und)

// Slug lowercases a label and collapses each whitespace run into a single
// underscore.
func Slug(s string) string {
	return strings.Join(strings.Fields(lower.String(s)), "_")
}

// FileStem is the deterministic base name for a breed/color image.
func FileStem(breed, color string) string {
	return Slug(breed) + "_" + Slug(color)
}

// FileName returns the base filename for a breed/color image.
func FileName(breed, color string) string {
	return FileStem(breed, color) + ".png"
}

// VersionedFileName returns the filename for the given generation of a stem.
// The first generation keeps the plain name; later ones get a _v0N suffix.
func VersionedFileName(breed, color string, version int) string {
	if version <= 1 {
		return FileName(breed, color)
	}
	return fmt.Sprintf("%s_v%02d.png", FileStem(breed, color), version)
}

// NextVersion counts how many images for the breed/color stem already exist
// and returns the version number for the next one. Failed calls carry
// version 0 and are not counted.
func NextVersion(images []ProcessedImage, breed, color string) int {
	stem := FileStem(breed, color)
	n := 0
	for _, img := range images {
		if img.Version > 0 && FileStem(breed, img.Color) == stem {
			n++
		}
	}
	return n + 1
}

// NormalizeAnimalType trims the animal type and falls back to the default.
func NormalizeAnimalType(animal string) string {
	animal = strings.TrimSpace(animal)
	if animal == "" {
		return DefaultAnimalType
	}
	return animal
}

// ManifestFileName is the download name for an exported manifest.
func ManifestFileName(animalType string) string {
	return Slug(NormalizeAnimalType(animalType)) + "_breeds_with_colors.txt"
}
