package imagegen

import (
	"strings"
)

const (
	DefaultColorsPrompt = "What are the realistic natural coat colors and patterns for {animalType} {breedName}? " +
		"Provide actual fur colors that exist in nature, not fantasy colors. " +
		"Return only color names separated by commas. Example: 'Black and White, Brown, Sable, Gray'"

	DefaultMasterPrompt = "Create an accurate {animalType} {breedName} with {color} fur in the same artistic style and pose as the reference image. " +
		"The animal must have correct {breedName} breed characteristics while matching the cartoon style, composition and pose from the reference. " +
		"Transparent background, no background elements."

	DefaultVariantPrompt = "Change only the fur color of this {animalType} {breedName} to {color}. " +
		"Keep everything else EXACTLY the same: same pose, same facial expression, same body position, same artistic style, same proportions. " +
		"Only the fur color should change. Maintain transparent background."
)

// Templates groups the three prompt templates a session renders from.
type Templates struct {
	Colors  string `json:"colorsPrompt"`
	Master  string `json:"masterPrompt"`
	Variant string `json:"variantPrompt"`
}

// DefaultTemplates returns the built-in prompt set.
func DefaultTemplates() Templates {
	return Templates{Colors: DefaultColorsPrompt, Master: DefaultMasterPrompt, Variant: DefaultVariantPrompt}
}

// WithDefaults fills blank templates with the built-in ones.
func (t Templates) WithDefaults() Templates {
	if strings.TrimSpace(t.Colors) == "" {
		t.Colors = DefaultColorsPrompt
	}
	if strings.TrimSpace(t.Master) == "" {
		t.Master = DefaultMasterPrompt
	}
	if strings.TrimSpace(t.Variant) == "" {
		t.Variant = DefaultVariantPrompt
	}
	return t
}

// Vars are the placeholder values substituted into a template.
type Vars struct {
	AnimalType string
	BreedName  string
	Color      string
}

// Render replaces every {animalType}, {breedName} and {color} placeholder.
func Render(template string, v Vars) string {
	r := strings.NewReplacer(
		"{animalType}", strings.TrimSpace(v.AnimalType),
		"{breedName}", strings.TrimSpace(v.BreedName),
		"{color}", strings.TrimSpace(v.Color),
	)
	return strings.TrimSpace(r.Replace(template))
}
