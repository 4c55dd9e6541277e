package domain

import (
	"context"
	"time"
)

// SessionSnapshot is the persisted form of a session. Image bytes are not
// part of it; records carry storage keys instead.
type SessionSnapshot struct {
	ID            string        `json:"id"`
	AnimalType    string        `json:"animalType"`
	ColorsPrompt  string        `json:"colorsPrompt,omitempty"`
	MasterPrompt  string        `json:"masterPrompt,omitempty"`
	VariantPrompt string        `json:"variantPrompt,omitempty"`
	ReferenceKey  string        `json:"referenceKey,omitempty"`
	Breeds        []BreedRecord `json:"breeds"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// SessionRepository persists session snapshots between process restarts.
type SessionRepository interface {
	Save(ctx context.Context, snap SessionSnapshot) error
	Load(ctx context.Context, id string) (*SessionSnapshot, error)
	Delete(ctx context.Context, id string) error
}
