package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"breedstudio/internal/domain"
	"breedstudio/internal/infra"
	"breedstudio/internal/providers/colors"
	"breedstudio/internal/providers/image"
	"breedstudio/internal/storage"
)

// ColorResolver looks up the natural coat colors of a breed.
type ColorResolver interface {
	Resolve(ctx context.Context, req colors.Request) ([]string, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Resolver  ColorResolver
	Editor    image.Editor
	Store     storage.Store
	Repo      domain.SessionRepository
	Metrics   *infra.Metrics
	Logger    zerolog.Logger
	ImageSize string
	// DefaultKey supplies the credential used when a session carries none.
	DefaultKey func() string
}

// Manager owns the live sessions.
type Manager struct {
	deps *Deps

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(deps Deps) *Manager {
	return &Manager{deps: &deps, sessions: make(map[string]*Session)}
}

// CreateOptions seed a new session.
type CreateOptions struct {
	Settings
	Manifest string
}

// Create starts a session, optionally ingesting a manifest right away.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Session, error) {
	s := newSession(uuid.NewString(), opts.Settings, m.deps)
	if strings.TrimSpace(opts.Manifest) != "" {
		if _, err := s.IngestManifest(ctx, opts.Manifest); err != nil {
			return nil, err
		}
	} else {
		s.persist(ctx)
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.deps.Logger.Info().Str("session", s.ID).Str("animal_type", s.AnimalType()).Msg("session created")
	return s, nil
}

// Get returns a live session, restoring it from the repository when the
// process no longer holds it.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	if m.deps.Repo == nil {
		return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	snap, err := m.deps.Repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	restored := restoreSession(ctx, *snap, m.deps)

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = restored
	m.deps.Logger.Info().Str("session", id).Int("breeds", len(snap.Breeds)).Msg("session restored")
	return restored, nil
}

// Delete tears a session down. Saved images stay in the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, live := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if live {
		s.close()
	}

	if m.deps.Repo != nil {
		if err := m.deps.Repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	}
	if !live {
		return fmt.Errorf("session %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Len reports how many sessions are held in memory.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
