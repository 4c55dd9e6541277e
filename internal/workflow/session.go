package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"breedstudio/internal/domain"
	"breedstudio/internal/imagegen"
	"breedstudio/internal/storage"
)

// breedEntry guards one BreedRecord. mu protects the fields; op serializes
// long-running operations on the breed and is only ever acquired with TryLock.
type breedEntry struct {
	mu  sync.RWMutex
	op  sync.Mutex
	rec domain.BreedRecord
}

func (e *breedEntry) snapshot() domain.BreedRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rec.Clone()
}

func (e *breedEntry) update(fn func(rec *domain.BreedRecord)) domain.BreedRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.rec)
	return e.rec.Clone()
}

// Session is one working set of breeds sharing an animal type, a reference
// image and prompt templates.
type Session struct {
	ID        string
	CreatedAt time.Time

	deps   *Deps
	logger zerolog.Logger

	mu            sync.RWMutex
	animalType    string
	templates     imagegen.Templates
	apiKey        string
	reference     []byte
	referenceMIME string
	referenceKey  string
	order         []string
	breeds        map[string]*breedEntry
	updatedAt     time.Time

	// persistMu orders snapshot writes against close.
	persistMu sync.Mutex
	closed    bool
}

// Settings are the session-wide inputs.
type Settings struct {
	AnimalType string             `json:"animalType"`
	Templates  imagegen.Templates `json:"prompts"`
	APIKey     string             `json:"-"`
}

// View is a read-only copy of the session state.
type View struct {
	ID           string               `json:"id"`
	AnimalType   string               `json:"animalType"`
	Templates    imagegen.Templates   `json:"prompts"`
	HasReference bool                 `json:"hasReference"`
	ReferenceKey string               `json:"referenceKey,omitempty"`
	Breeds       []domain.BreedRecord `json:"breeds"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

func newSession(id string, settings Settings, deps *Deps) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		deps:       deps,
		logger:     deps.Logger.With().Str("session", id).Logger(),
		animalType: domain.NormalizeAnimalType(settings.AnimalType),
		templates:  settings.Templates.WithDefaults(),
		apiKey:     strings.TrimSpace(settings.APIKey),
		breeds:     make(map[string]*breedEntry),
		updatedAt:  now,
	}
}

func breedKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Session) entry(name string) (*breedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.breeds[breedKey(name)]
	if !ok {
		return nil, fmt.Errorf("breed %q: %w", name, domain.ErrNotFound)
	}
	return e, nil
}

func (s *Session) entries() []*breedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*breedEntry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.breeds[k])
	}
	return out
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

// AnimalType returns the animal type shared by every breed of the session.
func (s *Session) AnimalType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.animalType
}

// Templates returns the prompt templates in effect.
func (s *Session) Templates() imagegen.Templates {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates
}

// UpdateSettings replaces the animal type, templates and credential. Blank
// fields keep their current value.
func (s *Session) UpdateSettings(ctx context.Context, settings Settings) View {
	s.mu.Lock()
	if strings.TrimSpace(settings.AnimalType) != "" {
		s.animalType = domain.NormalizeAnimalType(settings.AnimalType)
	}
	t := s.templates
	if strings.TrimSpace(settings.Templates.Colors) != "" {
		t.Colors = settings.Templates.Colors
	}
	if strings.TrimSpace(settings.Templates.Master) != "" {
		t.Master = settings.Templates.Master
	}
	if strings.TrimSpace(settings.Templates.Variant) != "" {
		t.Variant = settings.Templates.Variant
	}
	s.templates = t
	if k := strings.TrimSpace(settings.APIKey); k != "" {
		s.apiKey = k
	}
	animal := s.animalType
	entries := make([]*breedEntry, 0, len(s.order))
	for _, k := range s.order {
		entries = append(entries, s.breeds[k])
	}
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()

	for _, e := range entries {
		e.update(func(rec *domain.BreedRecord) { rec.AnimalType = animal })
	}
	s.persist(ctx)
	return s.View()
}

// View returns a copy of the session with every breed in insertion order.
func (s *Session) View() View {
	s.mu.RLock()
	v := View{
		ID:           s.ID,
		AnimalType:   s.animalType,
		Templates:    s.templates,
		HasReference: len(s.reference) > 0,
		ReferenceKey: s.referenceKey,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.updatedAt,
	}
	s.mu.RUnlock()
	for _, e := range s.entries() {
		v.Breeds = append(v.Breeds, e.snapshot())
	}
	return v
}

// Breed returns a copy of one record.
func (s *Session) Breed(name string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	return e.snapshot(), nil
}

// IngestManifest merges manifest text into the session. New breeds with
// colors are complete immediately; new breeds without colors wait for
// resolution. Known breeds union their colors. Returns the names touched.
func (s *Session) IngestManifest(ctx context.Context, text string) ([]string, error) {
	entries := domain.ParseManifest(text)
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest has no breeds: %w", domain.ErrInvalidInput)
	}
	touched := make([]string, 0, len(entries))
	for _, m := range entries {
		touched = append(touched, s.merge(m))
	}
	s.touch()
	s.persist(ctx)
	s.logger.Info().Int("breeds", len(touched)).Msg("manifest ingested")
	return touched, nil
}

func (s *Session) merge(m domain.ManifestEntry) string {
	key := breedKey(m.BreedName)

	s.mu.Lock()
	e, exists := s.breeds[key]
	if !exists {
		rec := domain.BreedRecord{
			BreedName:  m.BreedName,
			AnimalType: s.animalType,
			Colors:     domain.MergeColors(nil, m.Colors),
			Status:     domain.StatusPending,
		}
		if len(rec.Colors) > 0 {
			rec.Status = domain.StatusCompleted
		}
		e = &breedEntry{rec: rec}
		s.breeds[key] = e
		s.order = append(s.order, key)
		s.mu.Unlock()
		if len(rec.Colors) > 0 {
			s.deps.Metrics.ObserveColors("manifest", nil)
		}
		s.deps.Metrics.ObserveStatus(string(rec.Status))
		return rec.BreedName
	}
	s.mu.Unlock()

	rec := e.update(func(rec *domain.BreedRecord) {
		hadColors := len(rec.Colors) > 0
		rec.Colors = domain.MergeColors(rec.Colors, m.Colors)
		if !hadColors && len(rec.Colors) > 0 && rec.Status != domain.StatusProcessing {
			rec.Status = domain.StatusCompleted
			rec.ErrorMessage = ""
		}
	})
	return rec.BreedName
}

// SetReference stores the reference image every master is derived from.
func (s *Session) SetReference(ctx context.Context, data []byte, mime string) error {
	if len(data) == 0 {
		return fmt.Errorf("reference image is empty: %w", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(mime) == "" {
		mime = "image/png"
	}
	key := ""
	if s.deps.Store != nil {
		k, err := s.deps.Store.Write(ctx, referenceKey(s.ID, mime), data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("reference image not stored")
		} else {
			key = k
		}
	}
	s.mu.Lock()
	s.reference = append([]byte(nil), data...)
	s.referenceMIME = mime
	s.referenceKey = key
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
	s.persist(ctx)
	return nil
}

func referenceKey(sessionID, mime string) string {
	return storage.ReferenceKey(sessionID, extensionFor(mime))
}

func (s *Session) referenceImage() ([]byte, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reference, s.referenceMIME
}

// SetSelection replaces the colors marked for targeted regeneration. Every
// color must belong to the breed.
func (s *Session) SetSelection(ctx context.Context, name string, colors []string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	var invalid string
	rec := e.update(func(rec *domain.BreedRecord) {
		known := make(map[string]string, len(rec.Colors))
		for _, c := range rec.Colors {
			known[strings.ToLower(c)] = c
		}
		picked := make([]string, 0, len(colors))
		seen := make(map[string]struct{}, len(colors))
		for _, c := range colors {
			k := strings.ToLower(strings.TrimSpace(c))
			if k == "" {
				continue
			}
			canonical, ok := known[k]
			if !ok {
				invalid = c
				return
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			picked = append(picked, canonical)
		}
		rec.SelectedColors = picked
	})
	if invalid != "" {
		return rec, fmt.Errorf("color %q is not a color of %s: %w", invalid, rec.BreedName, domain.ErrInvalidInput)
	}
	s.touch()
	s.persist(ctx)
	return rec, nil
}

// ExportManifest renders the breed to colors mapping in session order.
func (s *Session) ExportManifest() string {
	entries := s.entries()
	records := make([]domain.BreedRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, e.snapshot())
	}
	return domain.ExportManifest(records)
}

// Snapshot is the persisted form of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	v := s.View()
	return domain.SessionSnapshot{
		ID:            v.ID,
		AnimalType:    v.AnimalType,
		ColorsPrompt:  v.Templates.Colors,
		MasterPrompt:  v.Templates.Master,
		VariantPrompt: v.Templates.Variant,
		ReferenceKey:  v.ReferenceKey,
		Breeds:        v.Breeds,
		UpdatedAt:     v.UpdatedAt,
	}
}

func (s *Session) persist(ctx context.Context) {
	if s.deps.Repo == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.closed {
		return
	}
	if err := s.deps.Repo.Save(context.WithoutCancel(ctx), s.Snapshot()); err != nil {
		s.logger.Error().Err(err).Msg("session snapshot not saved")
	}
}

// close stops further snapshot writes. It returns once any write in
// progress has finished.
func (s *Session) close() {
	s.persistMu.Lock()
	s.closed = true
	s.persistMu.Unlock()
}

// restoreSession rebuilds a session from a snapshot, reading image bytes
// back from the store. Missing objects leave the image empty.
func restoreSession(ctx context.Context, snap domain.SessionSnapshot, deps *Deps) *Session {
	s := newSession(snap.ID, Settings{
		AnimalType: snap.AnimalType,
		Templates: imagegen.Templates{
			Colors:  snap.ColorsPrompt,
			Master:  snap.MasterPrompt,
			Variant: snap.VariantPrompt,
		},
	}, deps)
	if !snap.UpdatedAt.IsZero() {
		s.updatedAt = snap.UpdatedAt
	}
	read := func(key string) []byte {
		if key == "" || deps.Store == nil {
			return nil
		}
		data, err := deps.Store.Read(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("stored image unavailable")
			return nil
		}
		return data
	}
	if snap.ReferenceKey != "" {
		s.reference = read(snap.ReferenceKey)
		s.referenceKey = snap.ReferenceKey
		s.referenceMIME = "image/png"
		if strings.HasSuffix(snap.ReferenceKey, ".jpg") {
			s.referenceMIME = "image/jpeg"
		} else if strings.HasSuffix(snap.ReferenceKey, ".webp") {
			s.referenceMIME = "image/webp"
		}
	}
	for _, rec := range snap.Breeds {
		rec = rec.Clone()
		if rec.MasterImage != nil {
			rec.MasterImage.Image = read(rec.MasterImage.StorageKey)
		}
		for i := range rec.ProcessedImages {
			rec.ProcessedImages[i].Image = read(rec.ProcessedImages[i].StorageKey)
		}
		// An interrupted run cannot resume; surface it instead of leaving
		// the breed stuck.
		if rec.Status == domain.StatusProcessing {
			rec.Status = domain.StatusError
			rec.ErrorMessage = "interrupted by restart"
		}
		key := breedKey(rec.BreedName)
		if _, dup := s.breeds[key]; dup {
			continue
		}
		s.breeds[key] = &breedEntry{rec: rec}
		s.order = append(s.order, key)
	}
	return s
}
