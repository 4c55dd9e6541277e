package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"breedstudio/internal/domain"
	"breedstudio/internal/imagegen"
	"breedstudio/internal/providers/colors"
	"breedstudio/internal/providers/image"
	"breedstudio/internal/storage"
	"breedstudio/pkg/zip"
)

const invalidImageMessage = "generated image is empty or too small"

// ResolveSummary reports a color resolution batch.
type ResolveSummary struct {
	Resolved []string          `json:"resolved"`
	Failed   map[string]string `json:"failed"`
	Skipped  []string          `json:"skipped"`
}

// BatchSummary reports a generate-all run.
type BatchSummary struct {
	Completed []string          `json:"completed"`
	Failed    map[string]string `json:"failed"`
}

func (s *Session) credential() (string, error) {
	s.mu.RLock()
	key := s.apiKey
	s.mu.RUnlock()
	if key == "" && s.deps.DefaultKey != nil {
		key = strings.TrimSpace(s.deps.DefaultKey())
	}
	if key == "" {
		return "", fmt.Errorf("api key is required: %w", domain.ErrInvalidInput)
	}
	return key, nil
}

func (s *Session) setStatus(e *breedEntry, status domain.Status, message string) domain.BreedRecord {
	rec := e.update(func(rec *domain.BreedRecord) {
		rec.Status = status
		rec.ErrorMessage = message
	})
	s.deps.Metrics.ObserveStatus(string(status))
	return rec
}

// ResolveColors asks the text-generation service for every breed that has no
// colors yet. A failing breed moves to error and the batch continues.
func (s *Session) ResolveColors(ctx context.Context) (ResolveSummary, error) {
	summary := ResolveSummary{Failed: map[string]string{}}
	if s.deps.Resolver == nil {
		return summary, fmt.Errorf("color resolver not configured: %w", domain.ErrProviderFailure)
	}
	apiKey, err := s.credential()
	if err != nil {
		return summary, err
	}
	animal := s.AnimalType()
	template := s.Templates().Colors

	for _, e := range s.entries() {
		rec := e.snapshot()
		if len(rec.Colors) > 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !e.op.TryLock() {
			summary.Skipped = append(summary.Skipped, rec.BreedName)
			continue
		}
		s.resolveOne(ctx, e, rec.BreedName, animal, apiKey, template, &summary)
		e.op.Unlock()
	}
	s.touch()
	s.persist(ctx)
	return summary, nil
}

func (s *Session) resolveOne(ctx context.Context, e *breedEntry, breed, animal, apiKey, template string, summary *ResolveSummary) {
	s.setStatus(e, domain.StatusProcessing, "")
	found, err := s.deps.Resolver.Resolve(ctx, colors.Request{
		BreedName:  breed,
		AnimalType: animal,
		APIKey:     apiKey,
		Template:   template,
	})
	s.deps.Metrics.ObserveColors("llm", err)
	if err != nil {
		s.logger.Warn().Err(err).Str("breed", breed).Msg("color resolution failed")
		s.setStatus(e, domain.StatusError, err.Error())
		summary.Failed[breed] = err.Error()
		return
	}
	e.update(func(rec *domain.BreedRecord) {
		rec.Colors = domain.MergeColors(rec.Colors, found)
		rec.Status = domain.StatusNeedsMaster
		rec.ErrorMessage = ""
	})
	s.deps.Metrics.ObserveStatus(string(domain.StatusNeedsMaster))
	s.logger.Info().Str("breed", breed).Strs("colors", found).Msg("colors resolved")
	summary.Resolved = append(summary.Resolved, breed)
}

// GenerateMaster renders the master prompt for the breed's first color and
// edits the session reference image. The result replaces any staged master
// and is never approved automatically.
func (s *Session) GenerateMaster(ctx context.Context, name string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	if !e.op.TryLock() {
		return e.snapshot(), fmt.Errorf("breed %q: %w", name, domain.ErrBreedBusy)
	}
	defer e.op.Unlock()

	rec := e.snapshot()
	if len(rec.Colors) == 0 {
		return rec, fmt.Errorf("breed %q: %w", rec.BreedName, domain.ErrNoColors)
	}
	reference, mime := s.referenceImage()
	if len(reference) == 0 {
		return rec, domain.ErrNoReference
	}
	apiKey, err := s.credential()
	if err != nil {
		return rec, err
	}
	if s.deps.Editor == nil {
		return rec, fmt.Errorf("image editor not configured: %w", domain.ErrProviderFailure)
	}

	color := rec.Colors[0]
	prompt := imagegen.Render(s.Templates().Master, imagegen.Vars{
		AnimalType: s.AnimalType(),
		BreedName:  rec.BreedName,
		Color:      color,
	})
	s.setStatus(e, domain.StatusProcessing, "")

	started := time.Now()
	asset, err := s.deps.Editor.Edit(ctx, image.EditRequest{
		APIKey:   apiKey,
		Prompt:   prompt,
		Image:    reference,
		MIME:     mime,
		Filename: "reference" + extensionFor(mime),
		Size:     s.deps.ImageSize,
	})
	s.deps.Metrics.ObserveImage("master", started, err)
	if err != nil {
		s.logger.Error().Err(err).Str("breed", rec.BreedName).Msg("master generation failed")
		s.setStatus(e, domain.StatusError, err.Error())
		s.persist(ctx)
		return e.snapshot(), err
	}

	master := &domain.MasterImage{
		Color:    color,
		Image:    asset.Data,
		FileName: domain.FileName(rec.BreedName, color),
	}
	master.StorageKey, master.SaveError = s.save(ctx, rec.BreedName, master.FileName, asset.Data)
	out := e.update(func(r *domain.BreedRecord) {
		r.MasterImage = master
		r.Status = domain.StatusNeedsMaster
		r.ErrorMessage = ""
	})
	s.deps.Metrics.ObserveStatus(string(domain.StatusNeedsMaster))
	s.logger.Info().Str("breed", rec.BreedName).Str("color", color).Msg("master generated")
	s.touch()
	s.persist(ctx)
	return out, nil
}

// ApproveMaster marks the staged master as the reference for variants.
func (s *Session) ApproveMaster(ctx context.Context, name string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	if !e.op.TryLock() {
		return e.snapshot(), fmt.Errorf("breed %q: %w", name, domain.ErrBreedBusy)
	}
	defer e.op.Unlock()

	var missing bool
	rec := e.update(func(rec *domain.BreedRecord) {
		if rec.MasterImage == nil || len(rec.MasterImage.Image) == 0 {
			missing = true
			return
		}
		rec.MasterImage.IsApproved = true
	})
	if missing {
		return rec, fmt.Errorf("breed %q: %w", name, domain.ErrMasterMissing)
	}
	s.logger.Info().Str("breed", rec.BreedName).Msg("master approved")
	s.touch()
	s.persist(ctx)
	return rec, nil
}

// GenerateVariants rebuilds the breed's images: the approved master becomes
// version 1 and every remaining color is generated from it, one at a time.
func (s *Session) GenerateVariants(ctx context.Context, name string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	if !e.op.TryLock() {
		return e.snapshot(), fmt.Errorf("breed %q: %w", name, domain.ErrBreedBusy)
	}
	defer e.op.Unlock()

	rec := e.snapshot()
	if !rec.HasApprovedMaster() {
		return rec, fmt.Errorf("breed %q: %w", rec.BreedName, domain.ErrMasterNotApproved)
	}
	apiKey, err := s.credential()
	if err != nil {
		return rec, err
	}

	master := rec.MasterImage
	e.update(func(r *domain.BreedRecord) {
		r.ProcessedImages = []domain.ProcessedImage{{
			FileName:   master.FileName,
			Color:      master.Color,
			Image:      master.Image,
			Version:    1,
			StorageKey: master.StorageKey,
			SaveError:  master.SaveError,
		}}
	})
	return s.runVariants(ctx, e, rec, rec.VariantColors(), apiKey)
}

// RegenerateSelected generates the selected colors again from the approved
// master, appending new versions.
func (s *Session) RegenerateSelected(ctx context.Context, name string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	if !e.op.TryLock() {
		return e.snapshot(), fmt.Errorf("breed %q: %w", name, domain.ErrBreedBusy)
	}
	defer e.op.Unlock()

	rec := e.snapshot()
	if !rec.HasApprovedMaster() {
		return rec, fmt.Errorf("breed %q: %w", rec.BreedName, domain.ErrMasterNotApproved)
	}
	selected := rec.SelectedInOrder()
	if len(selected) == 0 {
		return rec, fmt.Errorf("breed %q has no selected colors: %w", rec.BreedName, domain.ErrInvalidInput)
	}
	apiKey, err := s.credential()
	if err != nil {
		return rec, err
	}
	return s.runVariants(ctx, e, rec, selected, apiKey)
}

// runVariants issues one edit per color, sequentially. Ordinary failures are
// recorded as error entries and the loop continues; an organization
// verification failure stops the loop for the breed.
func (s *Session) runVariants(ctx context.Context, e *breedEntry, rec domain.BreedRecord, targets []string, apiKey string) (domain.BreedRecord, error) {
	if s.deps.Editor == nil {
		return rec, fmt.Errorf("image editor not configured: %w", domain.ErrProviderFailure)
	}
	s.setStatus(e, domain.StatusProcessing, "")
	master := rec.MasterImage
	animal := s.AnimalType()
	template := s.Templates().Variant
	log := s.logger.With().Str("breed", rec.BreedName).Logger()

	for _, color := range targets {
		if err := ctx.Err(); err != nil {
			s.setStatus(e, domain.StatusError, err.Error())
			s.persist(ctx)
			return e.snapshot(), err
		}
		current := e.snapshot()
		version := domain.NextVersion(current.ProcessedImages, rec.BreedName, color)
		entry := domain.ProcessedImage{
			FileName: domain.VersionedFileName(rec.BreedName, color, version),
			Color:    color,
			Version:  version,
		}

		started := time.Now()
		asset, err := s.deps.Editor.Edit(ctx, image.EditRequest{
			APIKey: apiKey,
			Prompt: imagegen.Render(template, imagegen.Vars{
				AnimalType: animal,
				BreedName:  rec.BreedName,
				Color:      color,
			}),
			Image:    master.Image,
			MIME:     "image/png",
			Filename: master.FileName,
			Size:     s.deps.ImageSize,
		})
		s.deps.Metrics.ObserveImage("variant", started, err)

		if errors.Is(err, domain.ErrOrgVerification) {
			log.Error().Err(err).Str("color", color).Msg("variant generation aborted")
			s.setStatus(e, domain.StatusError, err.Error())
			s.touch()
			s.persist(ctx)
			return e.snapshot(), err
		}
		if err != nil {
			log.Warn().Err(err).Str("color", color).Msg("variant generation failed")
			entry.Version = 0
			entry.IsError = true
			entry.ErrorMessage = err.Error()
		} else {
			entry.Image = asset.Data
			if !domain.IsPlausibleImage(asset.Data) {
				entry.IsError = true
				entry.ErrorMessage = invalidImageMessage
			}
			if len(asset.Data) > 0 {
				entry.StorageKey, entry.SaveError = s.save(ctx, rec.BreedName, entry.FileName, asset.Data)
			}
			log.Info().Str("color", color).Int("version", version).Bool("flagged", entry.IsError).Msg("variant generated")
		}
		e.update(func(r *domain.BreedRecord) {
			r.ProcessedImages = append(r.ProcessedImages, entry)
		})
	}

	out := s.setStatus(e, domain.StatusCompleted, "")
	s.touch()
	s.persist(ctx)
	return out, nil
}

// SkipVariants completes an approved breed without generating variants.
func (s *Session) SkipVariants(ctx context.Context, name string) (domain.BreedRecord, error) {
	e, err := s.entry(name)
	if err != nil {
		return domain.BreedRecord{}, err
	}
	if !e.op.TryLock() {
		return e.snapshot(), fmt.Errorf("breed %q: %w", name, domain.ErrBreedBusy)
	}
	defer e.op.Unlock()

	rec := e.snapshot()
	if !rec.HasApprovedMaster() {
		return rec, fmt.Errorf("breed %q: %w", rec.BreedName, domain.ErrMasterNotApproved)
	}
	out := s.setStatus(e, domain.StatusCompleted, "")
	s.touch()
	s.persist(ctx)
	return out, nil
}

// GenerateAll runs GenerateVariants for every breed with an approved master
// that is not completed yet. Failures are collected per breed.
func (s *Session) GenerateAll(ctx context.Context) (BatchSummary, error) {
	summary := BatchSummary{Failed: map[string]string{}}
	for _, e := range s.entries() {
		rec := e.snapshot()
		if !rec.HasApprovedMaster() || rec.Status == domain.StatusCompleted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := s.GenerateVariants(ctx, rec.BreedName); err != nil {
			summary.Failed[rec.BreedName] = err.Error()
			continue
		}
		summary.Completed = append(summary.Completed, rec.BreedName)
	}
	return summary, nil
}

// Archive zips the breed's master and generated images.
func (s *Session) Archive(ctx context.Context, name string) ([]byte, error) {
	rec, err := s.Breed(name)
	if err != nil {
		return nil, err
	}
	var assets []zip.Asset
	add := func(fileName, key string, data []byte) {
		if len(data) == 0 && key != "" && s.deps.Store != nil {
			data, _ = s.deps.Store.Read(ctx, key)
		}
		if len(data) > 0 {
			assets = append(assets, zip.Asset{Filename: fileName, Data: data})
		}
	}
	if rec.MasterImage != nil {
		add(rec.MasterImage.FileName, rec.MasterImage.StorageKey, rec.MasterImage.Image)
	}
	for _, img := range rec.ProcessedImages {
		if img.IsError {
			continue
		}
		add(img.FileName, img.StorageKey, img.Image)
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("breed %q has no images: %w", rec.BreedName, domain.ErrNotFound)
	}
	return zip.ArchiveAssets(assets)
}

// save writes an image best-effort and returns its key or the failure text.
func (s *Session) save(ctx context.Context, breed, fileName string, data []byte) (string, string) {
	if s.deps.Store == nil {
		return "", ""
	}
	key, err := s.deps.Store.Write(ctx, storage.BreedKey(breed, fileName), data)
	s.deps.Metrics.ObserveSave(err)
	if err != nil {
		s.logger.Warn().Err(err).Str("breed", breed).Str("file", fileName).Msg("image not saved")
		return "", err.Error()
	}
	return key, ""
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
