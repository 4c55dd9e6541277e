package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"breedstudio/internal/domain"
	"breedstudio/internal/providers/colors"
	"breedstudio/internal/providers/image"
	"breedstudio/internal/storage"
)

var goodImage = bytes.Repeat([]byte{0x89}, 2048)

type stubResolver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	out   map[string][]string
}

func (r *stubResolver) Resolve(ctx context.Context, req colors.Request) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req.BreedName)
	if err := r.fail[req.BreedName]; err != nil {
		return nil, err
	}
	if out, ok := r.out[req.BreedName]; ok {
		return out, nil
	}
	return []string{"Black", "White"}, nil
}

type stubEditor struct {
	mu      sync.Mutex
	prompts []string
	images  [][]byte
	respond func(call int, req image.EditRequest) (*image.Asset, error)
	block   chan struct{}
	entered chan struct{}
}

func (e *stubEditor) Edit(ctx context.Context, req image.EditRequest) (*image.Asset, error) {
	if e.entered != nil {
		e.entered <- struct{}{}
	}
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	call := len(e.prompts)
	e.prompts = append(e.prompts, req.Prompt)
	e.images = append(e.images, req.Image)
	e.mu.Unlock()
	if e.respond != nil {
		return e.respond(call, req)
	}
	return &image.Asset{Data: goodImage, Format: "png"}, nil
}

func (e *stubEditor) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prompts)
}

type memoryRepo struct {
	mu    sync.Mutex
	snaps map[string]domain.SessionSnapshot
}

func (r *memoryRepo) Save(ctx context.Context, snap domain.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snaps == nil {
		r.snaps = map[string]domain.SessionSnapshot{}
	}
	r.snaps[snap.ID] = snap
	return nil
}

func (r *memoryRepo) Load(ctx context.Context, id string) (*domain.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, ok := r.snaps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &snap, nil
}

func (r *memoryRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snaps, id)
	return nil
}

func newTestManager(t *testing.T, editor *stubEditor, resolver *stubResolver) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	return NewManager(Deps{
		Resolver:   resolver,
		Editor:     editor,
		Store:      store,
		Logger:     zerolog.Nop(),
		ImageSize:  "1024x1024",
		DefaultKey: func() string { return "sk-test" },
	}), store
}

func newApprovedSession(t *testing.T, editor *stubEditor, manifest string) *Session {
	t.Helper()
	mgr, _ := newTestManager(t, editor, &stubResolver{})
	ctx := context.Background()
	s, err := mgr.Create(ctx, CreateOptions{Settings: Settings{AnimalType: "Dog"}, Manifest: manifest})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.SetReference(ctx, []byte("reference"), "image/png"); err != nil {
		t.Fatalf("SetReference error: %v", err)
	}
	for _, rec := range s.View().Breeds {
		if _, err := s.GenerateMaster(ctx, rec.BreedName); err != nil {
			t.Fatalf("GenerateMaster(%s) error: %v", rec.BreedName, err)
		}
		if _, err := s.ApproveMaster(ctx, rec.BreedName); err != nil {
			t.Fatalf("ApproveMaster(%s) error: %v", rec.BreedName, err)
		}
	}
	return s
}

func TestIngestManifestStatuses(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t, &stubEditor{}, &stubResolver{})
	ctx := context.Background()
	s, err := mgr.Create(ctx, CreateOptions{Manifest: "Husky: Black\nPoodle\n\n"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if s.AnimalType() != domain.DefaultAnimalType {
		t.Fatalf("AnimalType = %q, want %q", s.AnimalType(), domain.DefaultAnimalType)
	}

	husky, _ := s.Breed("husky")
	if husky.Status != domain.StatusCompleted {
		t.Fatalf("husky status = %q, want completed", husky.Status)
	}
	poodle, _ := s.Breed("Poodle")
	if poodle.Status != domain.StatusPending {
		t.Fatalf("poodle status = %q, want pending", poodle.Status)
	}

	if _, err := s.IngestManifest(ctx, "Husky: Black, Tan\nPoodle: White"); err != nil {
		t.Fatalf("IngestManifest error: %v", err)
	}
	husky, _ = s.Breed("Husky")
	if got := strings.Join(husky.Colors, ","); got != "Black,Tan" {
		t.Fatalf("husky colors = %q, want Black,Tan", got)
	}
	poodle, _ = s.Breed("Poodle")
	if poodle.Status != domain.StatusCompleted || len(poodle.Colors) != 1 {
		t.Fatalf("poodle = %+v", poodle)
	}
	if got := s.ExportManifest(); got != "Husky: Black, Tan\nPoodle: White" {
		t.Fatalf("ExportManifest = %q", got)
	}
}

func TestIngestManifestRejectsEmpty(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t, &stubEditor{}, &stubResolver{})
	s, _ := mgr.Create(context.Background(), CreateOptions{})
	if _, err := s.IngestManifest(context.Background(), "\n  \n"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestResolveColorsIsolatesFailures(t *testing.T) {
	t.Parallel()
	resolver := &stubResolver{fail: map[string]error{"Beagle": domain.ErrProviderFailure}}
	mgr, _ := newTestManager(t, &stubEditor{}, resolver)
	ctx := context.Background()
	s, _ := mgr.Create(ctx, CreateOptions{Manifest: "Beagle\nBoxer\nHusky: Gray"})

	summary, err := s.ResolveColors(ctx)
	if err != nil {
		t.Fatalf("ResolveColors error: %v", err)
	}
	if len(summary.Resolved) != 1 || summary.Resolved[0] != "Boxer" {
		t.Fatalf("resolved = %v, want [Boxer]", summary.Resolved)
	}
	if _, ok := summary.Failed["Beagle"]; !ok {
		t.Fatalf("failed = %v, want Beagle", summary.Failed)
	}
	if got := strings.Join(resolver.calls, ","); got != "Beagle,Boxer" {
		t.Fatalf("resolver calls = %q", got)
	}

	beagle, _ := s.Breed("Beagle")
	if beagle.Status != domain.StatusError || beagle.ErrorMessage == "" {
		t.Fatalf("beagle = %+v, want error status", beagle)
	}
	boxer, _ := s.Breed("Boxer")
	if boxer.Status != domain.StatusNeedsMaster {
		t.Fatalf("boxer status = %q, want needs_master", boxer.Status)
	}
}

func TestResolveColorsRequiresCredential(t *testing.T) {
	t.Parallel()
	resolver := &stubResolver{}
	mgr := NewManager(Deps{Resolver: resolver, Logger: zerolog.Nop()})
	s, _ := mgr.Create(context.Background(), CreateOptions{Manifest: "Boxer"})
	if _, err := s.ResolveColors(context.Background()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(resolver.calls) != 0 {
		t.Fatalf("resolver called %d times", len(resolver.calls))
	}
}

func TestGenerateMasterPreconditions(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{}
	mgr, _ := newTestManager(t, editor, &stubResolver{})
	ctx := context.Background()
	s, _ := mgr.Create(ctx, CreateOptions{Manifest: "Poodle\nHusky: Black"})

	if _, err := s.GenerateMaster(ctx, "Poodle"); !errors.Is(err, domain.ErrNoColors) {
		t.Fatalf("err = %v, want ErrNoColors", err)
	}
	if _, err := s.GenerateMaster(ctx, "Husky"); !errors.Is(err, domain.ErrNoReference) {
		t.Fatalf("err = %v, want ErrNoReference", err)
	}
	if _, err := s.GenerateMaster(ctx, "Akita"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if editor.calls() != 0 {
		t.Fatalf("editor called %d times", editor.calls())
	}
}

func TestGenerateMasterStagesUnapproved(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{}
	mgr, store := newTestManager(t, editor, &stubResolver{})
	ctx := context.Background()
	s, _ := mgr.Create(ctx, CreateOptions{Manifest: "Border Collie: Blue Merle, Black"})
	_ = s.SetReference(ctx, []byte("reference"), "image/png")

	rec, err := s.GenerateMaster(ctx, "Border Collie")
	if err != nil {
		t.Fatalf("GenerateMaster error: %v", err)
	}
	if rec.Status != domain.StatusNeedsMaster {
		t.Fatalf("status = %q, want needs_master", rec.Status)
	}
	m := rec.MasterImage
	if m == nil || m.IsApproved || m.Color != "Blue Merle" {
		t.Fatalf("master = %+v", m)
	}
	if m.FileName != "border_collie_blue_merle.png" {
		t.Fatalf("FileName = %q", m.FileName)
	}
	if !strings.Contains(editor.prompts[0], "Dog Border Collie with Blue Merle fur") {
		t.Fatalf("prompt = %q", editor.prompts[0])
	}
	if string(editor.images[0]) != "reference" {
		t.Fatalf("master must be generated from the reference image")
	}
	saved, err := store.Read(ctx, m.StorageKey)
	if err != nil || !bytes.Equal(saved, goodImage) {
		t.Fatalf("stored master mismatch: %v", err)
	}

	// Regeneration replaces the staged master and drops approval.
	if _, err := s.ApproveMaster(ctx, "Border Collie"); err != nil {
		t.Fatalf("ApproveMaster error: %v", err)
	}
	rec, _ = s.GenerateMaster(ctx, "Border Collie")
	if rec.MasterImage.IsApproved {
		t.Fatal("regenerated master must not be approved")
	}
}

func TestGenerateMasterOrgVerification(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{respond: func(int, image.EditRequest) (*image.Asset, error) {
		return nil, image.ClassifyMessage(403, "Your organization must be verified to use gpt-image-1")
	}}
	mgr, _ := newTestManager(t, editor, &stubResolver{})
	ctx := context.Background()
	s, _ := mgr.Create(ctx, CreateOptions{Manifest: "Husky: Black"})
	_ = s.SetReference(ctx, []byte("reference"), "image/png")

	rec, err := s.GenerateMaster(ctx, "Husky")
	if !errors.Is(err, domain.ErrOrgVerification) {
		t.Fatalf("err = %v, want ErrOrgVerification", err)
	}
	if rec.Status != domain.StatusError {
		t.Fatalf("status = %q, want error", rec.Status)
	}
}

func TestApproveRequiresMaster(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t, &stubEditor{}, &stubResolver{})
	s, _ := mgr.Create(context.Background(), CreateOptions{Manifest: "Husky: Black"})
	if _, err := s.ApproveMaster(context.Background(), "Husky"); !errors.Is(err, domain.ErrMasterMissing) {
		t.Fatalf("err = %v, want ErrMasterMissing", err)
	}
}

func TestNoVariantCallWhileUnapproved(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{}
	mgr, _ := newTestManager(t, editor, &stubResolver{})
	ctx := context.Background()
	s, _ := mgr.Create(ctx, CreateOptions{Manifest: "Husky: Black, White"})
	_ = s.SetReference(ctx, []byte("reference"), "image/png")
	if _, err := s.GenerateMaster(ctx, "Husky"); err != nil {
		t.Fatalf("GenerateMaster error: %v", err)
	}
	before := editor.calls()

	if _, err := s.GenerateVariants(ctx, "Husky"); !errors.Is(err, domain.ErrMasterNotApproved) {
		t.Fatalf("GenerateVariants err = %v, want ErrMasterNotApproved", err)
	}
	_, _ = s.SetSelection(ctx, "Husky", []string{"White"})
	if _, err := s.RegenerateSelected(ctx, "Husky"); !errors.Is(err, domain.ErrMasterNotApproved) {
		t.Fatalf("RegenerateSelected err = %v, want ErrMasterNotApproved", err)
	}
	if _, err := s.SkipVariants(ctx, "Husky"); !errors.Is(err, domain.ErrMasterNotApproved) {
		t.Fatalf("SkipVariants err = %v, want ErrMasterNotApproved", err)
	}
	summary, err := s.GenerateAll(ctx)
	if err != nil || len(summary.Completed) != 0 {
		t.Fatalf("GenerateAll = %+v, %v", summary, err)
	}
	if editor.calls() != before {
		t.Fatalf("editor called %d times after master, want 0", editor.calls()-before)
	}
}

func TestGenerateVariantsFromApprovedMaster(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{}
	s := newApprovedSession(t, editor, "Husky: Black, White, Gray")
	ctx := context.Background()

	rec, err := s.GenerateVariants(ctx, "Husky")
	if err != nil {
		t.Fatalf("GenerateVariants error: %v", err)
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", rec.Status)
	}
	want := []string{"husky_black.png", "husky_white.png", "husky_gray.png"}
	if len(rec.ProcessedImages) != len(want) {
		t.Fatalf("processed = %d, want %d", len(rec.ProcessedImages), len(want))
	}
	for i, name := range want {
		if rec.ProcessedImages[i].FileName != name {
			t.Fatalf("image %d = %q, want %q", i, rec.ProcessedImages[i].FileName, name)
		}
		if rec.ProcessedImages[i].IsError {
			t.Fatalf("image %d flagged: %+v", i, rec.ProcessedImages[i])
		}
	}
	// master call + two variants, each variant edits the master output.
	if editor.calls() != 3 {
		t.Fatalf("editor calls = %d, want 3", editor.calls())
	}
	for i := 1; i < 3; i++ {
		if !bytes.Equal(editor.images[i], goodImage) {
			t.Fatalf("variant %d not generated from the master", i)
		}
	}
	if !strings.Contains(editor.prompts[2], "to Gray") {
		t.Fatalf("prompt = %q", editor.prompts[2])
	}
}

func TestVariantFailuresContinueAndFlag(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{respond: func(call int, req image.EditRequest) (*image.Asset, error) {
		switch {
		case strings.Contains(req.Prompt, "to White"):
			return nil, image.ClassifyMessage(500, "server exploded")
		case strings.Contains(req.Prompt, "to Gray"):
			return &image.Asset{Data: []byte{1, 2, 3}}, nil
		}
		return &image.Asset{Data: goodImage}, nil
	}}
	s := newApprovedSession(t, editor, "Husky: Black, White, Gray, Tan")

	rec, err := s.GenerateVariants(context.Background(), "Husky")
	if err != nil {
		t.Fatalf("GenerateVariants error: %v", err)
	}
	if len(rec.ProcessedImages) != 4 {
		t.Fatalf("processed = %d, want 4", len(rec.ProcessedImages))
	}
	white, gray, tan := rec.ProcessedImages[1], rec.ProcessedImages[2], rec.ProcessedImages[3]
	if !white.IsError || !strings.Contains(white.ErrorMessage, "server exploded") {
		t.Fatalf("white = %+v", white)
	}
	if !gray.IsError || len(gray.Image) == 0 {
		t.Fatalf("gray must be flagged but kept: %+v", gray)
	}
	if tan.IsError {
		t.Fatalf("tan = %+v", tan)
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("status = %q", rec.Status)
	}
}

func TestVariantOrgVerificationAborts(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{respond: func(call int, req image.EditRequest) (*image.Asset, error) {
		if strings.Contains(req.Prompt, "to White") {
			return nil, image.ClassifyMessage(403, "Your organization must be verified")
		}
		return &image.Asset{Data: goodImage}, nil
	}}
	s := newApprovedSession(t, editor, "Husky: Black, White, Gray")
	before := editor.calls()

	rec, err := s.GenerateVariants(context.Background(), "Husky")
	if !errors.Is(err, domain.ErrOrgVerification) {
		t.Fatalf("err = %v, want ErrOrgVerification", err)
	}
	if editor.calls()-before != 1 {
		t.Fatalf("variant calls = %d, want 1", editor.calls()-before)
	}
	if rec.Status != domain.StatusError {
		t.Fatalf("status = %q, want error", rec.Status)
	}
	if len(rec.ProcessedImages) != 1 {
		t.Fatalf("processed = %d, want only the master", len(rec.ProcessedImages))
	}
}

func TestRegenerateSelectedVersions(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{}
	s := newApprovedSession(t, editor, "Husky: Black, White, Gray")
	ctx := context.Background()
	if _, err := s.GenerateVariants(ctx, "Husky"); err != nil {
		t.Fatalf("GenerateVariants error: %v", err)
	}
	if _, err := s.SetSelection(ctx, "Husky", []string{"gray", "White", "gray"}); err != nil {
		t.Fatalf("SetSelection error: %v", err)
	}

	rec, err := s.RegenerateSelected(ctx, "Husky")
	if err != nil {
		t.Fatalf("RegenerateSelected error: %v", err)
	}
	rec, err = s.RegenerateSelected(ctx, "Husky")
	if err != nil {
		t.Fatalf("RegenerateSelected error: %v", err)
	}
	var names []string
	for _, img := range rec.ProcessedImages[3:] {
		names = append(names, img.FileName)
	}
	want := "husky_white_v02.png,husky_gray_v02.png,husky_white_v03.png,husky_gray_v03.png"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("regenerated = %q, want %q", got, want)
	}
	if got := strings.Join(rec.SelectedColors, ","); got != "Gray,White" {
		t.Fatalf("selection = %q, must survive regeneration", got)
	}
}

func TestFailedVariantDoesNotTakeVersion(t *testing.T) {
	t.Parallel()
	failWhite := true
	editor := &stubEditor{respond: func(call int, req image.EditRequest) (*image.Asset, error) {
		if failWhite && strings.Contains(req.Prompt, "to White") {
			return nil, image.ClassifyMessage(502, "bad gateway")
		}
		return &image.Asset{Data: goodImage}, nil
	}}
	s := newApprovedSession(t, editor, "Husky: Black, White")
	ctx := context.Background()

	rec, err := s.GenerateVariants(ctx, "Husky")
	if err != nil {
		t.Fatalf("GenerateVariants error: %v", err)
	}
	failed := rec.ProcessedImages[1]
	if !failed.IsError || failed.Version != 0 || len(failed.Image) != 0 {
		t.Fatalf("failed entry = %+v, want error with version 0", failed)
	}

	failWhite = false
	if _, err := s.SetSelection(ctx, "Husky", []string{"White"}); err != nil {
		t.Fatalf("SetSelection error: %v", err)
	}
	rec, err = s.RegenerateSelected(ctx, "Husky")
	if err != nil {
		t.Fatalf("RegenerateSelected error: %v", err)
	}
	first := rec.ProcessedImages[len(rec.ProcessedImages)-1]
	if first.FileName != "husky_white.png" || first.Version != 1 || first.IsError {
		t.Fatalf("first successful white = %+v, want husky_white.png version 1", first)
	}

	rec, err = s.RegenerateSelected(ctx, "Husky")
	if err != nil {
		t.Fatalf("RegenerateSelected error: %v", err)
	}
	if second := rec.ProcessedImages[len(rec.ProcessedImages)-1]; second.FileName != "husky_white_v02.png" {
		t.Fatalf("second successful white = %q, want husky_white_v02.png", second.FileName)
	}
}

func TestSetSelectionRejectsUnknownColor(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t, &stubEditor{}, &stubResolver{})
	s, _ := mgr.Create(context.Background(), CreateOptions{Manifest: "Husky: Black"})
	if _, err := s.SetSelection(context.Background(), "Husky", []string{"Purple"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestBusyBreedRejected(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	mgr, _ := newTestManager(t, editor, &stubResolver{})
	ctx := context.Background()
	s, _ := mgr.Create(ctx, CreateOptions{Manifest: "Husky: Black\nBoxer: Fawn"})
	_ = s.SetReference(ctx, []byte("reference"), "image/png")

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateMaster(ctx, "Husky")
		done <- err
	}()
	<-editor.entered

	if _, err := s.GenerateMaster(ctx, "Husky"); !errors.Is(err, domain.ErrBreedBusy) {
		t.Fatalf("err = %v, want ErrBreedBusy", err)
	}
	if _, err := s.ApproveMaster(ctx, "Husky"); !errors.Is(err, domain.ErrBreedBusy) {
		t.Fatalf("approve err = %v, want ErrBreedBusy", err)
	}
	close(editor.block)
	if err := <-done; err != nil {
		t.Fatalf("first GenerateMaster error: %v", err)
	}
	if _, err := s.GenerateMaster(ctx, "Boxer"); err != nil {
		t.Fatalf("other breed must not be blocked: %v", err)
	}
}

func TestGenerateAllAndSkip(t *testing.T) {
	t.Parallel()
	editor := &stubEditor{}
	s := newApprovedSession(t, editor, "Husky: Black, White\nBoxer: Fawn, Brindle\nPug: Fawn")
	ctx := context.Background()
	if _, err := s.SkipVariants(ctx, "Pug"); err != nil {
		t.Fatalf("SkipVariants error: %v", err)
	}

	summary, err := s.GenerateAll(ctx)
	if err != nil {
		t.Fatalf("GenerateAll error: %v", err)
	}
	if got := strings.Join(summary.Completed, ","); got != "Husky,Boxer" {
		t.Fatalf("completed = %q, want Husky,Boxer", got)
	}
	for _, rec := range s.View().Breeds {
		if rec.Status != domain.StatusCompleted {
			t.Fatalf("%s status = %q", rec.BreedName, rec.Status)
		}
	}
}

func TestArchiveIncludesSavedImages(t *testing.T) {
	t.Parallel()
	s := newApprovedSession(t, &stubEditor{}, "Husky: Black, White")
	ctx := context.Background()
	if _, err := s.GenerateVariants(ctx, "Husky"); err != nil {
		t.Fatalf("GenerateVariants error: %v", err)
	}
	data, err := s.Archive(ctx, "Husky")
	if err != nil {
		t.Fatalf("Archive error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatal("archive is not a zip")
	}
}

func TestManagerRestoresFromRepository(t *testing.T) {
	t.Parallel()
	repo := &memoryRepo{}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	deps := Deps{
		Editor:     &stubEditor{},
		Resolver:   &stubResolver{},
		Store:      store,
		Repo:       repo,
		Logger:     zerolog.Nop(),
		DefaultKey: func() string { return "sk-test" },
	}
	ctx := context.Background()
	first := NewManager(deps)
	s, _ := first.Create(ctx, CreateOptions{Settings: Settings{AnimalType: "Cat"}, Manifest: "Siamese: Seal Point"})
	_ = s.SetReference(ctx, []byte("reference"), "image/png")
	if _, err := s.GenerateMaster(ctx, "Siamese"); err != nil {
		t.Fatalf("GenerateMaster error: %v", err)
	}

	second := NewManager(deps)
	restored, err := second.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if restored.AnimalType() != "Cat" {
		t.Fatalf("AnimalType = %q", restored.AnimalType())
	}
	rec, _ := restored.Breed("Siamese")
	if rec.MasterImage == nil || !bytes.Equal(rec.MasterImage.Image, goodImage) {
		t.Fatalf("master image not restored: %+v", rec.MasterImage)
	}
	if ref, _ := restored.referenceImage(); string(ref) != "reference" {
		t.Fatalf("reference = %q", ref)
	}

	if err := second.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := NewManager(deps).Get(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteDuringOperationStaysDeleted(t *testing.T) {
	t.Parallel()
	repo := &memoryRepo{}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	editor := &stubEditor{block: make(chan struct{}), entered: make(chan struct{})}
	deps := Deps{
		Editor:     editor,
		Store:      store,
		Repo:       repo,
		Logger:     zerolog.Nop(),
		DefaultKey: func() string { return "sk-test" },
	}
	ctx := context.Background()
	mgr := NewManager(deps)
	s, err := mgr.Create(ctx, CreateOptions{Manifest: "Husky: Black"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := s.SetReference(ctx, []byte("reference"), "image/png"); err != nil {
		t.Fatalf("SetReference error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.GenerateMaster(ctx, "Husky")
		done <- err
	}()
	<-editor.entered
	if err := mgr.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	close(editor.block)
	if err := <-done; err != nil {
		t.Fatalf("GenerateMaster error: %v", err)
	}

	if _, err := repo.Load(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("snapshot written after delete: %v", err)
	}
	if _, err := NewManager(deps).Get(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateSettingsNormalizesAnimalType(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t, &stubEditor{}, &stubResolver{})
	ctx := context.Background()
	s, err := mgr.Create(ctx, CreateOptions{Settings: Settings{AnimalType: "  Cat "}, Manifest: "Siamese: Seal Point"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if s.AnimalType() != "Cat" {
		t.Fatalf("created AnimalType = %q", s.AnimalType())
	}
	v := s.UpdateSettings(ctx, Settings{AnimalType: "\tGuinea Pig  "})
	if v.AnimalType != "Guinea Pig" {
		t.Fatalf("updated AnimalType = %q, want %q", v.AnimalType, "Guinea Pig")
	}
	if rec, _ := s.Breed("Siamese"); rec.AnimalType != "Guinea Pig" {
		t.Fatalf("breed AnimalType = %q", rec.AnimalType)
	}
	v = s.UpdateSettings(ctx, Settings{AnimalType: "   "})
	if v.AnimalType != "Guinea Pig" {
		t.Fatalf("blank update changed AnimalType to %q", v.AnimalType)
	}
}

func TestManagerGetUnknown(t *testing.T) {
	t.Parallel()
	mgr, _ := newTestManager(t, &stubEditor{}, &stubResolver{})
	if _, err := mgr.Get(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
