package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"breedstudio/internal/adapter/repo"
	"breedstudio/internal/domain"
	"breedstudio/internal/http/handlers"
	httpapi "breedstudio/internal/http/httpapi"
	"breedstudio/internal/infra"
	"breedstudio/internal/infra/credentials"
	"breedstudio/internal/infra/geoip"
	"breedstudio/internal/middleware"
	"breedstudio/internal/providers/colors"
	"breedstudio/internal/providers/image"
	"breedstudio/internal/storage"
	"breedstudio/internal/workflow"
)

func main() {
	// .env first, then .env.local where the saved credential lives.
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := infra.NewMetrics(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	store, static, err := newStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise image store")
	}

	var sessions domain.SessionRepository
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	if dbpool != nil {
		defer dbpool.Close()
		sessionRepo := repo.NewSessionRepository(infra.NewSQLRunner(dbpool, logger))
		if err := sessionRepo.EnsureSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare session table")
		}
		sessions = sessionRepo
		logger.Info().Msg("session snapshots persisted to postgres")
	}

	country, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	var countryLookup middleware.CountryLookup
	if country != nil {
		defer country.Close()
		countryLookup = country.CountryCode
	}

	creds := credentials.NewStore(cfg.EnvFile)
	defaultKey := func() string {
		key, err := creds.OpenAIAPIKey(context.Background())
		if err != nil {
			logger.Warn().Err(err).Msg("default api key unavailable")
		}
		return key
	}

	completer := colors.NewOpenAIClient(colors.OpenAIOptions{
		Model:        cfg.OpenAIChatModel,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
		OnWarning:    warnFunc(logger, "colors"),
	})
	resolver := colors.NewResolver(completer, colors.ResolverOptions{
		DefaultKey: defaultKey,
		CacheTTL:   cfg.ColorCacheTTL,
	})
	editor := image.NewPacedEditor(image.NewOpenAIEditor(image.OpenAIOptions{
		Model:        cfg.OpenAIImageModel,
		Size:         cfg.ImageSize,
		BaseURL:      cfg.OpenAIBaseURL,
		Organization: cfg.OpenAIOrg,
	}), cfg.ImageRatePerMin)

	manager := workflow.NewManager(workflow.Deps{
		Resolver:   resolver,
		Editor:     editor,
		Store:      store,
		Repo:       sessions,
		Metrics:    metrics,
		Logger:     logger,
		ImageSize:  cfg.ImageSize,
		DefaultKey: defaultKey,
	})

	app := &handlers.App{
		Config:      cfg,
		Logger:      logger,
		Sessions:    manager,
		Resolver:    resolver,
		Editor:      editor,
		Store:       store,
		Credentials: creds,
		Registry:    registry,
		Metrics:     metrics,
	}

	router := httpapi.NewRouter(app, httpapi.Options{Country: countryLookup, Static: static})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("storage", cfg.StorageDriver).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// newStore returns the configured image store and, for the filesystem
// driver, a handler serving it.
func newStore(ctx context.Context, cfg *infra.Config) (storage.Store, http.Handler, error) {
	if cfg.StorageDriver == infra.StorageDriverS3 {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
		})
		return s3Store, nil, err
	}
	fsStore, err := storage.NewFileStore(cfg.OutputDir)
	if err != nil {
		return nil, nil, err
	}
	return fsStore, storage.PublicHandler(fsStore.BasePath()), nil
}

func warnFunc(logger zerolog.Logger, component string) func(reason, detail string) {
	return func(reason, detail string) {
		logger.Warn().Str("component", component).Str("reason", reason).Msg(detail)
	}
}
