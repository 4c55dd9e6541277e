package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"breedstudio/internal/http/handlers"
	"breedstudio/internal/infra"
	"breedstudio/internal/middleware"
	"breedstudio/internal/storage"
)

// Options carry the router collaborators that are not handlers.
type Options struct {
	Country middleware.CountryLookup
	// Static serves stored images under storage.PublicPrefix when set.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	cfg := app.Config
	if cfg == nil {
		cfg = &infra.Config{}
	}
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Country(opts.Country),
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Handle("/metrics", app.MetricsHandler())
	if opts.Static != nil {
		r.Handle(storage.PublicPrefix+"*", http.StripPrefix(storage.PublicPrefix, opts.Static))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

		r.Route("/v1/config", func(r chi.Router) {
			r.Get("/", app.GetConfig)
			r.Post("/", app.SaveConfig)
		})
		r.Post("/v1/colors", app.Colors)
		r.Route("/v1/images", func(r chi.Router) {
			r.Post("/generate", app.ImagesGenerate)
			r.Post("/save", app.ImagesSave)
		})

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Post("/", app.SessionCreate)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.SessionGet)
				r.Patch("/", app.SessionUpdate)
				r.Delete("/", app.SessionDelete)
				r.Get("/manifest", app.ManifestExport)
				r.Post("/manifest", app.ManifestImport)
				r.Put("/reference", app.ReferenceSet)
				r.Post("/resolve", app.ColorsResolve)
				r.Post("/generate-all", app.GenerateAll)

				r.Route("/breeds/{breed}", func(r chi.Router) {
					r.Get("/", app.BreedGet)
					r.Post("/master", app.MasterGenerate())
					r.Post("/approve", app.MasterApprove())
					r.Post("/variants", app.VariantsGenerate())
					r.Post("/skip", app.VariantsSkip())
					r.Put("/selection", app.SelectionSet)
					r.Post("/regenerate", app.VariantsRegenerate())
					r.Get("/archive", app.BreedArchive)
				})
			})
		})
	})

	return r
}
