package httpapi

import (
	stdhttp "net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediagen/internal/http/handlers"
	"mediagen/internal/middleware"
)

// Options configures the middleware chain around the handlers.
type Options struct {
	JWTSecret       string
	JWTIssuer       string
	DefaultLocale   string
	RateLimitPerMin int
	AllowedOrigins  []string
	// BlobPrefix, when set, serves disk-store blobs to their owners.
	BlobPrefix string
	Country    middleware.CountryLookup
	// Denied is told about every anonymous request to a protected route.
	Denied func(r *stdhttp.Request)
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.Authenticate(opts.JWTSecret, opts.JWTIssuer),
		middleware.Logger(app.Logger),
		middleware.I18N(opts.DefaultLocale, opts.Country),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireUser(opts.Denied))

		r.Route("/v1/generations", func(r chi.Router) {
			r.With(middleware.RateLimit(opts.RateLimitPerMin)).Post("/", app.GenerationsSubmit)
			r.Get("/current", app.GenerationsCurrent)
			r.Post("/current/cancel", app.GenerationsCancel)
			r.Post("/current/reset", app.GenerationsReset)
			r.Get("/events", app.GenerationsEvents)
		})

		r.Route("/v1/gallery", func(r chi.Router) {
			r.Get("/", app.GalleryList)
			r.Get("/export", app.GalleryExport)
			r.Get("/{id}", app.GalleryGet)
			r.Delete("/{id}", app.GalleryDelete)
		})

		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/", app.CreditsBalance)
			r.Get("/quote", app.CreditsQuote)
		})

		if prefix := strings.Trim(opts.BlobPrefix, "/"); prefix != "" {
			r.Get("/"+prefix+"/*", app.GalleryBlob)
		}
	})

	return r
}
