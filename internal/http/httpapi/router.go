package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"giveserver/internal/http/handlers"
	"giveserver/internal/middleware"
)

type Options struct {
	AdminJWTSecret string
	AllowedOrigins []string
	Logger         zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.OptionalAuth(opts.AdminJWTSecret),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/forms", func(r chi.Router) {
		r.Get("/{id}", app.FormShow)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/", app.FormsList)
			r.Put("/{id}/frequencies", app.FormFrequenciesUpdate)
		})
	})

	r.Route("/v1/donations", func(r chi.Router) {
		r.Post("/", app.DonationsCreate)
		r.Post("/{uuid}/pay", app.DonationsPay)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/", app.DonationsRecent)
			r.Get("/{uuid}/problems", app.ProblemList)
		})
	})

	r.With(middleware.RateLimit(30, time.Minute)).
		Post("/v1/problems", app.ProblemCreate)

	return r
}
