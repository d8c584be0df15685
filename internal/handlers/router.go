package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig collects everything the HTTP surface is built from
type RouterConfig struct {
	Departures  *DepartureHandler
	Health      *HealthHandler
	Feed        *FeedHandler
	Push        PushServer
	CORSOrigins []string
	StaticDir   string // empty disables static file serving
}

// NewRouter builds the HTTP router
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/health", cfg.Health.GetHealth)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/departures/{platform}", func(r chi.Router) {
		r.Get("/", cfg.Departures.GetWindow)
		r.Get("/after/{run}", cfg.Departures.GetAfter)
		r.Get("/{idx}", cfg.Departures.GetAt)
	})

	if cfg.Feed != nil {
		r.Get("/gtfs-rt/trip-updates", cfg.Feed.GetTripUpdates)
	}
	if cfg.Push != nil {
		r.Get("/ws/{platform}", PushHandler(cfg.Push))
	}

	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}
