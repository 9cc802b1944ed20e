package router

import (
	"net/http"

	"github.com/cafe-pos/register/internal/config"
	"github.com/cafe-pos/register/internal/handler"
	"github.com/cafe-pos/register/internal/journal"
	"github.com/cafe-pos/register/internal/metrics"
	mw "github.com/cafe-pos/register/internal/middleware"
	"github.com/cafe-pos/register/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// New creates a Chi router with all register routes wired up.
// The register API requires a cashier-capable role; the event feed accepts
// any valid staff token.
func New(cfg *config.Config, reg handler.RegisterServicer, rec journal.Recorder, hub *ws.Hub, m *metrics.Metrics, logger logrus.FieldLogger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(m.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireCashier)

		registerHandler := handler.NewRegisterHandler(reg, rec, cfg.RegisterID, logger)
		r.Route("/register", registerHandler.RegisterRoutes)
	})

	logger.WithField("register_id", cfg.RegisterID).Info("router initialized")
	return r
}
