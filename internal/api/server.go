// Package api is the HTTP/JSON surface (spec.md §6) over components
// I (dispatch), J (fleet operations), and K (health). Routing, CORS,
// and rate-limiting are grounded on
// fairyhunter13-ai-cv-evaluator's internal/app.BuildRouter (chi was
// not in the teacher's own stack — services/gateway/main.go uses a
// bare http.ServeMux — but spec.md's route surface needs path params
// and per-route middleware that chi expresses more directly).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/doai-fleet/farmctl/internal/dispatch"
	"github.com/doai-fleet/farmctl/internal/fleetsvc"
	"github.com/doai-fleet/farmctl/internal/health"
)

// Server bundles the component J/I/K dependencies the HTTP layer
// delegates to.
type Server struct {
	Fleet    *fleetsvc.Service
	Dispatch *dispatch.Plane
	Health   *health.Service
	Log      zerolog.Logger
}

// New builds a Server.
func New(fleet *fleetsvc.Service, disp *dispatch.Plane, h *health.Service, log zerolog.Logger) *Server {
	return &Server{Fleet: fleet, Dispatch: disp, Health: h, Log: log}
}

// Router builds the full chi handler tree.
func (s *Server) Router(allowedOrigins []string, rateLimitPerMin int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Group(func(mut chi.Router) {
			mut.Use(httprate.LimitByIP(rateLimitPerMin, time.Minute))
			s.mountHosts(mut)
			s.mountDevices(mut)
			s.mountTasks(mut)
		})
		s.mountHealth(api)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
