// Package healthserver exposes the orchestrator process's liveness
// endpoint. The job-enqueuing API is out of scope; this is only the probe
// surface a container platform needs to supervise a running job.
package healthserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server wraps the liveness router.
type Server struct {
	jobID     string
	startedAt time.Time
}

// New builds a Server reporting on the given job.
func New(jobID string) *Server {
	return &Server{jobID: jobID, startedAt: time.Now()}
}

// Router assembles the chi router: panic recovery, request IDs, permissive
// CORS for GET, and the /health route.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	return r
}

func (s *Server) health(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"job_id":         s.jobID,
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
	})
}
