package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cio-dashboard/internal/model"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Set before Route so mounted subrouters inherit them.
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)

	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(corsMiddleware(s.cfg.CORSAllowedOrigins))
	if s.cfg.SecurityHeaders {
		r.Use(securityHeadersMiddleware)
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())

	tasks := &resource[model.PriorityTask, model.TaskInput]{
		repo:   s.cfg.Tasks,
		name:   "Task",
		plural: "priority tasks",
		dev:    s.isDevelopment(),
	}
	projects := &resource[model.HighPriorityProject, model.ProjectInput]{
		repo:   s.cfg.Projects,
		name:   "Project",
		plural: "high priority projects",
		dev:    s.isDevelopment(),
	}
	incidents := &resource[model.Incident, model.IncidentInput]{
		repo:   s.cfg.Incidents,
		name:   "Incident",
		plural: "incidents",
		dev:    s.isDevelopment(),
	}

	r.Route("/api/priority-tasks", func(r chi.Router) {
		r.Get("/", tasks.list)
		r.Post("/", tasks.create)
		r.Get("/{id}", tasks.get)
		r.Put("/{id}", tasks.update)
		r.Delete("/{id}", tasks.delete)
	})

	r.Route("/api/high-priority-projects", func(r chi.Router) {
		r.Get("/", projects.list)
		r.Post("/", projects.create)
		r.Put("/{id}", projects.update)
		r.Delete("/{id}", projects.delete)
	})

	r.Route("/api/war-room", func(r chi.Router) {
		r.Get("/", incidents.list)
		r.Post("/", incidents.create)
		r.Get("/{id}", incidents.get)
		r.Put("/{id}", incidents.update)
		r.Delete("/{id}", incidents.delete)
	})

	return r
}

func (s *Server) isDevelopment() bool { return s.cfg.Environment == "development" }
