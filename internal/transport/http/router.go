package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"scorm-quiz-service/internal/metrics"
)

// NewRouter mounts the REST API, the attempt socket, health and metrics.
func NewRouter(h *Handler, ws *WSHandler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", ownerHeader},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Get("/quizzes", h.ListQuizzes)
		r.Post("/quizzes", h.CreateQuiz)

		r.Route("/quiz/{id}", func(r chi.Router) {
			r.Get("/", h.GetQuiz)
			r.Put("/", h.SaveQuiz)
			r.Delete("/", h.DeleteQuiz)
			r.Post("/duplicate", h.DuplicateQuiz)
			r.Post("/submit", h.Submit)
			r.Get("/submissions", h.Submissions)
			r.Post("/result", h.StoreResult)
			r.Get("/result", h.ListResults)
			r.Get("/media/{key}", h.ServeResource)
			r.Get("/package", h.Package)
		})

		r.Put("/media/{name}", h.UploadMedia)
		r.Get("/media/{name}", h.ServeMedia)
	})
	return r
}
