package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes. Every /api route requires the
// X-User-ID header; /health and the provider webhooks do not.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", UserIDHeader, ReviewerHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.deps.Health.HandleHealth)

	if h.deps.Engagement != nil {
		r.Post("/webhooks/sendgrid", h.HandleSendGridWebhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser)

		if h.deps.Quota != nil {
			r.Get("/quota", h.GetQuota)
		}
		if h.deps.Recommender != nil {
			r.Get("/recommendations", h.GetRecommendations)
			r.Post("/recommendations/refresh", h.RefreshRecommendations)
			r.Get("/recommendations/history", h.GetRecommendationHistory)
			r.Post("/recommendations/tasks", h.CreateRecommendationTasks)
		}
		if h.deps.Tasks != nil {
			r.Get("/tasks", h.ListTasks)
			r.Get("/tasks/{id}", h.GetTask)
			r.Post("/tasks/{id}/approve", h.ApproveTask)
			r.Post("/tasks/{id}/reject", h.RejectTask)
			r.Post("/tasks/{id}/execute", h.ExecuteTask)
		}
		if h.deps.Campaigns != nil {
			r.Get("/campaigns", h.ListCampaigns)
			r.Post("/campaigns", h.CreateCampaign)
			r.Get("/campaigns/{id}", h.GetCampaign)
			r.Patch("/campaigns/{id}", h.UpdateCampaign)
			r.Post("/campaigns/{id}/status", h.SetCampaignStatus)
			r.Delete("/campaigns/{id}", h.DeleteCampaign)
			r.Post("/templates", h.CreateTemplate)
			r.Get("/templates/{id}", h.GetTemplate)
			r.Put("/templates/{id}", h.UpdateTemplate)
		}
		if h.deps.Enrollments != nil {
			r.Post("/enrollments", h.CreateEnrollment)
			r.Get("/enrollments/{id}", h.GetEnrollment)
			r.Get("/enrollments/{id}/logs", h.GetEnrollmentLogs)
			r.Post("/enrollments/{id}/cancel", h.CancelEnrollment)
			r.Post("/engine/tick", h.RunTick)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})

	return r
}
