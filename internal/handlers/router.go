package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/openwrench/servicelink/internal/middleware"
	"github.com/openwrench/servicelink/internal/models"
)

// NewRouter wires the full REST surface behind authentication and rate
// limiting.
func NewRouter(authHandler *AuthHandler, jobsHandler *JobsHandler, partsHandler *PartsHandler, uploadHandler *UploadHandler, authMW *middleware.AuthMiddleware, uploadDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewRateLimitMiddleware().RateLimit(300, 60))
	r.Use(authMW.Authenticate)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/register", authHandler.Register)

		r.Get("/profile", authHandler.GetProfile)
		r.Put("/profile", authHandler.UpdateProfile)
		r.Post("/profile/location", authHandler.ReportLocation)
		r.Post("/auth/password", authHandler.ChangePassword)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobsHandler.List)
			r.With(authMW.RequireRole(models.RoleCustomer)).Post("/", jobsHandler.Create)

			r.Route("/{jobID}", func(r chi.Router) {
				r.With(authMW.RequireRole(models.RoleTechnician), authMW.RequireApproved).Group(func(r chi.Router) {
					r.Post("/accept", jobsHandler.Accept)
					r.Post("/arrived", jobsHandler.Arrived)
					r.Post("/status", jobsHandler.UpdateStatus)
					r.Post("/quote", jobsHandler.SendQuote)
					r.Post("/bill", jobsHandler.SendBill)
					r.Post("/parts/order", jobsHandler.OrderParts)
				})
				r.With(authMW.RequireRole(models.RoleCustomer)).Group(func(r chi.Router) {
					r.Post("/quote/respond", jobsHandler.RespondToQuote)
					r.Post("/bill/respond", jobsHandler.RespondToBill)
					r.Post("/rate", jobsHandler.Rate)
				})
				r.Post("/cancel", jobsHandler.Cancel)
			})
		})

		r.Route("/part-requests", func(r chi.Router) {
			r.Use(authMW.RequireRole(models.RoleSupplier))
			r.Get("/", partsHandler.List)
			r.Post("/{orderID}/respond", partsHandler.Respond)
		})

		r.Post("/upload", uploadHandler.Upload)
	})

	// Stored media is served straight off disk.
	fileServer := http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir)))
	r.Get("/uploads/*", fileServer.ServeHTTP)

	return r
}
