package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/batchtrack/internal/api/middleware"
	"github.com/kiranshivaraju/batchtrack/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	CreateBatch    http.HandlerFunc
	ListBatches    http.HandlerFunc
	GetBatch       http.HandlerFunc
	UpdatePhase    http.HandlerFunc
	FinishBatch    http.HandlerFunc
	DeleteBatch    http.HandlerFunc
	BatchMovements http.HandlerFunc

	CreateIngredient    http.HandlerFunc
	GetIngredient       http.HandlerFunc
	CreateIngredientMix http.HandlerFunc
	GetIngredientMix    http.HandlerFunc
	CreateProduct       http.HandlerFunc
	GetProduct          http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware. RealIP must run before the rate limiter keys on RemoteAddr.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Route("/api/v1/batches", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreateBatch))
			r.Get("/", orNotImplemented(deps.ListBatches))

			r.Route("/{batchID}", func(r chi.Router) {
				r.Get("/", orNotImplemented(deps.GetBatch))
				r.Delete("/", orNotImplemented(deps.DeleteBatch))
				r.Put("/phases/{phase}", orNotImplemented(deps.UpdatePhase))
				r.Post("/finish", orNotImplemented(deps.FinishBatch))
				r.Get("/movements", orNotImplemented(deps.BatchMovements))
			})
		})

		r.Post("/api/v1/ingredients", orNotImplemented(deps.CreateIngredient))
		r.Get("/api/v1/ingredients/{id}", orNotImplemented(deps.GetIngredient))

		r.Post("/api/v1/ingredient-mixes", orNotImplemented(deps.CreateIngredientMix))
		r.Get("/api/v1/ingredient-mixes/{id}", orNotImplemented(deps.GetIngredientMix))

		r.Post("/api/v1/products", orNotImplemented(deps.CreateProduct))
		r.Get("/api/v1/products/{id}", orNotImplemented(deps.GetProduct))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
