package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/gamification-engine/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware движка.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/currency/earn", h.Earn)
		r.Post("/currency/spend", h.Spend)

		r.Post("/progression/xp", h.AddXP)

		r.Post("/streaks/activity", h.RecordActivity)
		r.Post("/streaks/freeze", h.AddFreezeTokens)

		r.Get("/shop/items", h.ShopItems)
		r.Post("/shop/purchase", h.Purchase)

		r.Route("/accounts/{accountID}", func(r chi.Router) {
			r.Get("/", h.GetAccount)
			r.Get("/transactions", h.GetTransactions)
			r.Get("/streaks", h.GetStreaks)
		})

		r.Get("/leaderboard", h.GetLeaderboard)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
