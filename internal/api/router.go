package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRouter creates and configures the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(NotFoundHandler)

	// Apply global middleware
	r.Use(h.RecoveryMiddleware)
	r.Use(CORSMiddleware)
	r.Use(h.LoggingMiddleware)

	// Public routes
	r.HandleFunc("/", h.ServerInfo).Methods("GET")
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/ws/live-roulette", h.HandleLiveWebSocket).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	if h.devTokens {
		api.HandleFunc("/auth/token", h.IssueToken).Methods("POST")
	}

	protected := api.PathPrefix("").Subrouter()
	protected.Use(h.AuthMiddleware)

	// Wallet
	protected.HandleFunc("/wallet/balance", h.GetBalance).Methods("GET")

	// Games
	protected.HandleFunc("/games", h.GetGames).Methods("GET")
	protected.HandleFunc("/games/gates/spin", h.FreeSpin).Methods("POST")
	protected.HandleFunc("/games/{id}", h.GetGame).Methods("GET")
	protected.HandleFunc("/games/{id}/play", h.Play).Methods("POST")
	protected.HandleFunc("/games/{id}/rounds", h.StartRound).Methods("POST")
	protected.HandleFunc("/games/{id}/actions", h.Act).Methods("POST")
	protected.HandleFunc("/games/{id}/session", h.GetSession).Methods("GET")
	protected.HandleFunc("/rounds/{round_id}", h.GetRound).Methods("GET")

	// Live roulette
	protected.HandleFunc("/live-roulette/bets", h.PlaceLiveBets).Methods("POST")
	protected.HandleFunc("/live-roulette/current", h.LiveCurrent).Methods("GET")

	// Per-player realtime channel
	r.Handle("/ws", h.AuthMiddleware(http.HandlerFunc(h.HandleWebSocket))).Methods("GET")

	return r
}

// NotFoundHandler handles 404 errors
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}
