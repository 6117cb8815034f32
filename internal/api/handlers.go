// Package api exposes the game engine over REST and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/alexbotov/minigames/internal/audit"
	"github.com/alexbotov/minigames/internal/auth"
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/game"
	"github.com/alexbotov/minigames/internal/games/roulette"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/alexbotov/minigames/internal/round"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pacing sets the delays the realtime drivers put between events.
type Pacing struct {
	Cascade   time.Duration // between cascade steps
	FreeSpin  time.Duration // before each automatic free spin
	CrashTick time.Duration // between timed-round ticks
}

// Handler contains all HTTP handlers
type Handler struct {
	auth      *auth.Service
	engine    *game.Engine
	rng       *rng.Service
	audit     *audit.Service
	logger    *zap.Logger
	pacing    Pacing
	devTokens bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithPacing sets the realtime delays.
func WithPacing(p Pacing) Option {
	return func(h *Handler) { h.pacing = p }
}

// WithAudit records every health check in the audit trail.
func WithAudit(a *audit.Service) Option {
	return func(h *Handler) { h.audit = a }
}

// WithDevTokens enables POST /api/v1/auth/token. Never in production.
func WithDevTokens() Option {
	return func(h *Handler) { h.devTokens = true }
}

// New creates a new API handler
func New(authSvc *auth.Service, engine *game.Engine, rngSvc *rng.Service, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		auth:   authSvc,
		engine: engine,
		rng:    rngSvc,
		logger: logger.Named("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Response helpers

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondErrorData(w, status, code, message, nil)
}

// respondErrorData reports an error alongside a payload, such as the settled
// round behind a refused cash-out.
func respondErrorData(w http.ResponseWriter, status int, code, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Data:    data,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// errorStatus maps engine errors to an HTTP status and an error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "INSUFFICIENT_BALANCE"
	case errors.Is(err, domain.ErrInvalidBet):
		return http.StatusBadRequest, "INVALID_BET"
	case errors.Is(err, domain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, "LEDGER_UNAVAILABLE"
	case errors.Is(err, game.ErrRoundInProgress):
		return http.StatusConflict, "ROUND_IN_PROGRESS"
	case errors.Is(err, domain.ErrRoundOver):
		return http.StatusConflict, "ROUND_OVER"
	case errors.Is(err, game.ErrNoActiveRound):
		return http.StatusConflict, "NO_ACTIVE_ROUND"
	case errors.Is(err, domain.ErrInvalidAction):
		return http.StatusBadRequest, "INVALID_ACTION"
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, round.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error, data interface{}) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "Internal server error"
	}
	respondErrorData(w, status, code, msg, data)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return false
	}
	return true
}

func gameID(r *http.Request) domain.GameID {
	return domain.GameID(mux.Vars(r)["id"])
}

// === Health & Info ===

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rngHealth, err := h.rng.HealthCheck()
	if h.audit != nil {
		h.audit.RNGHealth(r.Context(), rngHealth, err)
	}
	status := "healthy"
	if err != nil || !rngHealth.Healthy {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"rng_status": rngHealth,
	})
}

// ServerInfo handles GET /
func (h *Handler) ServerInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":        "minigames",
		"version":     "1.0.0",
		"description": "Casino minigame outcome and payout engine",
	})
}

// === Authentication ===

// IssueToken handles POST /api/v1/auth/token in development.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		Name     string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.PlayerID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "player_id is required")
		return
	}
	const ttl = 24 * time.Hour
	token, err := h.auth.Issue(req.PlayerID, req.Name, ttl)
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"player_id":  req.PlayerID,
		"expires_at": time.Now().Add(ttl),
	})
}

// === Wallet ===

// GetBalance handles GET /api/v1/wallet/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerID(r.Context())
	balance, err := h.engine.Balance(r.Context(), playerID)
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"player_id": playerID,
		"balance":   balance,
	})
}

// === Games ===

// GetGames handles GET /api/v1/games
func (h *Handler) GetGames(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.GetGames())
}

// GetGame handles GET /api/v1/games/{id}
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	g, err := h.engine.GetGame(gameID(r))
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, g)
}

type playBody struct {
	Stake int64          `json:"stake"`
	Ante  bool           `json:"ante"`
	Bets  []roulette.Bet `json:"bets"`
}

// Play handles POST /api/v1/games/{id}/play
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var body playBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.engine.Play(r.Context(), game.PlayRequest{
		PlayerID: auth.PlayerID(r.Context()),
		GameID:   gameID(r),
		Stake:    body.Stake,
		Ante:     body.Ante,
		Bets:     body.Bets,
	})
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type startBody struct {
	Stake       int64           `json:"stake"`
	Mines       int             `json:"mines"`
	AutoCashOut decimal.Decimal `json:"auto_cash_out"`
}

// StartRound handles POST /api/v1/games/{id}/rounds
func (h *Handler) StartRound(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.engine.Start(r.Context(), game.StartRequest{
		PlayerID:    auth.PlayerID(r.Context()),
		GameID:      gameID(r),
		Stake:       body.Stake,
		Mines:       body.Mines,
		AutoCashOut: body.AutoCashOut,
	})
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

type actionBody struct {
	Action game.Action `json:"action"`
	Cell   int         `json:"cell"`
}

// Act handles POST /api/v1/games/{id}/actions
func (h *Handler) Act(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if !decode(w, r, &body) {
		return
	}
	res, err := h.engine.Act(r.Context(), game.ActRequest{
		PlayerID: auth.PlayerID(r.Context()),
		GameID:   gameID(r),
		Action:   body.Action,
		Cell:     body.Cell,
	})
	if err != nil {
		// A late cash-out still settled the round; report both.
		h.respondEngineError(w, r, err, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetSession handles GET /api/v1/games/{id}/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	v, err := h.engine.Session(r.Context(), auth.PlayerID(r.Context()), gameID(r))
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// FreeSpin handles POST /api/v1/games/gates/spin
func (h *Handler) FreeSpin(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Spin(r.Context(), auth.PlayerID(r.Context()), nil)
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// GetRound handles GET /api/v1/rounds/{round_id}
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.GetRound(r.Context(), auth.PlayerID(r.Context()), mux.Vars(r)["round_id"])
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// === Live roulette ===

// PlaceLiveBets handles POST /api/v1/live-roulette/bets
func (h *Handler) PlaceLiveBets(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Bets []roulette.Bet `json:"bets"`
	}
	if !decode(w, r, &body) {
		return
	}
	ticket, err := h.engine.Live().PlaceBets(r.Context(), auth.PlayerID(r.Context()), body.Bets)
	if err != nil {
		h.respondEngineError(w, r, err, nil)
		return
	}
	respondJSON(w, http.StatusAccepted, ticket)
}

// LiveCurrent handles GET /api/v1/live-roulette/current
func (h *Handler) LiveCurrent(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Live().Current())
}
