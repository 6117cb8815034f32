package profilestore

import "time"

// Error codes returned by the profile service
const (
	ErrUnexpectedError     = "UNEXPECTED_ERROR"
	ErrNotAuthorized       = "NOT_AUTHORIZED"
	ErrPlayerNotFound      = "PLAYER_NOT_FOUND"
	ErrInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrInvalidAmount       = "INVALID_AMOUNT"
)

// APIError is an error response from the service
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Response wraps the service response with either result or error
type Response[T any] struct {
	Result *T        `json:"result,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// ClientConfig holds the client settings
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	RetryCount int
}

// CoinsRequest is the body for /remove-coins and /add-coins
type CoinsRequest struct {
	PlayerID  string `json:"playerId"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference,omitempty"`
}

// RemoveCoinsResult reports whether the coins were taken
type RemoveCoinsResult struct {
	Removed bool  `json:"removed"`
	Balance int64 `json:"balance"`
}

// AddCoinsResult is the balance after a credit
type AddCoinsResult struct {
	Balance int64 `json:"balance"`
}

// BalanceRequest is the body for /balance
type BalanceRequest struct {
	PlayerID string `json:"playerId"`
}

// BalanceResult is the current balance
type BalanceResult struct {
	Balance int64 `json:"balance"`
}

// GameResultRequest is the body for /game-results
type GameResultRequest struct {
	PlayerID string             `json:"playerId,omitempty"`
	GameID   string             `json:"gameId"`
	Win      int64              `json:"win"`
	Bet      int64              `json:"bet"`
	Custom   map[string]float64 `json:"custom,omitempty"`
}

// GameResultResult acknowledges a recorded result
type GameResultResult struct {
	Recorded bool `json:"recorded"`
}
