package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/alexbotov/minigames/internal/auth"
	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/game"
	"github.com/alexbotov/minigames/internal/games/gates"
	"github.com/alexbotov/minigames/internal/games/roulette"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSClient represents a WebSocket client connection
type WSClient struct {
	conn     *websocket.Conn
	send     chan []byte
	inbox    chan WSMessage
	playerID string
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	closed  bool
	tickers map[domain.GameID]context.CancelFunc
}

func newClient(conn *websocket.Conn, playerID string) *WSClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &WSClient{
		conn:     conn,
		send:     make(chan []byte, 256),
		inbox:    make(chan WSMessage, 16),
		playerID: playerID,
		ctx:      ctx,
		cancel:   cancel,
		tickers:  make(map[domain.GameID]context.CancelFunc),
	}
}

// HandleWebSocket handles GET /ws, the player's realtime channel. Messages
// are handled in order on one goroutine so a long free-spin run never
// stalls the read deadline.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	playerID := auth.PlayerID(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, playerID)
	go c.writePump()
	go h.dispatch(c)
	go h.readPump(c)
}

// HandleLiveWebSocket handles GET /ws/live-roulette. Viewers get the table
// state on connect and every closed bucket after that.
func (h *Handler) HandleLiveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, "")
	live := h.engine.Live()
	updates, unsubscribe := live.Subscribe(8)

	go c.writePump()
	go func() {
		defer unsubscribe()
		h.sendMessage(c, "live_state", live.Current())
		for {
			select {
			case <-c.ctx.Done():
				return
			case res := <-updates:
				h.sendMessage(c, "live_result", res)
			}
		}
	}()
	go h.readPump(c)
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			w.Close()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the dispatcher
func (h *Handler) readPump(c *WSClient) {
	defer func() {
		c.cancel()
		c.mu.Lock()
		c.closed = true
		close(c.send)
		close(c.inbox)
		c.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	if c.playerID != "" {
		h.sendMessage(c, "connected", map[string]interface{}{
			"player_id": c.playerID,
		})
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed", zap.String("player_id", c.playerID), zap.Error(err))
			}
			return
		}
		if c.playerID == "" {
			// Broadcast viewers only listen.
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.sendError(c, "INVALID_MESSAGE", "Invalid message format")
			continue
		}

		select {
		case c.inbox <- msg:
		default:
			h.sendError(c, "BUSY", "Too many pending messages")
		}
	}
}

func (h *Handler) dispatch(c *WSClient) {
	for msg := range c.inbox {
		h.handleWSMessage(c, &msg)
	}
}

// handleWSMessage processes incoming WebSocket messages
func (h *Handler) handleWSMessage(c *WSClient, msg *WSMessage) {
	ctx := c.ctx

	switch msg.Type {
	case "play":
		h.handlePlayMessage(c, msg)

	case "start":
		h.handleStartMessage(c, msg)

	case "action":
		var p struct {
			GameID domain.GameID `json:"game_id"`
			actionBody
		}
		if !h.parse(c, msg, &p) {
			return
		}
		res, err := h.engine.Act(ctx, game.ActRequest{PlayerID: c.playerID, GameID: p.GameID, Action: p.Action, Cell: p.Cell})
		h.sendRound(c, res, err)

	case "spin":
		h.runFreeSpins(c, false)

	case "balance":
		balance, err := h.engine.Balance(ctx, c.playerID)
		if err != nil {
			h.sendEngineError(c, err)
			return
		}
		h.sendMessage(c, "balance", map[string]interface{}{"balance": balance})

	case "session":
		var p struct {
			GameID domain.GameID `json:"game_id"`
		}
		if !h.parse(c, msg, &p) {
			return
		}
		v, err := h.engine.Session(ctx, c.playerID, p.GameID)
		if err != nil {
			h.sendEngineError(c, err)
			return
		}
		h.sendMessage(c, "session", v)

	case "ping":
		h.sendMessage(c, "pong", map[string]interface{}{
			"timestamp": time.Now().Unix(),
		})

	default:
		h.sendError(c, "UNKNOWN_MESSAGE", "Unknown message type: "+msg.Type)
	}
}

// handlePlayMessage plays a one-shot round. Gates cascade steps are sent
// one by one with the cascade delay between them; a spin that enters the
// bonus then runs its free spins automatically.
func (h *Handler) handlePlayMessage(c *WSClient, msg *WSMessage) {
	var p struct {
		GameID domain.GameID  `json:"game_id"`
		Stake  int64          `json:"stake"`
		Ante   bool           `json:"ante"`
		Bets   []roulette.Bet `json:"bets"`
	}
	if !h.parse(c, msg, &p) {
		return
	}

	res, err := h.engine.PlayStream(c.ctx, game.PlayRequest{
		PlayerID: c.playerID,
		GameID:   p.GameID,
		Stake:    p.Stake,
		Ante:     p.Ante,
		Bets:     p.Bets,
	}, h.stepSender(c))
	if err != nil {
		h.sendEngineError(c, err)
		return
	}
	h.sendMessage(c, "result", res)

	if res.Bonus != nil && res.Bonus.Active {
		h.runFreeSpins(c, true)
	}
}

// runFreeSpins plays pending free spins with the free-spin delay before
// each. With auto unset it plays a single spin.
func (h *Handler) runFreeSpins(c *WSClient, auto bool) {
	for {
		if auto && !sleep(c.ctx, h.pacing.FreeSpin) {
			return
		}
		res, err := h.engine.Spin(c.ctx, c.playerID, h.stepSender(c))
		if err != nil {
			h.sendEngineError(c, err)
			return
		}
		h.sendMessage(c, "free_spin", res)
		if !auto || res.Bonus == nil || !res.Bonus.Active {
			return
		}
	}
}

func (h *Handler) stepSender(c *WSClient) game.StepFunc {
	return func(step gates.Step) error {
		h.sendMessage(c, "cascade_step", step)
		if step.Final {
			return nil
		}
		if !sleep(c.ctx, h.pacing.Cascade) {
			return c.ctx.Err()
		}
		return nil
	}
}

// handleStartMessage opens a multi-step round. Timed rounds get a ticker
// that reports the multiplier and settles the round when it ends on its
// own.
func (h *Handler) handleStartMessage(c *WSClient, msg *WSMessage) {
	var p struct {
		GameID domain.GameID `json:"game_id"`
		startBody
	}
	if !h.parse(c, msg, &p) {
		return
	}
	res, err := h.engine.Start(c.ctx, game.StartRequest{
		PlayerID:    c.playerID,
		GameID:      p.GameID,
		Stake:       p.Stake,
		Mines:       p.Mines,
		AutoCashOut: p.AutoCashOut,
	})
	h.sendRound(c, res, err)
	if err != nil || res.Phase.Terminal() {
		return
	}
	if p.GameID == domain.GameCrash || p.GameID == domain.GameDinoRun {
		h.startTicker(c, p.GameID)
	}
}

func (h *Handler) startTicker(c *WSClient, id domain.GameID) {
	if h.pacing.CrashTick <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.mu.Lock()
	if prev, ok := c.tickers[id]; ok {
		prev()
	}
	c.tickers[id] = cancel
	c.mu.Unlock()

	go func() {
		defer cancel()
		ticker := time.NewTicker(h.pacing.CrashTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			res, err := h.engine.Act(ctx, game.ActRequest{PlayerID: c.playerID, GameID: id, Action: game.ActionTick})
			if err != nil {
				// Settled by a player action in the meantime.
				return
			}
			if res.Phase.Terminal() {
				h.sendMessage(c, "result", res)
				return
			}
			h.sendMessage(c, "tick", res)
		}
	}()
}

// sendRound reports the outcome of a start or an action. A round that
// ended is sent as a result, even alongside an error.
func (h *Handler) sendRound(c *WSClient, res *game.Result, err error) {
	if res != nil {
		if res.Phase.Terminal() {
			h.sendMessage(c, "result", res)
		} else {
			h.sendMessage(c, "round", res)
		}
	}
	if err != nil {
		h.sendEngineError(c, err)
	}
}

func (h *Handler) parse(c *WSClient, msg *WSMessage, v interface{}) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		h.sendError(c, "INVALID_PAYLOAD", "Invalid "+msg.Type+" payload")
		return false
	}
	return true
}

// sleep waits d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// sendMessage sends a message to the client
func (h *Handler) sendMessage(c *WSClient, msgType string, payload interface{}) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode websocket payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	msgBytes, _ := json.Marshal(WSMessage{
		Type:    msgType,
		Payload: payloadBytes,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msgBytes:
	default:
		// Channel full, drop message
	}
}

// sendError sends an error message to the client
func (h *Handler) sendError(c *WSClient, code, message string) {
	h.sendMessage(c, "error", map[string]string{
		"code":    code,
		"message": message,
	})
}

func (h *Handler) sendEngineError(c *WSClient, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("websocket request failed", zap.String("player_id", c.playerID), zap.Error(err))
		msg = "Internal server error"
	}
	h.sendError(c, code, msg)
}
