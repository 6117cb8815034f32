package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/streadway/amqp"
)

// publisher is the part of an AMQP channel the sink uses.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// resultMessage is the published body.
type resultMessage struct {
	GameID domain.GameID `json:"game_id"`
	domain.GameResult
	At time.Time `json:"at"`
}

// AMQP publishes results as JSON to a fanout exchange. The routing key is
// the game id so topic consumers can rebind without a publisher change.
type AMQP struct {
	mu       sync.Mutex
	ch       publisher
	conn     *amqp.Connection
	exchange string
}

// DialAMQP connects and declares the exchange.
func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQP{ch: ch, conn: conn, exchange: exchange}, nil
}

// Record implements Sink.
func (a *AMQP) Record(ctx context.Context, gameID domain.GameID, res domain.GameResult) error {
	body, err := json.Marshal(resultMessage{GameID: gameID, GameResult: res, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	// Channels are not safe for concurrent publishing.
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.Publish(a.exchange, string(gameID), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Close closes the connection.
func (a *AMQP) Close() error {
	if a.conn == nil {
		return nil
	}
	return a.conn.Close()
}
