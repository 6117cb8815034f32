// Package audit records significant events: large wins, voided rounds,
// ledger failures and RNG health checks. Every event is logged; when a
// database is attached it is also stored in audit_events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexbotov/minigames/internal/domain"
	"github.com/alexbotov/minigames/internal/rng"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event types
const (
	EventLargeWin       = "large_win"
	EventRoundVoided    = "round_voided"
	EventRoundRecovered = "round_recovered"
	EventLedgerFailure  = "ledger_failure"
	EventRefundFailed   = "refund_failed"
	EventRNGHealthCheck = "rng_health_check"
	EventSystemError    = "system_error"
)

// Service provides audit logging functionality
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates an audit service. db may be nil.
func New(db *sql.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger.Named("audit")}
}

func level(s domain.EventSeverity) zapcore.Level {
	switch s {
	case domain.SeverityWarning:
		return zapcore.WarnLevel
	case domain.SeverityError, domain.SeverityCritical:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// LogEvent records a significant event
func (s *Service) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("component", event.Component),
	}
	if event.PlayerID != nil {
		fields = append(fields, zap.String("player_id", *event.PlayerID))
	}
	if event.RoundID != nil {
		fields = append(fields, zap.String("round_id", *event.RoundID))
	}
	if len(event.Data) > 0 {
		fields = append(fields, zap.ByteString("data", event.Data))
	}
	if ce := s.logger.Check(level(event.Severity), event.Description); ce != nil {
		ce.Write(fields...)
	}

	if s.db == nil {
		return nil
	}
	var data interface{}
	if len(event.Data) > 0 {
		data = string(event.Data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, type, severity, timestamp, player_id, round_id, description, data, component)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ID, event.Type, event.Severity, event.Timestamp, event.PlayerID, event.RoundID,
		event.Description, data, event.Component)
	if err != nil {
		s.logger.Warn("failed to store audit event", zap.String("event_id", event.ID), zap.Error(err))
	}
	return err
}

// Log is a convenience method for logging events
func (s *Service) Log(ctx context.Context, eventType string, severity domain.EventSeverity, description string, data interface{}, opts ...EventOption) error {
	event := &domain.AuditEvent{
		Type:        eventType,
		Severity:    severity,
		Description: description,
		Component:   "engine",
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err == nil {
			event.Data = jsonData
		}
	}

	for _, opt := range opts {
		opt(event)
	}

	return s.LogEvent(ctx, event)
}

// RNGHealth records the result of an RNG health check.
func (s *Service) RNGHealth(ctx context.Context, result *rng.HealthResult, checkErr error) error {
	severity, desc := domain.SeverityInfo, "rng health check passed"
	switch {
	case checkErr != nil:
		severity, desc = domain.SeverityError, "rng health check failed"
	case result == nil || !result.Healthy:
		severity, desc = domain.SeverityWarning, "rng uniformity check failed"
	}
	return s.Log(ctx, EventRNGHealthCheck, severity, desc, result, WithComponent("rng"))
}

// EventOption is a functional option for configuring audit events
type EventOption func(*domain.AuditEvent)

// WithPlayer sets the player ID for the event
func WithPlayer(playerID string) EventOption {
	return func(e *domain.AuditEvent) {
		e.PlayerID = &playerID
	}
}

// WithRound sets the round ID for the event
func WithRound(roundID string) EventOption {
	return func(e *domain.AuditEvent) {
		e.RoundID = &roundID
	}
}

// WithComponent sets the component for the event
func WithComponent(component string) EventOption {
	return func(e *domain.AuditEvent) {
		e.Component = component
	}
}

// GetEvents retrieves stored events with optional filtering. It returns
// nothing when no database is attached.
func (s *Service) GetEvents(ctx context.Context, filter *EventFilter) ([]*domain.AuditEvent, error) {
	if s.db == nil {
		return nil, nil
	}
	query := `SELECT id, type, severity, timestamp, player_id, round_id, description, data, component
			  FROM audit_events WHERE 1=1`
	args := []interface{}{}
	paramIdx := 1

	if filter != nil {
		if filter.PlayerID != "" {
			query += fmt.Sprintf(" AND player_id = $%d", paramIdx)
			args = append(args, filter.PlayerID)
			paramIdx++
		}
		if filter.Type != "" {
			query += fmt.Sprintf(" AND type = $%d", paramIdx)
			args = append(args, filter.Type)
			paramIdx++
		}
		if !filter.From.IsZero() {
			query += fmt.Sprintf(" AND timestamp >= $%d", paramIdx)
			args = append(args, filter.From)
			paramIdx++
		}
	}

	query += " ORDER BY timestamp DESC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", paramIdx)
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var event domain.AuditEvent
		var playerID, roundID, data sql.NullString

		err := rows.Scan(&event.ID, &event.Type, &event.Severity, &event.Timestamp,
			&playerID, &roundID, &event.Description, &data, &event.Component)
		if err != nil {
			return nil, err
		}

		if playerID.Valid {
			event.PlayerID = &playerID.String
		}
		if roundID.Valid {
			event.RoundID = &roundID.String
		}
		if data.Valid {
			event.Data = json.RawMessage(data.String)
		}

		events = append(events, &event)
	}

	return events, rows.Err()
}

// EventFilter defines criteria for filtering audit events
type EventFilter struct {
	PlayerID string
	Type     string
	From     time.Time
	Limit    int
}
