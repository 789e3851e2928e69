package service

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// SessionAnchoredEvent is published when a rating session becomes fully
// anchored, for the platform to fan out to notifications and dashboards.
type SessionAnchoredEvent struct {
	SessionID   uint      `json:"session_id"`
	TaskID      uint      `json:"task_id"`
	StudentID   uint      `json:"student_id"`
	SessionHash string    `json:"session_hash"`
	RaterDID    string    `json:"rater_did"`
	RatedDID    string    `json:"rated_did"`
	AvgStars    float64   `json:"avg_stars"`
	XP          int       `json:"xp"`
	AnchoredAt  time.Time `json:"anchored_at"`
}

// EventPublisher announces fully anchored sessions. Publishing is best-effort;
// anchoring state is already durable by the time an event is emitted.
type EventPublisher interface {
	SessionAnchored(event SessionAnchoredEvent)
}

type natsPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSPublisher wraps a NATS connection as an EventPublisher. A nil
// connection or empty subject yields a publisher that silently drops events.
func NewNATSPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) EventPublisher {
	return &natsPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "anchor_events").Logger(),
	}
}

func (p *natsPublisher) SessionAnchored(event SessionAnchoredEvent) {
	if p.conn == nil || p.subject == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Uint("session_id", event.SessionID).Msg("failed to encode anchored event")
		return
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		p.logger.Warn().Err(err).Uint("session_id", event.SessionID).Msg("failed to publish anchored event")
	}
}
