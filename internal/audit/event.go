// Package audit carries drip decisions from the API to the metrics worker.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/filecoin-faucet/internal/aws"
)

// Outcomes of a drip request.
const (
	OutcomeSubmitted         = "submitted"
	OutcomeConfirmedUnknown  = "confirmed_unknown"
	OutcomeRateLimited       = "rate_limited"
	OutcomeDispatchTransient = "dispatch_transient"
	OutcomeDispatchFatal     = "dispatch_fatal"
)

var outcomes = map[string]bool{
	OutcomeSubmitted:         true,
	OutcomeConfirmedUnknown:  true,
	OutcomeRateLimited:       true,
	OutcomeDispatchTransient: true,
	OutcomeDispatchFatal:     true,
}

// Event is the queue message published after each drip decision.
type Event struct {
	EventID           string    `json:"event_id"`
	NetworkID         string    `json:"network_id"`
	Recipient         string    `json:"recipient_address"`
	Outcome           string    `json:"outcome"`
	TxCID             string    `json:"tx_cid,omitempty"`
	Amount            string    `json:"amount,omitempty"`
	RetryAfterSeconds int64     `json:"retry_after_seconds,omitempty"`
	Error             string    `json:"error,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Validate checks the fields the worker depends on.
func (e Event) Validate() error {
	if e.EventID == "" {
		return errors.New("event_id is required")
	}
	if e.NetworkID == "" {
		return errors.New("network_id is required")
	}
	if !outcomes[e.Outcome] {
		return fmt.Errorf("unknown outcome %q", e.Outcome)
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}

// Decode parses and validates a queue message body.
func Decode(body string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, fmt.Errorf("invalid audit event: %w", err)
	}
	return e, nil
}

// Sink receives audit events.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// QueueSink publishes events to SQS.
type QueueSink struct {
	publisher *aws.Publisher
}

// NewQueueSink wraps an SQS publisher.
func NewQueueSink(p *aws.Publisher) *QueueSink {
	return &QueueSink{publisher: p}
}

// Publish sends e as JSON with network and outcome message attributes.
func (s *QueueSink) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	return s.publisher.SendMessage(ctx, string(body), map[string]string{
		"network": e.NetworkID,
		"outcome": e.Outcome,
	})
}

// LogSink writes events to a logger. It stands in when no queue is configured.
type LogSink struct {
	Logger *slog.Logger
}

// Publish logs e at debug level.
func (s LogSink) Publish(ctx context.Context, e Event) error {
	s.Logger.DebugContext(ctx, "audit event",
		"event_id", e.EventID,
		"network", e.NetworkID,
		"outcome", e.Outcome,
		"tx_cid", e.TxCID,
	)
	return nil
}
