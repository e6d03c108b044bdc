package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/filecoin-faucet/internal/audit"
	"github.com/imrishuroy/filecoin-faucet/internal/aws"
)

// MetricDripOutcome counts drip decisions per network and outcome.
const MetricDripOutcome = "DripOutcome"

// CountPublisher is satisfied by *aws.MetricsPublisher.
type CountPublisher interface {
	PutCounts(ctx context.Context, counts []aws.MetricCount) error
}

// Processor turns audit events into CloudWatch counts.
type Processor struct {
	metrics CountPublisher
	logger  *slog.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(metrics CountPublisher, logger *slog.Logger) *Processor {
	return &Processor{metrics: metrics, logger: logger}
}

// Handle receives an SQS batch. A malformed message fails the whole batch so
// Lambda retries it and eventually moves it to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.logger.InfoContext(ctx, "received audit batch", "messages", len(ev.Records))

	counts := make([]aws.MetricCount, 0, len(ev.Records))
	for _, rec := range ev.Records {
		e, err := audit.Decode(rec.Body)
		if err != nil {
			p.logger.ErrorContext(ctx, "malformed audit message", "message_id", rec.MessageId, "error", err)
			return fmt.Errorf("message %s: %w", rec.MessageId, err)
		}
		p.logEvent(ctx, e)
		counts = append(counts, aws.MetricCount{
			Name:  MetricDripOutcome,
			Value: 1,
			Dimensions: map[string]string{
				"Network": e.NetworkID,
				"Outcome": e.Outcome,
			},
			Timestamp: e.OccurredAt,
		})
	}
	if len(counts) == 0 {
		return nil
	}

	if err := p.metrics.PutCounts(ctx, counts); err != nil {
		return fmt.Errorf("publish drip metrics: %w", err)
	}
	return nil
}

func (p *Processor) logEvent(ctx context.Context, e audit.Event) {
	attrs := []any{
		"event_id", e.EventID,
		"network", e.NetworkID,
		"recipient", e.Recipient,
		"outcome", e.Outcome,
	}
	switch e.Outcome {
	case audit.OutcomeDispatchFatal:
		p.logger.ErrorContext(ctx, "drip failed permanently", append(attrs, "error", e.Error)...)
	case audit.OutcomeDispatchTransient:
		p.logger.WarnContext(ctx, "drip failed", append(attrs, "error", e.Error)...)
	default:
		p.logger.DebugContext(ctx, "drip outcome", append(attrs, "tx_cid", e.TxCID)...)
	}
}
