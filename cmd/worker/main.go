package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/filecoin-faucet/internal/aws"
	"github.com/imrishuroy/filecoin-faucet/internal/config"
	"github.com/imrishuroy/filecoin-faucet/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWSRegion, cfg.AWSEndpointOverride)
	if err != nil {
		logger.Error("failed to create aws clients", "error", err)
		os.Exit(1)
	}
	p := NewProcessor(aws.NewMetricsPublisher(clients.CloudWatch, cfg.MetricsNamespace), logger)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"event_id":"local-1","network_id":"calibnet","recipient_address":"t1local","outcome":"submitted","occurred_at":"2026-01-01T00:00:00Z"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{
				{MessageId: "local", Body: testBody},
			},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			logger.Error("local handler error", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(p.Handle)
}
