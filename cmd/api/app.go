package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/filecoin-faucet/internal/audit"
	"github.com/imrishuroy/filecoin-faucet/internal/aws"
	"github.com/imrishuroy/filecoin-faucet/internal/config"
	"github.com/imrishuroy/filecoin-faucet/internal/dispatch"
	"github.com/imrishuroy/filecoin-faucet/internal/faucet"
	"github.com/imrishuroy/filecoin-faucet/internal/history"
	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
	"github.com/imrishuroy/filecoin-faucet/internal/lotus"
	"github.com/imrishuroy/filecoin-faucet/internal/network"
	"github.com/imrishuroy/filecoin-faucet/internal/ratelimit"
)

// app is the wired faucet and the resources it holds.
type app struct {
	Service  *faucet.Service
	registry *network.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) NetworkIDs() []string {
	ids := make([]string, 0)
	for _, nc := range a.registry.Networks() {
		ids = append(ids, nc.ID)
	}
	return ids
}

func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	registry, err := network.NewRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("network registry: %w", err)
	}
	a := &app{registry: registry}

	var clients *aws.AWSClients
	if cfg.LedgerBackend == config.LedgerDynamoDB || cfg.AuditQueueURL != "" {
		clients, err = aws.NewAWSClients(ctx, cfg.AWSRegion, cfg.AWSEndpointOverride)
		if err != nil {
			return nil, fmt.Errorf("aws clients: %w", err)
		}
	}

	var store ledger.Store
	switch cfg.LedgerBackend {
	case config.LedgerSQLite:
		s, err := ledger.OpenSQLite(cfg.LedgerSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		store = s
	default:
		store = ledger.NewDynamoStore(clients.DynamoDB, cfg.LedgerTable)
	}

	chains := make(map[string]dispatch.ChainClient)
	balances := make(map[string]faucet.BalanceReader)
	for _, nc := range registry.Networks() {
		c, err := lotus.Dial(ctx, nc.RPCURL, nc.RPCToken.Reveal())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("network %s: %w", nc.ID, err)
		}
		a.closers = append(a.closers, c.Close)
		chains[nc.ID] = c
		balances[nc.ID] = c
		logger.Info("network registered",
			"network", nc.ID,
			"rpc_url", nc.RPCURL,
			"encoding", nc.Encoder.Encoding.String(),
			"drip_amount", nc.DripAmount.Format(nc.Unit),
			"funding_address", nc.FundingAddress(),
		)
	}
	if len(chains) == 0 {
		logger.Warn("no funding secrets configured, every network is unregistered")
	}

	var sink audit.Sink = audit.LogSink{Logger: logger}
	if cfg.AuditQueueURL != "" {
		sink = audit.NewQueueSink(aws.NewPublisher(clients.SQS, cfg.AuditQueueURL))
	}

	if cfg.RateLimiterDisabled {
		logger.Warn("cooldown check disabled")
	}
	limiter := ratelimit.New(store, ratelimit.OptionsFromConfig(cfg), logger)

	a.Service = faucet.New(faucet.Deps{
		Registry:   registry,
		Limiter:    limiter,
		Dispatcher: dispatch.New(chains, cfg.RPCTimeout, logger),
		History:    history.New(store, cfg.HistoryDefaultLimit, cfg.HistoryMaxLimit),
		Balances:   balances,
		Audit:      sink,
		Logger:     logger,
		TopUpURL:   cfg.TopUpURL,
	})
	return a, nil
}
