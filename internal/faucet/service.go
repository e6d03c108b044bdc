// Package faucet ties the registry, rate limiter, dispatcher and history
// together into the drip workflow.
package faucet

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/filecoin-faucet/internal/audit"
	"github.com/imrishuroy/filecoin-faucet/internal/dispatch"
	"github.com/imrishuroy/filecoin-faucet/internal/filecoin"
	"github.com/imrishuroy/filecoin-faucet/internal/history"
	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
	"github.com/imrishuroy/filecoin-faucet/internal/network"
	"github.com/imrishuroy/filecoin-faucet/internal/ratelimit"
)

// Status of a drip request that did not fail.
type Status string

const (
	StatusSubmitted        Status = "submitted"
	StatusConfirmedUnknown Status = "confirmed-unknown"
	StatusRateLimited      Status = "rate-limited"
)

// Outcome is the answer to a drip request.
type Outcome struct {
	Status      Status
	NetworkID   string
	Recipient   string
	Tx          ledger.TransactionRecord
	ExplorerURL string
	RetryAfter  time.Duration
	Reason      string
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (o Outcome) RetryAfterSeconds() int64 {
	return ratelimit.Decision{RetryAfter: o.RetryAfter}.RetryAfterSeconds()
}

// Limiter takes and returns drip leases.
type Limiter interface {
	TryAcquire(ctx context.Context, key ledger.Key, now time.Time) (ratelimit.Decision, error)
	Release(ctx context.Context, lease ratelimit.Lease, out ratelimit.Outcome) error
	Cooldown() time.Duration
}

// Dispatcher sends funds.
type Dispatcher interface {
	Dispatch(ctx context.Context, nc *network.Config, recipient string, amount filecoin.TokenAmount) (ledger.TransactionRecord, error)
}

// BalanceReader reads a wallet balance.
type BalanceReader interface {
	WalletBalance(ctx context.Context, addr string) (filecoin.TokenAmount, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Registry   *network.Registry
	Limiter    Limiter
	Dispatcher Dispatcher
	History    *history.Service
	Balances   map[string]BalanceReader
	Audit      audit.Sink
	Logger     *slog.Logger
	TopUpURL   string
}

// Service runs drip requests.
type Service struct {
	registry   *network.Registry
	limiter    Limiter
	dispatcher Dispatcher
	history    *history.Service
	balances   map[string]BalanceReader
	audit      audit.Sink
	logger     *slog.Logger
	topUpURL   string
	nowFunc    func() time.Time
	newID      func() string
}

// New returns a Service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := d.Audit
	if sink == nil {
		sink = audit.LogSink{Logger: logger}
	}
	return &Service{
		registry:   d.Registry,
		limiter:    d.Limiter,
		dispatcher: d.Dispatcher,
		history:    d.History,
		balances:   d.Balances,
		audit:      sink,
		logger:     logger,
		topUpURL:   d.TopUpURL,
		nowFunc:    time.Now,
		newID:      uuid.NewString,
	}
}

// resolve validates the network and recipient and returns the ledger key.
func (s *Service) resolve(networkID, rawAddress string) (*network.Config, ledger.Key, error) {
	nc, err := s.registry.Lookup(networkID)
	if err != nil {
		return nil, ledger.Key{}, err
	}
	addr, err := nc.ParseAddress(rawAddress)
	if err != nil {
		return nil, ledger.Key{}, err
	}
	return nc, ledger.Key{NetworkID: nc.ID, Recipient: nc.FormatAddress(addr)}, nil
}

// Drip sends the network's drip amount to rawAddress unless the recipient
// is cooling down. A rate limited request is an Outcome, not an error.
// Errors are network.ErrUnknownNetwork, network.ErrInvalidAddress,
// ledger.ErrUnavailable or a *dispatch.Error.
func (s *Service) Drip(ctx context.Context, networkID, rawAddress string) (Outcome, error) {
	nc, key, err := s.resolve(networkID, rawAddress)
	if err != nil {
		return Outcome{}, err
	}

	decision, err := s.limiter.TryAcquire(ctx, key, s.nowFunc())
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limiter unavailable", "key", key.String(), "error", err)
		return Outcome{}, err
	}
	if !decision.Allowed {
		out := Outcome{
			Status:     StatusRateLimited,
			NetworkID:  nc.ID,
			Recipient:  key.Recipient,
			RetryAfter: decision.RetryAfter,
			Reason:     decision.Reason,
		}
		s.publish(ctx, audit.Event{
			NetworkID:         nc.ID,
			Recipient:         key.Recipient,
			Outcome:           audit.OutcomeRateLimited,
			RetryAfterSeconds: out.RetryAfterSeconds(),
		})
		return out, nil
	}

	tx, dispatchErr := s.dispatcher.Dispatch(ctx, nc, key.Recipient, nc.DripAmount)
	// The lease must be returned even if the caller went away.
	releaseCtx := context.WithoutCancel(ctx)

	if dispatchErr != nil {
		kind := ratelimit.FailedFatal
		outcome := audit.OutcomeDispatchFatal
		if dispatch.IsTransient(dispatchErr) {
			kind = ratelimit.FailedTransient
			outcome = audit.OutcomeDispatchTransient
		}
		if err := s.limiter.Release(releaseCtx, decision.Lease, ratelimit.Outcome{Kind: kind, At: s.nowFunc()}); err != nil {
			s.logger.ErrorContext(ctx, "release after failed dispatch", "key", key.String(), "error", err)
		}
		if kind == ratelimit.FailedFatal {
			s.logger.ErrorContext(ctx, "drip dispatch failed", "network", nc.ID, "recipient", key.Recipient, "error", dispatchErr)
		} else {
			s.logger.WarnContext(ctx, "drip dispatch failed", "network", nc.ID, "recipient", key.Recipient, "error", dispatchErr)
		}
		s.publish(ctx, audit.Event{
			NetworkID: nc.ID,
			Recipient: key.Recipient,
			Outcome:   outcome,
			Amount:    nc.DripAmount.String(),
			Error:     dispatchErr.Error(),
		})
		return Outcome{}, dispatchErr
	}

	if err := s.limiter.Release(releaseCtx, decision.Lease, ratelimit.Outcome{Kind: ratelimit.Succeeded, Tx: tx, At: tx.SubmittedAt}); err != nil {
		// Funds moved; the pending lease keeps the recipient blocked until it goes stale.
		s.logger.ErrorContext(ctx, "record drip in ledger", "key", key.String(), "tx_cid", tx.TxCID, "error", err)
	}

	out := Outcome{
		Status:      StatusSubmitted,
		NetworkID:   nc.ID,
		Recipient:   key.Recipient,
		Tx:          tx,
		ExplorerURL: nc.ExplorerTxURL(tx.TxCID),
	}
	outcome := audit.OutcomeSubmitted
	if tx.Status == ledger.StatusConfirmedUnknown {
		out.Status = StatusConfirmedUnknown
		outcome = audit.OutcomeConfirmedUnknown
	}
	s.publish(ctx, audit.Event{
		NetworkID: nc.ID,
		Recipient: key.Recipient,
		Outcome:   outcome,
		TxCID:     tx.TxCID,
		Amount:    tx.Amount,
	})
	return out, nil
}

func (s *Service) publish(ctx context.Context, e audit.Event) {
	e.EventID = s.newID()
	e.OccurredAt = s.nowFunc().UTC()
	if err := s.audit.Publish(context.WithoutCancel(ctx), e); err != nil {
		s.logger.WarnContext(ctx, "publish audit event", "event_id", e.EventID, "outcome", e.Outcome, "error", err)
	}
}

// HistoryEntry is one past drip as shown to users.
type HistoryEntry struct {
	TxCID       string    `json:"tx_cid"`
	Amount      string    `json:"amount"`
	SubmittedAt time.Time `json:"submitted_at"`
	Status      string    `json:"dispatch_status"`
	ExplorerURL string    `json:"explorer_url"`
}

// History returns the recipient's recent drips on a network, newest first.
func (s *Service) History(ctx context.Context, networkID, rawAddress string, limit int) ([]HistoryEntry, error) {
	nc, key, err := s.resolve(networkID, rawAddress)
	if err != nil {
		return nil, err
	}
	txs, err := s.history.History(ctx, key, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(txs))
	for _, tx := range txs {
		amount := tx.Amount
		if v, err := filecoin.ParseAtto(tx.Amount); err == nil {
			amount = v.FIL()
		}
		out = append(out, HistoryEntry{
			TxCID:       tx.TxCID,
			Amount:      amount,
			SubmittedAt: tx.SubmittedAt,
			Status:      tx.Status,
			ExplorerURL: nc.ExplorerTxURL(tx.TxCID),
		})
	}
	return out, nil
}

// Info describes a network's faucet.
type Info struct {
	NetworkID       string `json:"network"`
	Name            string `json:"name"`
	FundingAddress  string `json:"funding_address"`
	DripAmount      string `json:"drip_amount"`
	Unit            string `json:"unit"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
	Balance         string `json:"balance,omitempty"`
	TopUpURL        string `json:"top_up_url,omitempty"`
	TargetAddress   string `json:"target_address,omitempty"`
	TargetBalance   string `json:"target_balance,omitempty"`
}

// Info returns the public description of a network's faucet. When
// rawAddress is set it must be valid on the network and its balance is
// reported too. Balances are best effort and left empty when the node
// cannot be reached.
func (s *Service) Info(ctx context.Context, networkID, rawAddress string) (Info, error) {
	var (
		nc     *network.Config
		target string
		err    error
	)
	if rawAddress != "" {
		var key ledger.Key
		nc, key, err = s.resolve(networkID, rawAddress)
		target = key.Recipient
	} else {
		nc, err = s.registry.Lookup(networkID)
	}
	if err != nil {
		return Info{}, err
	}
	info := Info{
		NetworkID:       nc.ID,
		Name:            nc.Name,
		FundingAddress:  nc.FundingAddress(),
		DripAmount:      nc.DripAmount.FIL(),
		Unit:            nc.Unit,
		CooldownSeconds: int64(s.limiter.Cooldown() / time.Second),
		TopUpURL:        s.topUpURL,
		TargetAddress:   target,
	}
	info.Balance = s.balance(ctx, nc.ID, info.FundingAddress)
	if target != "" {
		info.TargetBalance = s.balance(ctx, nc.ID, target)
	}
	return info, nil
}

func (s *Service) balance(ctx context.Context, networkID, addr string) string {
	r, ok := s.balances[networkID]
	if !ok {
		return ""
	}
	bal, err := r.WalletBalance(ctx, addr)
	if err != nil {
		s.logger.WarnContext(ctx, "read wallet balance", "network", networkID, "address", addr, "error", err)
		return ""
	}
	return bal.FIL()
}
