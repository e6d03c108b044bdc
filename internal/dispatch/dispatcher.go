// Package dispatch builds, signs and submits funding transactions.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/imrishuroy/filecoin-faucet/internal/filecoin"
	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
	"github.com/imrishuroy/filecoin-faucet/internal/lotus"
	"github.com/imrishuroy/filecoin-faucet/internal/network"
)

// ChainClient is the node API a dispatch needs.
type ChainClient interface {
	MpoolGetNonce(ctx context.Context, addr string) (uint64, error)
	GasEstimateMessageGas(ctx context.Context, msg filecoin.MessageJSON) (filecoin.MessageJSON, error)
	MpoolPush(ctx context.Context, sm filecoin.SignedMessageJSON) (string, error)
}

// Dispatcher sends drips. Nonce assignment is serialised per network within
// the process; concurrent instances race at MpoolPush.
type Dispatcher struct {
	clients map[string]ChainClient
	timeout time.Duration
	logger  *slog.Logger
	nowFunc func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Dispatcher using clients keyed by network ID.
func New(clients map[string]ChainClient, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		clients: clients,
		timeout: timeout,
		logger:  logger,
		nowFunc: time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (d *Dispatcher) lock(networkID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[networkID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[networkID] = l
	}
	return l
}

// Dispatch sends amount to recipient on nc. Caller cancellation is not
// propagated; the configured RPC timeout bounds the call instead.
//
// When the push outcome is unknown the returned record has status
// confirmed-unknown and a nil error, so the cooldown is consumed.
func (d *Dispatcher) Dispatch(ctx context.Context, nc *network.Config, recipient string, amount filecoin.TokenAmount) (ledger.TransactionRecord, error) {
	client, ok := d.clients[nc.ID]
	if !ok {
		return ledger.TransactionRecord{}, fatal("lookup", fmt.Errorf("%w: %s", network.ErrUnknownNetwork, nc.ID))
	}
	to, err := nc.ParseAddress(recipient)
	if err != nil {
		return ledger.TransactionRecord{}, fatal("validate", err)
	}
	if amount.IsZero() {
		return ledger.TransactionRecord{}, fatal("validate", errors.New("amount must be positive"))
	}
	if amount.Cmp(nc.DripAmount) > 0 {
		return ledger.TransactionRecord{}, fatal("validate", fmt.Errorf("%w: %s > %s", filecoin.ErrAmountExceeded, amount.FIL(), nc.DripAmount.FIL()))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	l := d.lock(nc.ID)
	l.Lock()
	defer l.Unlock()

	from := nc.Signer.Address()
	nonce, err := client.MpoolGetNonce(ctx, nc.FormatAddress(from))
	if err != nil {
		return ledger.TransactionRecord{}, transient("nonce", err)
	}

	msg := filecoin.NewTransfer(from, to, amount)
	msg.Nonce = nonce
	unsigned, err := nc.Encoder.Message(msg)
	if err != nil {
		return ledger.TransactionRecord{}, fatal("encode", err)
	}
	est, err := client.GasEstimateMessageGas(ctx, unsigned)
	if err != nil {
		return ledger.TransactionRecord{}, transient("estimate gas", err)
	}
	if est.GasLimit <= 0 {
		return ledger.TransactionRecord{}, transient("estimate gas", fmt.Errorf("node returned gas limit %d", est.GasLimit))
	}
	msg.GasLimit = est.GasLimit
	msg.GasFeeCap = est.GasFeeCap
	msg.GasPremium = est.GasPremium

	signed, err := nc.Signer.Sign(msg)
	if err != nil {
		return ledger.TransactionRecord{}, fatal("sign", err)
	}
	wire, err := nc.Encoder.SignedMessage(signed)
	if err != nil {
		return ledger.TransactionRecord{}, fatal("encode", err)
	}
	localCid, err := signed.Cid()
	if err != nil {
		return ledger.TransactionRecord{}, fatal("encode", err)
	}

	rec := ledger.TransactionRecord{
		TxCID:       localCid.String(),
		NetworkID:   nc.ID,
		Recipient:   nc.FormatAddress(to),
		Amount:      amount.String(),
		SubmittedAt: d.nowFunc().UTC(),
		Status:      ledger.StatusSubmitted,
	}

	root, err := client.MpoolPush(ctx, wire)
	if err != nil {
		switch lotus.Classify(err) {
		case lotus.Rejected, lotus.Unreachable:
			return ledger.TransactionRecord{}, transient("push", err)
		default:
			// Timeouts land here too: a lost push response consumes the cooldown (DESIGN.md, Open Question 3).
			d.logger.Warn("push outcome unknown, recording as sent",
				"network", nc.ID,
				"recipient", rec.Recipient,
				"tx_cid", rec.TxCID,
				"nonce", nonce,
				"error", err,
			)
			rec.Status = ledger.StatusConfirmedUnknown
			return rec, nil
		}
	}
	if root != "" {
		nodeCid, err := filecoin.ParseCid(filecoin.CidJSON{Root: root})
		switch {
		case err != nil:
			d.logger.Warn("node returned an unparseable message cid, keeping local", "local", rec.TxCID, "node", root, "error", err)
		case nodeCid.String() != rec.TxCID:
			d.logger.Warn("node returned a different message cid", "local", rec.TxCID, "node", nodeCid.String())
			rec.TxCID = nodeCid.String()
		}
	}
	d.logger.Info("drip submitted", "network", nc.ID, "recipient", rec.Recipient, "tx_cid", rec.TxCID, "nonce", nonce)
	return rec, nil
}
