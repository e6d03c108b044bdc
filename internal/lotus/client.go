// Package lotus is a minimal client for the Lotus-compatible chain API used
// to fund recipients.
package lotus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/imrishuroy/filecoin-faucet/internal/filecoin"
)

// Client calls a single Lotus node.
type Client struct {
	rpc *rpc.Client
}

// Dial prepares a client for endpoint. For HTTP endpoints no connection is
// made until the first call.
func Dial(ctx context.Context, endpoint, token string) (*Client, error) {
	var opts []rpc.ClientOption
	if token != "" {
		opts = append(opts, rpc.WithHeader("Authorization", "Bearer "+token))
	}
	c, err := rpc.DialOptions(ctx, endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial lotus %s: %w", endpoint, err)
	}
	return &Client{rpc: c}, nil
}

// Close releases the underlying transport.
func (c *Client) Close() { c.rpc.Close() }

// MpoolGetNonce returns the next nonce for addr, including pending messages.
func (c *Client) MpoolGetNonce(ctx context.Context, addr string) (uint64, error) {
	var nonce uint64
	if err := c.rpc.CallContext(ctx, &nonce, "Filecoin.MpoolGetNonce", addr); err != nil {
		return 0, fmt.Errorf("mpool get nonce: %w", err)
	}
	return nonce, nil
}

// GasEstimateMessageGas fills in the gas fields of msg.
func (c *Client) GasEstimateMessageGas(ctx context.Context, msg filecoin.MessageJSON) (filecoin.MessageJSON, error) {
	var out filecoin.MessageJSON
	if err := c.rpc.CallContext(ctx, &out, "Filecoin.GasEstimateMessageGas", msg, nil, nil); err != nil {
		return filecoin.MessageJSON{}, fmt.Errorf("gas estimate: %w", err)
	}
	return out, nil
}

// MpoolPush submits a signed message and returns the CID the node assigned.
func (c *Client) MpoolPush(ctx context.Context, sm filecoin.SignedMessageJSON) (string, error) {
	var out filecoin.CidJSON
	if err := c.rpc.CallContext(ctx, &out, "Filecoin.MpoolPush", sm); err != nil {
		return "", fmt.Errorf("mpool push: %w", err)
	}
	return out.Root, nil
}

// WalletBalance returns the balance of addr.
func (c *Client) WalletBalance(ctx context.Context, addr string) (filecoin.TokenAmount, error) {
	var out filecoin.TokenAmount
	if err := c.rpc.CallContext(ctx, &out, "Filecoin.WalletBalance", addr); err != nil {
		return filecoin.TokenAmount{}, fmt.Errorf("wallet balance: %w", err)
	}
	return out, nil
}

// Failure describes what a failed call says about the request reaching the node.
type Failure int

const (
	// Rejected means the node answered and refused the request.
	Rejected Failure = iota + 1
	// Unreachable means the request never left this process.
	Unreachable
	// Ambiguous means the request may have been processed.
	Ambiguous
)

func (f Failure) String() string {
	switch f {
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	default:
		return "ambiguous"
	}
}

// Classify inspects an error returned by Client.
func Classify(err error) Failure {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return Rejected
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case 502, 504:
			return Ambiguous
		default:
			return Rejected
		}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return Unreachable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Unreachable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return Unreachable
	}
	return Ambiguous
}
