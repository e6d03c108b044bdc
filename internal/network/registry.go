// Package network is the registry of Filecoin networks the faucet can fund
// recipients on. It is built once from configuration and never mutated.
package network

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/filecoin-project/go-address"

	"github.com/imrishuroy/filecoin-faucet/internal/config"
	"github.com/imrishuroy/filecoin-faucet/internal/filecoin"
)

// Network identifiers.
const (
	Calibnet = "calibnet"
	Mainnet  = "mainnet"
)

var (
	// ErrUnknownNetwork is returned for identifiers that are not registered.
	ErrUnknownNetwork = errors.New("unknown network")
	// ErrInvalidAddress is returned for recipients the network cannot fund.
	ErrInvalidAddress = filecoin.ErrInvalidAddress
)

var aliases = map[string]string{
	"calibration": Calibnet,
	"calibnet":    Calibnet,
	"testnet":     Calibnet,
	"main":        Mainnet,
	"mainnet":     Mainnet,
}

type defaults struct {
	name        string
	chain       filecoin.Network
	rpcURL      string
	dripAmount  string
	unit        string
	explorerURL string
}

var builtin = map[string]defaults{
	Calibnet: {
		name:        "Calibnet",
		chain:       filecoin.Testnet,
		rpcURL:      "https://api.calibration.node.glif.io/rpc/v1",
		dripAmount:  "1",
		unit:        "tFIL",
		explorerURL: "https://beryx.io/fil/calibration/",
	},
	Mainnet: {
		name:        "Mainnet",
		chain:       filecoin.Mainnet,
		rpcURL:      "https://api.node.glif.io/rpc/v1",
		dripAmount:  "0.01",
		unit:        "FIL",
		explorerURL: "https://beryx.io/fil/mainnet/",
	},
}

// Signer signs messages with a network's funding key.
type Signer interface {
	Address() address.Address
	Sign(msg filecoin.Message) (filecoin.SignedMessage, error)
}

// Config is the immutable description of one network.
type Config struct {
	ID          string
	Name        string
	Chain       filecoin.Network
	Encoder     filecoin.Encoder
	RPCURL      string
	RPCToken    config.Secret
	DripAmount  filecoin.TokenAmount
	Unit        string
	ExplorerURL string
	Signer      Signer
}

// ParseAddress validates a recipient against the network's address format
// and encoding variant.
func (c *Config) ParseAddress(raw string) (address.Address, error) {
	return c.Encoder.ParseRecipient(raw)
}

// FormatAddress renders addr with the network prefix.
func (c *Config) FormatAddress(addr address.Address) string {
	return filecoin.FormatAddress(addr, c.Chain)
}

// FundingAddress is the address drips are sent from.
func (c *Config) FundingAddress() string {
	return c.FormatAddress(c.Signer.Address())
}

// ExplorerTxURL links to a transaction on the network's block explorer.
func (c *Config) ExplorerTxURL(txCID string) string {
	u, err := url.JoinPath(c.ExplorerURL, "txs", txCID)
	if err != nil {
		return strings.TrimRight(c.ExplorerURL, "/") + "/txs/" + txCID
	}
	return u
}

// Registry resolves network identifiers to configurations.
type Registry struct {
	networks map[string]*Config
	order    []string
}

// NewRegistry builds the registry from process configuration. Networks
// without a funding secret are left out; malformed values fail startup.
func NewRegistry(cfg config.Config) (*Registry, error) {
	r := &Registry{networks: make(map[string]*Config)}

	entries := []struct {
		id     string
		secret config.Secret
		txURL  string
		env    config.NetworkEnv
	}{
		{id: Calibnet, secret: cfg.CalibnetSecret, txURL: cfg.CalibnetTxURL, env: cfg.Calibnet},
		{id: Mainnet, secret: cfg.MainnetSecret, txURL: cfg.MainnetTxURL, env: cfg.Mainnet},
	}
	for _, e := range entries {
		if !e.secret.IsSet() {
			continue
		}
		nc, err := build(e.id, e.secret, e.txURL, e.env)
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", e.id, err)
		}
		r.Register(nc)
	}
	return r, nil
}

func build(id string, secret config.Secret, txURL string, env config.NetworkEnv) (*Config, error) {
	d := builtin[id]

	amountText := firstSet(env.DripAmount, d.dripAmount)
	amount, err := filecoin.ParseFIL(amountText)
	if err != nil {
		return nil, fmt.Errorf("drip amount: %w", err)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("drip amount must be positive")
	}

	enc, err := filecoin.ParseEncoding(firstSet(env.Encoding, "current"))
	if err != nil {
		return nil, err
	}

	explorer := firstSet(txURL, d.explorerURL)
	if _, err := url.Parse(explorer); err != nil {
		return nil, fmt.Errorf("explorer url: %w", err)
	}

	signer, err := filecoin.NewKeySigner(secret.Reveal(), amount)
	if err != nil {
		return nil, fmt.Errorf("funding key: %w", err)
	}

	return &Config{
		ID:          id,
		Name:        d.name,
		Chain:       d.chain,
		Encoder:     filecoin.Encoder{Encoding: enc, Network: d.chain},
		RPCURL:      firstSet(env.RPCURL, d.rpcURL),
		RPCToken:    env.RPCToken,
		DripAmount:  amount,
		Unit:        d.unit,
		ExplorerURL: explorer,
		Signer:      signer,
	}, nil
}

// Register adds or replaces a network.
func (r *Registry) Register(nc *Config) {
	if r.networks == nil {
		r.networks = make(map[string]*Config)
	}
	if _, ok := r.networks[nc.ID]; !ok {
		r.order = append(r.order, nc.ID)
	}
	r.networks[nc.ID] = nc
}

// Lookup resolves an identifier or alias such as "calibration" or "main".
func (r *Registry) Lookup(id string) (*Config, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	nc, ok := r.networks[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNetwork, id)
	}
	return nc, nil
}

// Networks returns the registered networks in registration order.
func (r *Registry) Networks() []*Config {
	out := make([]*Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.networks[id])
	}
	return out
}

func firstSet(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
