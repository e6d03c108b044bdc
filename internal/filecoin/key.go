package filecoin

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filecoin-project/go-address"
	"golang.org/x/crypto/blake2b"
)

var (
	// ErrUnsupportedKey is returned for key types the faucet cannot sign with.
	ErrUnsupportedKey = errors.New("unsupported key type")
	// ErrAmountExceeded is returned when a message moves more than the signer allows.
	ErrAmountExceeded = errors.New("amount exceeds signing limit")
	// ErrMalformedKey is returned for keys that do not decode. It carries no
	// detail from the decoder, which would echo key material.
	ErrMalformedKey = errors.New("malformed key")
)

// KeyInfo is a Lotus exported wallet key.
type KeyInfo struct {
	Type       SigType
	PrivateKey []byte
}

type keyInfoJSON struct {
	Type       json.RawMessage
	PrivateKey []byte
}

// ParseKeyInfo decodes the hex encoded JSON produced by `lotus wallet export`.
func ParseKeyInfo(encoded string) (KeyInfo, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return KeyInfo{}, fmt.Errorf("%w: not hex encoded", ErrMalformedKey)
	}
	var kj keyInfoJSON
	if err := json.Unmarshal(raw, &kj); err != nil {
		return KeyInfo{}, fmt.Errorf("%w: not a key info document", ErrMalformedKey)
	}
	t, err := parseKeyType(kj.Type)
	if err != nil {
		return KeyInfo{}, err
	}
	return KeyInfo{Type: t, PrivateKey: kj.PrivateKey}, nil
}

func parseKeyType(raw json.RawMessage) (SigType, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return SigType(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("decode key type: %w", err)
	}
	switch strings.ToLower(s) {
	case "secp256k1":
		return SigTypeSecp256k1, nil
	case "bls":
		return SigTypeBLS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedKey, s)
	}
}

// KeySigner signs messages with one funding key. The key is decoded for each
// signature and wiped afterwards.
type KeySigner struct {
	encoded string
	addr    address.Address
	limit   TokenAmount
}

// NewKeySigner validates an exported secp256k1 key and derives its address.
// Messages carrying more than limit are refused; a zero limit disables the check.
func NewKeySigner(encoded string, limit TokenAmount) (*KeySigner, error) {
	ki, err := ParseKeyInfo(encoded)
	if err != nil {
		return nil, err
	}
	defer wipe(ki.PrivateKey)
	if ki.Type != SigTypeSecp256k1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKey, ki.Type)
	}
	priv, err := crypto.ToECDSA(ki.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load secp256k1 key: %w", err)
	}
	addr, err := address.NewSecp256k1Address(crypto.FromECDSAPub(&priv.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}
	return &KeySigner{encoded: encoded, addr: addr, limit: limit}, nil
}

// Address is the funding address of the key.
func (s *KeySigner) Address() address.Address { return s.addr }

// Sign signs msg after checking it is sent from the key's address.
func (s *KeySigner) Sign(msg Message) (SignedMessage, error) {
	if msg.From != s.addr {
		return SignedMessage{}, fmt.Errorf("message sender %s is not the signing key", msg.From)
	}
	if !s.limit.IsZero() && msg.Value.Cmp(s.limit) > 0 {
		return SignedMessage{}, fmt.Errorf("%w: %s > %s", ErrAmountExceeded, msg.Value.FIL(), s.limit.FIL())
	}
	c, err := msg.Cid()
	if err != nil {
		return SignedMessage{}, err
	}
	digest := blake2b.Sum256(c.Bytes())

	ki, err := ParseKeyInfo(s.encoded)
	if err != nil {
		return SignedMessage{}, err
	}
	defer wipe(ki.PrivateKey)
	priv, err := crypto.ToECDSA(ki.PrivateKey)
	if err != nil {
		return SignedMessage{}, fmt.Errorf("load secp256k1 key: %w", err)
	}
	sig, err := crypto.Sign(digest[:], priv)
	priv.D.SetInt64(0)
	if err != nil {
		return SignedMessage{}, fmt.Errorf("sign message: %w", err)
	}
	return SignedMessage{
		Message:   msg,
		Signature: Signature{Type: SigTypeSecp256k1, Data: sig},
	}, nil
}

// String never includes key material.
func (s *KeySigner) String() string { return "KeySigner(" + s.addr.String() + ")" }

// LogValue keeps the key out of structured logs.
func (s *KeySigner) LogValue() slog.Value { return slog.StringValue(s.String()) }

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
