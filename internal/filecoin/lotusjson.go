package filecoin

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
)

// CidJSON is the IPLD link form Lotus uses for CIDs.
type CidJSON struct {
	Root string `json:"/"`
}

// MessageJSON is the Lotus JSON shape of a message.
type MessageJSON struct {
	Version    uint64      `json:"Version"`
	To         string      `json:"To"`
	From       string      `json:"From"`
	Nonce      uint64      `json:"Nonce"`
	Value      TokenAmount `json:"Value"`
	GasLimit   int64       `json:"GasLimit"`
	GasFeeCap  TokenAmount `json:"GasFeeCap"`
	GasPremium TokenAmount `json:"GasPremium"`
	Method     uint64      `json:"Method"`
	Params     *string     `json:"Params,omitempty"`
	CID        *CidJSON    `json:"CID,omitempty"`
}

// SignatureJSON is the Lotus JSON shape of a signature.
type SignatureJSON struct {
	Type SigType `json:"Type"`
	Data []byte  `json:"Data"`
}

// SignedMessageJSON is the Lotus JSON shape of a signed message.
type SignedMessageJSON struct {
	Message   MessageJSON   `json:"Message"`
	Signature SignatureJSON `json:"Signature"`
	CID       *CidJSON      `json:"CID,omitempty"`
}

// Message decodes the JSON shape back into a message. Addresses of either
// prefix are accepted since Lotus echoes its own network prefix.
func (mj MessageJSON) Message() (Message, error) {
	to, err := address.NewFromString(mj.To)
	if err != nil {
		return Message{}, fmt.Errorf("message to: %w", err)
	}
	from, err := address.NewFromString(mj.From)
	if err != nil {
		return Message{}, fmt.Errorf("message from: %w", err)
	}
	var params []byte
	if mj.Params != nil && *mj.Params != "" {
		params, err = base64.StdEncoding.DecodeString(*mj.Params)
		if err != nil {
			return Message{}, fmt.Errorf("message params: %w", err)
		}
	}
	return Message{
		Version:    mj.Version,
		To:         to,
		From:       from,
		Nonce:      mj.Nonce,
		Value:      mj.Value,
		GasLimit:   mj.GasLimit,
		GasFeeCap:  mj.GasFeeCap,
		GasPremium: mj.GasPremium,
		Method:     mj.Method,
		Params:     params,
	}, nil
}

// ErrEncodingMismatch marks a message the selected encoding cannot represent.
var ErrEncodingMismatch = errors.New("message not representable in encoding")

// Encoding selects the wire variant spoken to a network's node.
type Encoding int

const (
	// EncodingLegacy predates delegated addresses and omits Params and CID.
	EncodingLegacy Encoding = iota + 1
	// EncodingCurrent carries delegated recipients, Params and the message CID.
	EncodingCurrent
)

// ParseEncoding maps a configuration value to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy":
		return EncodingLegacy, nil
	case "current":
		return EncodingCurrent, nil
	default:
		return 0, fmt.Errorf("unknown encoding %q", s)
	}
}

func (e Encoding) String() string {
	switch e {
	case EncodingLegacy:
		return "legacy"
	case EncodingCurrent:
		return "current"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Encoder renders messages for one network in one encoding variant.
type Encoder struct {
	Encoding Encoding
	Network  Network
}

// ParseRecipient applies the network address rules and the variant's
// protocol support to a raw recipient.
func (e Encoder) ParseRecipient(raw string) (address.Address, error) {
	addr, err := ParseAddress(raw, e.Network)
	if err != nil {
		return address.Undef, err
	}
	if err := e.check(addr); err != nil {
		return address.Undef, err
	}
	return addr, nil
}

func (e Encoder) check(addr address.Address) error {
	switch e.Encoding {
	case EncodingLegacy:
		if addr.Protocol() == address.Delegated {
			return fmt.Errorf("%w: %w: %s recipients need the current encoding", ErrInvalidAddress, ErrEncodingMismatch, FormatAddress(addr, e.Network))
		}
		return nil
	case EncodingCurrent:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrEncodingMismatch, e.Encoding)
	}
}

// Message renders an unsigned message.
func (e Encoder) Message(m Message) (MessageJSON, error) {
	if err := e.check(m.To); err != nil {
		return MessageJSON{}, err
	}
	mj := MessageJSON{
		Version:    m.Version,
		To:         FormatAddress(m.To, e.Network),
		From:       FormatAddress(m.From, e.Network),
		Nonce:      m.Nonce,
		Value:      m.Value,
		GasLimit:   m.GasLimit,
		GasFeeCap:  m.GasFeeCap,
		GasPremium: m.GasPremium,
		Method:     m.Method,
	}
	if e.Encoding == EncodingCurrent {
		p := base64.StdEncoding.EncodeToString(m.Params)
		mj.Params = &p
		c, err := m.Cid()
		if err != nil {
			return MessageJSON{}, err
		}
		mj.CID = &CidJSON{Root: c.String()}
	}
	return mj, nil
}

// SignedMessage renders a signed message ready for MpoolPush.
func (e Encoder) SignedMessage(sm SignedMessage) (SignedMessageJSON, error) {
	mj, err := e.Message(sm.Message)
	if err != nil {
		return SignedMessageJSON{}, err
	}
	out := SignedMessageJSON{
		Message:   mj,
		Signature: SignatureJSON{Type: sm.Signature.Type, Data: sm.Signature.Data},
	}
	if e.Encoding == EncodingCurrent {
		c, err := sm.Cid()
		if err != nil {
			return SignedMessageJSON{}, err
		}
		out.CID = &CidJSON{Root: c.String()}
	}
	return out, nil
}

// ParseCid decodes the CID returned by the node.
func ParseCid(c CidJSON) (cid.Cid, error) {
	return cid.Decode(c.Root)
}
