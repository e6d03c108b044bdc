package filecoin

import (
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
)

// MethodSend is the plain value transfer method number.
const MethodSend uint64 = 0

// Message is an unsigned Filecoin message.
type Message struct {
	Version    uint64
	To         address.Address
	From       address.Address
	Nonce      uint64
	Value      TokenAmount
	GasLimit   int64
	GasFeeCap  TokenAmount
	GasPremium TokenAmount
	Method     uint64
	Params     []byte
}

// NewTransfer builds a value transfer with gas left for estimation.
func NewTransfer(from, to address.Address, value TokenAmount) Message {
	return Message{
		To:     to,
		From:   from,
		Value:  value,
		Method: MethodSend,
	}
}

type messageTuple struct {
	_          struct{} `cbor:",toarray"`
	Version    uint64
	To         []byte
	From       []byte
	Nonce      uint64
	Value      []byte
	GasLimit   int64
	GasFeeCap  []byte
	GasPremium []byte
	Method     uint64
	Params     []byte
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{NilContainers: cbor.NilContainerAsEmpty}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func (m Message) tuple() messageTuple {
	return messageTuple{
		Version:    m.Version,
		To:         m.To.Bytes(),
		From:       m.From.Bytes(),
		Nonce:      m.Nonce,
		Value:      m.Value.cborBytes(),
		GasLimit:   m.GasLimit,
		GasFeeCap:  m.GasFeeCap.cborBytes(),
		GasPremium: m.GasPremium.cborBytes(),
		Method:     m.Method,
		Params:     m.Params,
	}
}

// MarshalCBOR returns the canonical tuple encoding of the message.
func (m Message) MarshalCBOR() ([]byte, error) {
	b, err := encMode.Marshal(m.tuple())
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}

// Cid returns the content identifier of the unsigned message.
func (m Message) Cid() (cid.Cid, error) {
	b, err := m.MarshalCBOR()
	if err != nil {
		return cid.Undef, err
	}
	return blockCid(b)
}

// blockCid is the Filecoin block CID: v1, dag-cbor, blake2b-256.
func blockCid(data []byte) (cid.Cid, error) {
	sum := blake2b.Sum256(data)
	hash, err := mh.Encode(sum[:], mh.BLAKE2B_MIN+31)
	if err != nil {
		return cid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return cid.NewCidV1(cid.DagCBOR, hash), nil
}

// SigType identifies a signature scheme.
type SigType byte

const (
	SigTypeSecp256k1 SigType = 1
	SigTypeBLS       SigType = 2
)

func (t SigType) String() string {
	switch t {
	case SigTypeSecp256k1:
		return "secp256k1"
	case SigTypeBLS:
		return "bls"
	default:
		return fmt.Sprintf("sigtype(%d)", byte(t))
	}
}

// Signature is a typed signature over a message CID.
type Signature struct {
	Type SigType
	Data []byte
}

func (s Signature) bytes() []byte {
	return append([]byte{byte(s.Type)}, s.Data...)
}

// SignedMessage pairs a message with its signature.
type SignedMessage struct {
	Message   Message
	Signature Signature
}

type signedTuple struct {
	_         struct{} `cbor:",toarray"`
	Message   messageTuple
	Signature []byte
}

// MarshalCBOR returns the tuple encoding of message and signature.
func (sm SignedMessage) MarshalCBOR() ([]byte, error) {
	b, err := encMode.Marshal(signedTuple{Message: sm.Message.tuple(), Signature: sm.Signature.bytes()})
	if err != nil {
		return nil, fmt.Errorf("encode signed message: %w", err)
	}
	return b, nil
}

// Cid returns the identifier the chain reports for the message. BLS
// messages are identified by their unsigned form.
func (sm SignedMessage) Cid() (cid.Cid, error) {
	if sm.Signature.Type == SigTypeBLS {
		return sm.Message.Cid()
	}
	b, err := sm.MarshalCBOR()
	if err != nil {
		return cid.Undef, err
	}
	return blockCid(b)
}
