package filecoin

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/filecoin-project/go-address"
)

// ErrInvalidAddress marks a recipient that cannot receive funds on a network.
var ErrInvalidAddress = errors.New("invalid address")

// eamActorID is the Ethereum address manager namespace for delegated addresses.
const eamActorID = 10

// Network selects which address prefix a Filecoin network uses.
type Network int

const (
	Mainnet Network = iota + 1
	Testnet
)

// Prefix returns the address prefix, "f" or "t".
func (n Network) Prefix() string {
	if n == Mainnet {
		return address.MainnetPrefix
	}
	return address.TestnetPrefix
}

// String names the network as users read it in error messages.
func (n Network) String() string {
	if n == Mainnet {
		return "Mainnet"
	}
	return "Testnet"
}

// ParseAddress parses a recipient under the rules of network n. Native
// addresses must carry the network prefix. 0x Ethereum addresses are mapped
// to their f410 delegated form and are valid on any network.
func ParseAddress(raw string, n Network) (address.Address, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "0x") {
		return parseEthAddress(raw)
	}
	if !strings.HasPrefix(raw, n.Prefix()) {
		return address.Undef, fmt.Errorf("%w: Not a valid %s address", ErrInvalidAddress, n)
	}
	addr, err := address.NewFromString(raw)
	if err != nil {
		return address.Undef, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr, nil
}

func parseEthAddress(raw string) (address.Address, error) {
	if len(raw) != 42 {
		return address.Undef, fmt.Errorf("%w: Invalid address length", ErrInvalidAddress)
	}
	b, err := hex.DecodeString(raw[2:])
	if err != nil {
		return address.Undef, fmt.Errorf("%w: Invalid characters in address", ErrInvalidAddress)
	}
	addr, err := address.NewDelegatedAddress(eamActorID, b)
	if err != nil {
		return address.Undef, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return addr, nil
}

// FormatAddress renders addr with the prefix of network n.
func FormatAddress(addr address.Address, n Network) string {
	if addr == address.Undef {
		return ""
	}
	return n.Prefix() + addr.String()[1:]
}
