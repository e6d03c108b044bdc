package filecoin

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// attoPerFIL is the FIL token precision.
const attoPerFIL = 18

// TokenAmount is a non-negative amount of attoFIL.
type TokenAmount struct {
	atto *big.Int
}

// ParseAtto parses a base-10 attoFIL string. Empty means zero.
func ParseAtto(s string) (TokenAmount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TokenAmount{}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return TokenAmount{}, fmt.Errorf("invalid attoFIL amount %q", s)
	}
	if v.Sign() < 0 {
		return TokenAmount{}, fmt.Errorf("negative amount %q", s)
	}
	return TokenAmount{atto: v}, nil
}

// ParseFIL parses a decimal FIL string such as "0.01".
func ParseFIL(s string) (TokenAmount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return TokenAmount{}, fmt.Errorf("invalid FIL amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return TokenAmount{}, fmt.Errorf("negative amount %q", s)
	}
	atto := d.Shift(attoPerFIL)
	if !atto.IsInteger() {
		return TokenAmount{}, fmt.Errorf("FIL amount %q is finer than attoFIL precision", s)
	}
	return TokenAmount{atto: atto.BigInt()}, nil
}

// MustParseFIL is ParseFIL for constants.
func MustParseFIL(s string) TokenAmount {
	v, err := ParseFIL(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Atto returns a copy of the attoFIL value.
func (t TokenAmount) Atto() *big.Int {
	if t.atto == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(t.atto)
}

// IsZero reports whether the amount is zero.
func (t TokenAmount) IsZero() bool { return t.atto == nil || t.atto.Sign() == 0 }

// Cmp compares two amounts.
func (t TokenAmount) Cmp(o TokenAmount) int { return t.Atto().Cmp(o.Atto()) }

// String renders attoFIL in base 10, the Lotus JSON form.
func (t TokenAmount) String() string { return t.Atto().String() }

// FIL renders the amount in whole FIL, trimmed of trailing zeros.
func (t TokenAmount) FIL() string {
	return decimal.NewFromBigInt(t.Atto(), -attoPerFIL).String()
}

// Format renders the amount with two decimals and a unit, "1.00 tFIL".
func (t TokenAmount) Format(unit string) string {
	return decimal.NewFromBigInt(t.Atto(), -attoPerFIL).StringFixed(2) + " " + unit
}

// cborBytes is the Filecoin big integer serialisation: empty for zero,
// otherwise a sign byte followed by the big-endian magnitude.
func (t TokenAmount) cborBytes() []byte {
	if t.IsZero() {
		return []byte{}
	}
	return append([]byte{0x00}, t.atto.Bytes()...)
}

// MarshalJSON encodes the amount as a quoted attoFIL string.
func (t TokenAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a quoted attoFIL string.
func (t *TokenAmount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("token amount: %w", err)
	}
	v, err := ParseAtto(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}
