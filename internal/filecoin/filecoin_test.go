package filecoin

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/filecoin-project/go-address"
	"golang.org/x/crypto/blake2b"
)

const (
	testKeyHex      = "7b2254797065223a312c22507269766174654b6579223a2272744f75762f386664316d72535570313970487064645479392b67756e7376656a786e317950356b6869493d227d"
	mainnetSecpAddr = "f1alg2sxw32ns3ech2w7r3dmp2gl2fputkl7x7jta"
	testnetF410Addr = "t410f2oekwcmo2pueydmaq53eic2i62crtbeyuzx2gmy"
	ethAddr         = "0xd388ab098ed3e84c0d808776440b48f685198498"
)

func TestParseAddress(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		network Network
		want    string
		errText string
	}{
		{name: "mainnet secp", raw: mainnetSecpAddr, network: Mainnet, want: mainnetSecpAddr},
		{name: "testnet delegated", raw: testnetF410Addr, network: Testnet, want: testnetF410Addr},
		{name: "eth on testnet", raw: ethAddr, network: Testnet, want: testnetF410Addr},
		{name: "eth on mainnet", raw: ethAddr, network: Mainnet, want: "f410f2oekwcmo2pueydmaq53eic2i62crtbeyuzx2gmy"},
		{name: "mainnet addr on testnet", raw: mainnetSecpAddr, network: Testnet, errText: "Not a valid Testnet address"},
		{name: "testnet addr on mainnet", raw: testnetF410Addr, network: Mainnet, errText: "Not a valid Mainnet address"},
		{name: "eth too short", raw: "0xd3", network: Mainnet, errText: "Invalid address length"},
		{name: "eth too long", raw: ethAddr + "12", network: Mainnet, errText: "Invalid address length"},
		{name: "eth bad hex", raw: "0xz388ab098ed3e84c0d808776440b48f685198498", network: Mainnet, errText: "Invalid characters in address"},
		{name: "empty", raw: "", network: Mainnet, errText: "Not a valid Mainnet address"},
		{name: "bad checksum", raw: "f1alg2sxw32ns3ech2w7r3dmp2gl2fputkl7x7jtb", network: Mainnet, errText: "invalid address"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddress(tc.raw, tc.network)
			if tc.errText != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tc.errText)
				}
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("expected ErrInvalidAddress, got %v", err)
				}
				if !strings.Contains(err.Error(), tc.errText) {
					t.Fatalf("expected %q in %q", tc.errText, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := FormatAddress(addr, tc.network); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTokenAmount(t *testing.T) {
	one, err := ParseFIL("1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if one.String() != "1000000000000000000" {
		t.Fatalf("unexpected atto value %s", one.String())
	}
	if one.Format("tFIL") != "1.00 tFIL" {
		t.Fatalf("unexpected format %q", one.Format("tFIL"))
	}

	cent := MustParseFIL("0.01")
	if cent.String() != "10000000000000000" || cent.FIL() != "0.01" {
		t.Fatalf("unexpected amount %s / %s", cent.String(), cent.FIL())
	}
	if cent.Cmp(one) >= 0 {
		t.Fatal("expected 0.01 < 1")
	}

	if _, err := ParseFIL("0.0000000000000000001"); err == nil {
		t.Fatal("expected error for sub-atto precision")
	}
	if _, err := ParseFIL("-1"); err == nil {
		t.Fatal("expected error for negative amount")
	}

	b, err := json.Marshal(cent)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `"10000000000000000"` {
		t.Fatalf("unexpected json %s", b)
	}
	var back TokenAmount
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.Cmp(cent) != 0 {
		t.Fatalf("expected %s, got %s", cent, back)
	}

	if got := (TokenAmount{}).cborBytes(); len(got) != 0 {
		t.Fatalf("expected empty bytes for zero, got %x", got)
	}
	if got := one.cborBytes(); got[0] != 0x00 || len(got) != 9 {
		t.Fatalf("unexpected big int bytes %x", got)
	}
}

func TestParseKeyInfo(t *testing.T) {
	ki, err := ParseKeyInfo(testKeyHex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ki.Type != SigTypeSecp256k1 {
		t.Fatalf("expected secp256k1, got %s", ki.Type)
	}
	if len(ki.PrivateKey) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(ki.PrivateKey))
	}

	named := hex.EncodeToString([]byte(`{"Type":"secp256k1","PrivateKey":"rtOuv/8fd1mrSUp19pHpddTy9+gunsvejxn1yP5khiI="}`))
	ki2, err := ParseKeyInfo(named)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hex.EncodeToString(ki2.PrivateKey) != hex.EncodeToString(ki.PrivateKey) {
		t.Fatal("expected string and numeric types to decode the same key")
	}

	if _, err := ParseKeyInfo("not-hex"); !errors.Is(err, ErrMalformedKey) {
		t.Fatalf("expected ErrMalformedKey for non-hex key, got %v", err)
	}
}

func TestParseKeyInfo_ErrorsOmitKeyMaterial(t *testing.T) {
	cases := map[string]string{
		"bad hex byte": testKeyHex[:20] + "Q" + testKeyHex[21:],
		"bad json":     hex.EncodeToString([]byte(`{"Type":1,"PrivateKey":Qrt}`)),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKeyInfo(encoded)
			if !errors.Is(err, ErrMalformedKey) {
				t.Fatalf("expected ErrMalformedKey, got %v", err)
			}
			if strings.Contains(err.Error(), "Q") {
				t.Fatalf("error echoes key material: %v", err)
			}
		})
	}
}

func TestNewKeySigner_RejectsBLS(t *testing.T) {
	bls := hex.EncodeToString([]byte(`{"Type":2,"PrivateKey":"AAAA"}`))
	_, err := NewKeySigner(bls, TokenAmount{})
	if !errors.Is(err, ErrUnsupportedKey) {
		t.Fatalf("expected ErrUnsupportedKey, got %v", err)
	}
}

func testSigner(t *testing.T, limit TokenAmount) *KeySigner {
	t.Helper()
	s, err := NewKeySigner(testKeyHex, limit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func testTransfer(t *testing.T, from address.Address, value TokenAmount) Message {
	t.Helper()
	to, err := ParseAddress(testnetF410Addr, Testnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := NewTransfer(from, to, value)
	m.Nonce = 7
	m.GasLimit = 1_500_000
	m.GasFeeCap = MustParseFIL("0.000000001")
	m.GasPremium = MustParseFIL("0.0000000001")
	return m
}

func TestKeySigner_Sign(t *testing.T) {
	s := testSigner(t, MustParseFIL("1"))
	if s.Address().Protocol() != address.SECP256K1 {
		t.Fatalf("expected secp256k1 address, got protocol %d", s.Address().Protocol())
	}
	if strings.Contains(s.String(), testKeyHex) {
		t.Fatal("signer string leaks key material")
	}

	msg := testTransfer(t, s.Address(), MustParseFIL("1"))
	sm, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sm.Signature.Type != SigTypeSecp256k1 || len(sm.Signature.Data) != 65 {
		t.Fatalf("unexpected signature %s/%d", sm.Signature.Type, len(sm.Signature.Data))
	}

	c, err := msg.Cid()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	digest := blake2b.Sum256(c.Bytes())
	pub, err := crypto.SigToPub(digest[:], sm.Signature.Data)
	if err != nil {
		t.Fatalf("recover public key: %v", err)
	}
	recovered, err := address.NewSecp256k1Address(crypto.FromECDSAPub(pub))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recovered != s.Address() {
		t.Fatalf("signature recovers %s, expected %s", recovered, s.Address())
	}

	smCid, err := sm.Cid()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(smCid.String(), "bafy2bzace") {
		t.Fatalf("unexpected cid %s", smCid)
	}
	if smCid.Equals(c) {
		t.Fatal("secp signed message cid must differ from unsigned cid")
	}
}

func TestKeySigner_Guards(t *testing.T) {
	s := testSigner(t, MustParseFIL("0.01"))

	_, err := s.Sign(testTransfer(t, s.Address(), MustParseFIL("1")))
	if !errors.Is(err, ErrAmountExceeded) {
		t.Fatalf("expected ErrAmountExceeded, got %v", err)
	}

	other, err := ParseAddress(mainnetSecpAddr, Mainnet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Sign(testTransfer(t, other, MustParseFIL("0.01"))); err == nil {
		t.Fatal("expected error for foreign sender")
	}
}

func TestEncoder(t *testing.T) {
	s := testSigner(t, TokenAmount{})
	msg := testTransfer(t, s.Address(), MustParseFIL("1"))
	sm, err := s.Sign(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	legacy := Encoder{Encoding: EncodingLegacy, Network: Testnet}
	for _, raw := range []string{testnetF410Addr, ethAddr} {
		_, err := legacy.ParseRecipient(raw)
		if !errors.Is(err, ErrEncodingMismatch) || !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrEncodingMismatch and ErrInvalidAddress for %s, got %v", raw, err)
		}
	}
	if _, err := legacy.SignedMessage(sm); !errors.Is(err, ErrEncodingMismatch) {
		t.Fatalf("expected ErrEncodingMismatch, got %v", err)
	}

	current := Encoder{Encoding: EncodingCurrent, Network: Testnet}
	if _, err := current.ParseRecipient(mainnetSecpAddr); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	out, err := current.SignedMessage(sm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := string(b)
	for _, want := range []string{`"Params":""`, `"To":"` + testnetF410Addr + `"`, `"From":"t1`, `"Value":"1000000000000000000"`, `"Type":1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	smCid, _ := sm.Cid()
	if out.CID == nil || out.CID.Root != smCid.String() {
		t.Fatalf("expected signed cid %s, got %+v", smCid, out.CID)
	}

	plain := NewTransfer(s.Address(), s.Address(), MustParseFIL("1"))
	lj, err := legacy.Message(plain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ = json.Marshal(lj)
	if strings.Contains(string(b), "Params") || strings.Contains(string(b), "CID") {
		t.Fatalf("legacy encoding must omit Params and CID: %s", b)
	}

	back, err := lj.Message()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back.To != plain.To || back.Value.Cmp(plain.Value) != 0 {
		t.Fatalf("unexpected decoded message %+v", back)
	}
}

func TestParseEncoding(t *testing.T) {
	if e, err := ParseEncoding("Legacy"); err != nil || e != EncodingLegacy {
		t.Fatalf("unexpected result %v %v", e, err)
	}
	if e, err := ParseEncoding("current"); err != nil || e != EncodingCurrent {
		t.Fatalf("unexpected result %v %v", e, err)
	}
	if _, err := ParseEncoding("v3"); err == nil {
		t.Fatal("expected error for unknown encoding")
	}
}
