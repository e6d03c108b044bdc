package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/filecoin-faucet/internal/dispatch"
	"github.com/imrishuroy/filecoin-faucet/internal/faucet"
	"github.com/imrishuroy/filecoin-faucet/internal/filecoin"
	"github.com/imrishuroy/filecoin-faucet/internal/ledger"
	"github.com/imrishuroy/filecoin-faucet/internal/logging"
	"github.com/imrishuroy/filecoin-faucet/internal/network"
)

type fakeService struct {
	outcome    faucet.Outcome
	err        error
	gotNetwork string
	gotAddress string
	gotLimit   int
	entries    []faucet.HistoryEntry
}

func (f *fakeService) Drip(ctx context.Context, networkID, address string) (faucet.Outcome, error) {
	f.gotNetwork, f.gotAddress = networkID, address
	return f.outcome, f.err
}

func (f *fakeService) History(ctx context.Context, networkID, address string, limit int) ([]faucet.HistoryEntry, error) {
	f.gotNetwork, f.gotAddress, f.gotLimit = networkID, address, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeService) Info(ctx context.Context, networkID, address string) (faucet.Info, error) {
	f.gotNetwork, f.gotAddress = networkID, address
	if f.err != nil {
		return faucet.Info{}, f.err
	}
	return faucet.Info{NetworkID: networkID, Unit: "tFIL", DripAmount: "1", CooldownSeconds: 600}, nil
}

func newRouter(svc FaucetService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterFaucetRoutes(r, svc, logging.Discard())
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDrip_Submitted(t *testing.T) {
	svc := &fakeService{outcome: faucet.Outcome{
		Status:      faucet.StatusSubmitted,
		NetworkID:   "calibnet",
		Recipient:   "t1abc",
		Tx:          ledger.TransactionRecord{TxCID: "bafy123", Amount: "1000000000000000000"},
		ExplorerURL: "https://beryx.io/fil/calibration/txs/bafy123",
	}}
	w := do(newRouter(svc), http.MethodPost, "/faucet/calibration/drip", `{"address":"t1abc"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["tx_cid"] != "bafy123" || body["explorer_url"] != "https://beryx.io/fil/calibration/txs/bafy123" {
		t.Fatalf("unexpected body %v", body)
	}
	if svc.gotNetwork != "calibration" || svc.gotAddress != "t1abc" {
		t.Fatalf("unexpected call %s/%s", svc.gotNetwork, svc.gotAddress)
	}
}

func TestDrip_RateLimited(t *testing.T) {
	svc := &fakeService{outcome: faucet.Outcome{
		Status:     faucet.StatusRateLimited,
		RetryAfter: 540 * time.Second,
		Reason:     "cooldown",
	}}
	w := do(newRouter(svc), http.MethodPost, "/faucet/calibnet/drip", `{"address":"t1abc"}`)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") != "540" {
		t.Fatalf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
	}
	var body struct {
		RetryAfter int64 `json:"retry_after"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.RetryAfter != 540 {
		t.Fatalf("expected retry_after 540, got %d", body.RetryAfter)
	}
}

func TestDrip_ErrorMapping(t *testing.T) {
	legacy := filecoin.Encoder{Encoding: filecoin.EncodingLegacy, Network: filecoin.Testnet}
	_, legacyErr := legacy.ParseRecipient("0xd388ab098ed3e84c0d808776440b48f685198498")
	if legacyErr == nil {
		t.Fatal("expected legacy encoding to reject a 0x recipient")
	}

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid address", err: fmt.Errorf("%w: Not a valid Testnet address", network.ErrInvalidAddress), want: http.StatusBadRequest},
		{name: "delegated recipient under legacy encoding", err: legacyErr, want: http.StatusBadRequest},
		{name: "unknown network", err: network.ErrUnknownNetwork, want: http.StatusNotFound},
		{name: "ledger unavailable", err: fmt.Errorf("%w: throttled", ledger.ErrUnavailable), want: http.StatusServiceUnavailable},
		{name: "dispatch transient", err: &dispatch.Error{Kind: dispatch.Transient, Op: "push", Err: errors.New("x")}, want: http.StatusServiceUnavailable},
		{name: "dispatch fatal", err: &dispatch.Error{Kind: dispatch.Fatal, Op: "sign", Err: errors.New("x")}, want: http.StatusInternalServerError},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(newRouter(&fakeService{err: tc.err}), http.MethodPost, "/faucet/calibnet/drip", `{"address":"t1abc"}`)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestDrip_RejectsBadBody(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc)

	for _, body := range []string{`{`, `{}`, `{"address":"bogus"}`} {
		w := do(r, http.MethodPost, "/faucet/calibnet/drip", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, w.Code)
		}
	}
	if svc.gotAddress != "" {
		t.Fatal("service must not be called for invalid bodies")
	}
}

func TestHistory(t *testing.T) {
	svc := &fakeService{entries: []faucet.HistoryEntry{{TxCID: "bafy2"}, {TxCID: "bafy1"}}}
	w := do(newRouter(svc), http.MethodGet, "/faucet/calibnet/history?address=t1abc&limit=2", "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Transactions []faucet.HistoryEntry `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Transactions) != 2 || body.Transactions[0].TxCID != "bafy2" {
		t.Fatalf("unexpected transactions %+v", body.Transactions)
	}
	if svc.gotLimit != 2 {
		t.Fatalf("expected limit 2, got %d", svc.gotLimit)
	}

	w = do(newRouter(&fakeService{}), http.MethodGet, "/faucet/calibnet/history", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without address, got %d", w.Code)
	}
}

func TestInfo(t *testing.T) {
	w := do(newRouter(&fakeService{}), http.MethodGet, "/faucet/calibnet", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"unit":"tFIL"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	w = do(newRouter(&fakeService{err: network.ErrUnknownNetwork}), http.MethodGet, "/faucet/dogecoin", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestInfo_TargetAddress(t *testing.T) {
	svc := &fakeService{}
	w := do(newRouter(svc), http.MethodGet, "/faucet/calibnet?address=t1abc", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.gotAddress != "t1abc" {
		t.Fatalf("expected address to reach the service, got %q", svc.gotAddress)
	}

	svc = &fakeService{}
	w = do(newRouter(svc), http.MethodGet, "/faucet/calibnet?address=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed address, got %d", w.Code)
	}
	if svc.gotNetwork != "" {
		t.Fatal("service must not be called for a malformed address")
	}
}
