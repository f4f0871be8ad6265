package nodeclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/withobsrvr/algorand-ledger-core/internal/chain"
	"github.com/withobsrvr/algorand-ledger-core/internal/retry"
	"go.uber.org/zap"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return New(srv.URL, "token", zap.NewNop(), WithBackoff(retry.Backoff{Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}))
}

func TestFetchBlockAcceptsRawContentType(t *testing.T) {
	want := []byte{0xc1, 0xc1}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/block/5" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("raw") != "1" {
			t.Errorf("raw query missing")
		}
		w.Header().Set("Content-Type", "application/x-algorand-block-v1")
		w.Write(want)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	got, err := c.FetchBlock(context.Background(), 5)
	if err != nil {
		t.Fatalf("FetchBlock: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFetchBlockRejectsJSONContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.FetchBlock(context.Background(), 5)
	if !errors.Is(err, chain.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestFetchBlockRetriesTransportErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/x-algorand-block-v1")
		w.Write([]byte{0xc1})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.FetchBlock(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchBlock: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestFetchBlockDoesNotRetryConfigError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.FetchBlock(context.Background(), 1)
	if !errors.Is(err, chain.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (config errors must not retry)", attempts)
	}
}

func TestWaitForBlockAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status/wait-for-block-after/10" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(waitResponse{LastRound: 11})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	got, err := c.WaitForBlockAfter(context.Background(), 10)
	if err != nil {
		t.Fatalf("WaitForBlockAfter: %v", err)
	}
	if got != 11 {
		t.Fatalf("got %d, want 11", got)
	}
}

func TestFetchAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("round") != "100" {
			t.Errorf("round query = %q", r.URL.Query().Get("round"))
		}
		json.NewEncoder(w).Encode(Account{
			Address: "ALICE", Round: 100, Amount: 989000,
			Assets: []AccountAsset{{AssetID: 1, Amount: 5}},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	acct, err := c.FetchAccount(context.Background(), "ALICE", 100)
	if err != nil {
		t.Fatalf("FetchAccount: %v", err)
	}
	if acct.Amount != 989000 {
		t.Fatalf("Amount = %d, want 989000", acct.Amount)
	}
	if len(acct.Assets) != 1 || acct.Assets[0].AssetID != 1 {
		t.Fatalf("Assets = %+v", acct.Assets)
	}
}

func TestFetchBlockCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "token", zap.NewNop(),
		WithBackoff(retry.Backoff{Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 1}))
	c.circuitBreaker = retry.NewCircuitBreaker(1, time.Hour)

	if _, err := c.FetchBlock(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	_, err := c.FetchBlock(context.Background(), 1)
	if !errors.Is(err, chain.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport (circuit open)", err)
	}
}
