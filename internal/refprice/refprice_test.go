package refprice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/api/v1/orderbook" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]interface{}{
			"bids":      [][]float64{{99.9, 5}, {99.8, 10}},
			"asks":      [][]float64{{100.1, 4}, {100.2, 8}},
			"timestamp": time.Now().UnixMilli(),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestMid(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	c := NewClient(srv.URL)
	mid, err := c.Mid(context.Background(), "binance", "btc_usdt")
	if err != nil {
		t.Fatalf("mid: %v", err)
	}
	if mid != 100.0 {
		t.Fatalf("mid = %v, want 100", mid)
	}
}

func TestBookCached(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := c.OrderBook(ctx, "binance", "btc_usdt"); err != nil {
			t.Fatalf("book: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1 (cached)", hits.Load())
	}
}

func TestBridgeRateStable(t *testing.T) {
	var hits atomic.Int64
	srv := newTestServer(t, &hits)
	defer srv.Close()

	c := NewClient(srv.URL)
	for _, asset := range []string{"", "USDT", "usd"} {
		rate, err := c.BridgeRate(context.Background(), "binance", asset)
		if err != nil || rate != 1 {
			t.Fatalf("bridge rate for %q = %v err=%v, want 1", asset, rate, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("stable assets should not hit the network, hits = %d", hits.Load())
	}

	// 非稳定资产走参考价中间价
	rate, err := c.BridgeRate(context.Background(), "binance", "eth")
	if err != nil || rate != 100.0 {
		t.Fatalf("bridge rate for eth = %v err=%v, want 100", rate, err)
	}
}

func TestServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Mid(context.Background(), "binance", "btc_usdt"); err == nil {
		t.Fatalf("expected error on 502 response")
	}
}
