package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchBatchRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts/batch" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := batchResponse{}
		for _, h := range req.Handles {
			resp.Accounts = append(resp.Accounts, struct {
				Handle string `json:"handle"`
				Data   string `json:"data"`
			}{Handle: h, Data: base64.StdEncoding.EncodeToString([]byte("payload-" + h))})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	out, err := p.FetchBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 accounts got %d", len(out))
	}
	if out[1].Handle != "b" || string(out[1].Data) != "payload-b" {
		t.Fatalf("unexpected account data %+v", out[1])
	}
}

func TestFetchBatchLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(batchResponse{})
	}))
	defer srv.Close()

	p := NewHTTPProvider(srv.URL)
	if _, err := p.FetchBatch(context.Background(), []string{"a"}); err == nil {
		t.Fatalf("expected error on short response")
	}
}

func TestDecodeAccount(t *testing.T) {
	raw := []byte(`{
		"equity": 12500.5,
		"positions": [{"marketIndex": 0, "base": -3.2}],
		"openOrders": [{"marketIndex": 0, "side": "sell", "priceLots": 10015, "sizeLots": 1000}],
		"openOrdersHandles": ["oo-1"]
	}`)
	p := &HTTPProvider{}
	snap, err := p.DecodeAccount(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Equity != 12500.5 {
		t.Fatalf("unexpected equity %f", snap.Equity)
	}
	if snap.BasePosition(0) != -3.2 {
		t.Fatalf("unexpected position %f", snap.BasePosition(0))
	}
	orders := snap.OpenOrdersFor(0)
	if len(orders) != 1 || orders[0].PriceLots != 10015 {
		t.Fatalf("unexpected open orders %+v", orders)
	}
	if len(snap.OpenOrdersHandles) != 1 || snap.OpenOrdersHandles[0] != "oo-1" {
		t.Fatalf("unexpected handles %+v", snap.OpenOrdersHandles)
	}
}

func TestDecodeCache(t *testing.T) {
	raw := []byte(`{"slots": [{"price": 150.25, "lastUpdate": 1700000000000}, {"price": 0, "lastUpdate": 0}]}`)
	p := &HTTPProvider{}
	cache, err := p.DecodeCache(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price, ok := cache.Price(0); !ok || price != 150.25 {
		t.Fatalf("unexpected slot 0: %f (ok=%v)", price, ok)
	}
	if _, ok := cache.Price(1); ok {
		t.Fatalf("zero price slot should be missing")
	}
}

func TestDecodeOrderbookAndOpenOrders(t *testing.T) {
	p := &HTTPProvider{}
	levels, err := p.DecodeOrderbook([]byte(`{"levels": [{"priceLots": 100, "sizeLots": 5}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || levels[0].PriceLots != 100 {
		t.Fatalf("unexpected levels %+v", levels)
	}

	chunk, err := p.DecodeOpenOrders([]byte(`{"marketIndex": 3, "orders": [{"side": "buy", "priceLots": 99, "sizeLots": 10}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunk.MarketIndex != 3 || len(chunk.Orders) != 1 {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	// 订单继承 chunk 的市场 index
	if chunk.Orders[0].MarketIndex != 3 {
		t.Fatalf("order should inherit market index, got %d", chunk.Orders[0].MarketIndex)
	}
}
