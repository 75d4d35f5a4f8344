package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"perp-quoter-go/market"
)

// StateProvider 提供账户状态的批量拉取与解码。
// 状态同步循环只依赖这四个方法，不关心底层是链上 RPC 还是旁路服务。
type StateProvider interface {
	FetchBatch(ctx context.Context, handles []string) ([]AccountData, error)
	DecodeAccount(data []byte) (*market.AccountSnapshot, error)
	DecodeCache(data []byte) (*market.PriceCache, error)
	DecodeOrderbook(data []byte) ([]market.BookLevel, error)
	DecodeOpenOrders(data []byte) (*market.OpenOrdersChunk, error)
}

// HTTPProvider 通过旁路状态服务拉取账户快照，payload 为 base64 包装的 JSON。
type HTTPProvider struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type batchRequest struct {
	Handles []string `json:"handles"`
}

type batchResponse struct {
	Accounts []struct {
		Handle string `json:"handle"`
		Data   string `json:"data"` // base64
	} `json:"accounts"`
}

// FetchBatch 一次请求拉取全部账户，返回顺序与入参一致。
func (p *HTTPProvider) FetchBatch(ctx context.Context, handles []string) ([]AccountData, error) {
	body, err := json.Marshal(batchRequest{Handles: handles})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/v1/accounts/batch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch batch: unexpected status %d", resp.StatusCode)
	}

	var parsed batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	if len(parsed.Accounts) != len(handles) {
		return nil, fmt.Errorf("fetch batch: want %d accounts, got %d", len(handles), len(parsed.Accounts))
	}

	out := make([]AccountData, 0, len(parsed.Accounts))
	for _, a := range parsed.Accounts {
		raw, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, fmt.Errorf("decode account %s payload: %w", a.Handle, err)
		}
		out = append(out, AccountData{Handle: a.Handle, Data: raw})
	}
	return out, nil
}

type accountPayload struct {
	Equity    float64 `json:"equity"`
	Positions []struct {
		MarketIndex int     `json:"marketIndex"`
		Base        float64 `json:"base"`
	} `json:"positions"`
	OpenOrders        []orderPayload `json:"openOrders"`
	OpenOrdersHandles []string       `json:"openOrdersHandles"`
}

type orderPayload struct {
	MarketIndex int    `json:"marketIndex"`
	Side        string `json:"side"`
	PriceLots   int64  `json:"priceLots"`
	SizeLots    int64  `json:"sizeLots"`
}

// DecodeAccount 解码账户主体：权益、仓位与挂单账户列表。
func (p *HTTPProvider) DecodeAccount(data []byte) (*market.AccountSnapshot, error) {
	var payload accountPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	snap := &market.AccountSnapshot{
		Equity:            payload.Equity,
		Positions:         make(map[int]float64, len(payload.Positions)),
		OpenOrdersHandles: payload.OpenOrdersHandles,
	}
	for _, pos := range payload.Positions {
		snap.Positions[pos.MarketIndex] = pos.Base
	}
	for _, o := range payload.OpenOrders {
		snap.OpenOrders = append(snap.OpenOrders, toOpenOrder(o))
	}
	return snap, nil
}

type cachePayload struct {
	Slots []struct {
		Price      float64 `json:"price"`
		LastUpdate int64   `json:"lastUpdate"` // unix 毫秒
	} `json:"slots"`
}

// DecodeCache 解码预言机价格缓存。
func (p *HTTPProvider) DecodeCache(data []byte) (*market.PriceCache, error) {
	var payload cachePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode price cache: %w", err)
	}
	cache := &market.PriceCache{Slots: make([]market.PriceSlot, 0, len(payload.Slots))}
	for _, s := range payload.Slots {
		cache.Slots = append(cache.Slots, market.PriceSlot{
			Price:      s.Price,
			LastUpdate: time.UnixMilli(s.LastUpdate),
		})
	}
	return cache, nil
}

type bookPayload struct {
	Levels []struct {
		PriceLots int64 `json:"priceLots"`
		SizeLots  int64 `json:"sizeLots"`
	} `json:"levels"`
}

// DecodeOrderbook 解码单边订单簿，档位按最优在前排序。
func (p *HTTPProvider) DecodeOrderbook(data []byte) ([]market.BookLevel, error) {
	var payload bookPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode orderbook: %w", err)
	}
	levels := make([]market.BookLevel, 0, len(payload.Levels))
	for _, lvl := range payload.Levels {
		levels = append(levels, market.BookLevel{PriceLots: lvl.PriceLots, SizeLots: lvl.SizeLots})
	}
	return levels, nil
}

type openOrdersPayload struct {
	MarketIndex int            `json:"marketIndex"`
	Orders      []orderPayload `json:"orders"`
}

// DecodeOpenOrders 解码单个 open-orders 账户。
func (p *HTTPProvider) DecodeOpenOrders(data []byte) (*market.OpenOrdersChunk, error) {
	var payload openOrdersPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode open orders: %w", err)
	}
	chunk := &market.OpenOrdersChunk{MarketIndex: payload.MarketIndex}
	for _, o := range payload.Orders {
		oo := toOpenOrder(o)
		oo.MarketIndex = payload.MarketIndex
		chunk.Orders = append(chunk.Orders, oo)
	}
	return chunk, nil
}

func toOpenOrder(o orderPayload) market.OpenOrder {
	side := market.SideBuy
	if o.Side == "sell" {
		side = market.SideSell
	}
	return market.OpenOrder{
		MarketIndex: o.MarketIndex,
		Side:        side,
		PriceLots:   o.PriceLots,
		SizeLots:    o.SizeLots,
	}
}
