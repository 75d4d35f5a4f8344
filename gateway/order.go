package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/quoter"
)

// OrderGateway 接收一个批次的订单动作并提交。
// 语义为 at-least-once；批次不保证原子落地，部分成功由下一周期的撤换逻辑收敛。
type OrderGateway interface {
	Submit(ctx context.Context, actions []quoter.Action, label string) (string, error)
}

type wireAction struct {
	Kind        string `json:"kind"`
	Market      string `json:"market"`
	MarketIndex int    `json:"marketIndex"`
	Side        string `json:"side,omitempty"`
	PriceLots   int64  `json:"priceLots,omitempty"`
	SizeLots    int64  `json:"sizeLots,omitempty"`
	TimeInForce string `json:"timeInForce,omitempty"`
	Seq         int64  `json:"seq,omitempty"`
}

type submitRequest struct {
	Label   string       `json:"label"`
	Signer  string       `json:"signer"`
	Actions []wireAction `json:"actions"`
}

type submitResponse struct {
	ID string `json:"id"`
}

// HTTPOrderGateway 把动作批次提交给签名/广播服务。
type HTTPOrderGateway struct {
	BaseURL    string
	Signer     string // 签名密钥句柄，由服务端解析
	HTTPClient *http.Client
	Limiter    RateLimiter
}

func NewHTTPOrderGateway(baseURL, signer string, limiter RateLimiter) *HTTPOrderGateway {
	return &HTTPOrderGateway{
		BaseURL:    baseURL,
		Signer:     signer,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Limiter:    limiter,
	}
}

func (g *HTTPOrderGateway) Submit(ctx context.Context, actions []quoter.Action, label string) (string, error) {
	if len(actions) == 0 {
		return "", nil
	}
	if g.Limiter != nil {
		g.Limiter.Wait()
	}
	req := submitRequest{Label: label, Signer: g.Signer, Actions: toWire(actions)}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit batch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("submit batch: unexpected status %d", resp.StatusCode)
	}
	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	return parsed.ID, nil
}

func toWire(actions []quoter.Action) []wireAction {
	out := make([]wireAction, 0, len(actions))
	for _, a := range actions {
		out = append(out, wireAction{
			Kind:        a.Kind.String(),
			Market:      a.Market,
			MarketIndex: a.MarketIndex,
			Side:        string(a.Side),
			PriceLots:   a.PriceLots,
			SizeLots:    a.SizeLots,
			TimeInForce: a.TimeInForce,
			Seq:         a.Seq,
		})
	}
	return out
}

// DryRunGateway 只记录动作不真正提交，用于 -dryRun 与测试。
type DryRunGateway struct {
	Log *logger.Logger
	seq atomic.Int64
}

func (g *DryRunGateway) Submit(_ context.Context, actions []quoter.Action, label string) (string, error) {
	id := fmt.Sprintf("dry-%d", g.seq.Add(1))
	for _, a := range actions {
		g.Log.Event("submit_dry_run", map[string]interface{}{
			"id":         id,
			"label":      label,
			"kind":       a.Kind.String(),
			"market":     a.Market,
			"side":       string(a.Side),
			"price_lots": a.PriceLots,
			"size_lots":  a.SizeLots,
			"tif":        a.TimeInForce,
			"seq":        a.Seq,
		})
	}
	return id, nil
}
