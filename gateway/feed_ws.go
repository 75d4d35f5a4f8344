package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
	"perp-quoter-go/metrics"
)

// Feed 是参考交易所的归一化行情流。
// 返回的通道是惰性无限序列，正常情况下只在 ctx 取消后关闭；
// 断线重连在实现内部完成，消费方只会看到更新间隙。
type Feed interface {
	Subscribe(ctx context.Context, symbols []string, kinds []EventKind) (<-chan Event, error)
}

// WSFeed 通过 websocket combined stream 消费参考行情。
type WSFeed struct {
	Endpoint      string
	Dialer        *websocket.Dialer
	Log           *logger.Logger
	RetryInterval time.Duration // 重连前的固定等待，0 取 5s
	ReadTimeout   time.Duration // 0 取 30s
}

func NewWSFeed(endpoint string, log *logger.Logger) *WSFeed {
	return &WSFeed{
		Endpoint: endpoint,
		Dialer:   websocket.DefaultDialer,
		Log:      log,
	}
}

type subscribeFrame struct {
	Op       string   `json:"op"`
	Symbols  []string `json:"symbols"`
	Channels []string `json:"channels"`
}

// Subscribe 打开长连接订阅并返回事件通道。连接错误在内部以固定间隔重连。
func (f *WSFeed) Subscribe(ctx context.Context, symbols []string, kinds []EventKind) (<-chan Event, error) {
	if f.Endpoint == "" {
		return nil, fmt.Errorf("feed endpoint required")
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol required")
	}
	channels := make([]string, 0, len(kinds))
	for _, k := range kinds {
		channels = append(channels, string(k))
	}

	events := make(chan Event, 256)
	go f.run(ctx, symbols, channels, events)
	return events, nil
}

func (f *WSFeed) run(ctx context.Context, symbols, channels []string, events chan<- Event) {
	defer close(events)
	retry := f.RetryInterval
	if retry <= 0 {
		retry = 5 * time.Second
	}
	for ctx.Err() == nil {
		if err := f.consumeOnce(ctx, symbols, channels, events); err != nil && ctx.Err() == nil {
			metrics.FeedReconnects.Inc()
			f.Log.Warning("feed_disconnect", map[string]interface{}{
				"endpoint": f.Endpoint,
				"error":    err.Error(),
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

func (f *WSFeed) consumeOnce(ctx context.Context, symbols, channels []string, events chan<- Event) error {
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, f.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	// ctx 取消时强制断开读阻塞
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	sub := subscribeFrame{Op: "subscribe", Symbols: symbols, Channels: channels}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}
	f.Log.Event("feed_subscribed", map[string]interface{}{
		"endpoint": f.Endpoint,
		"symbols":  symbols,
		"channels": channels,
	})

	readTimeout := f.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}
		ev, ok, err := ParseFeedFrame(raw)
		if err != nil {
			f.Log.Warning("feed_parse_error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if !ok {
			continue
		}
		metrics.FeedEvents.WithLabelValues(string(ev.Kind)).Inc()
		select {
		case events <- ev:
		case <-ctx.Done():
			return nil
		}
	}
}

type feedFrame struct {
	Type        string       `json:"type"`
	Symbol      string       `json:"symbol"`
	Timestamp   int64        `json:"timestamp"` // unix 毫秒
	Bids        [][2]float64 `json:"bids"`      // [price, size]
	Asks        [][2]float64 `json:"asks"`
	FundingRate *float64     `json:"fundingRate"`
}

// ParseFeedFrame 把原始帧解析为归一化事件；心跳等无关帧返回 ok=false。
func ParseFeedFrame(raw []byte) (Event, bool, error) {
	var frame feedFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Event{}, false, fmt.Errorf("parse feed frame: %w", err)
	}
	ts := time.UnixMilli(frame.Timestamp)
	switch EventKind(frame.Type) {
	case EventBookChange:
		return Event{
			Kind:   EventBookChange,
			Symbol: frame.Symbol,
			Ts:     ts,
			Bids:   toLevels(frame.Bids),
			Asks:   toLevels(frame.Asks),
		}, true, nil
	case EventFundingRate:
		return Event{
			Kind:        EventFundingRate,
			Symbol:      frame.Symbol,
			Ts:          ts,
			FundingRate: frame.FundingRate,
		}, true, nil
	case EventTrade:
		return Event{Kind: EventTrade, Symbol: frame.Symbol, Ts: ts}, true, nil
	default:
		return Event{}, false, nil
	}
}

func toLevels(raw [][2]float64) []market.Level {
	levels := make([]market.Level, 0, len(raw))
	for _, l := range raw {
		levels = append(levels, market.Level{Price: l[0], Size: l[1]})
	}
	return levels
}
