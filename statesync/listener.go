package statesync

import (
	"context"

	"perp-quoter-go/gateway"
	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
)

// Listener 把参考行情流路由到各市场的参考簿与资金费率。
// 每个市场按参考交易所 symbol 订阅；DisableRefFeed 的市场不接收更新，
// 其公允价回落到预言机价。
type Listener struct {
	Feed    gateway.Feed
	Markets map[string]*market.Context // 参考 symbol -> 市场
	Log     *logger.Logger
}

// Symbols 返回需要订阅的参考 symbol 集合，已剔除关闭参考源的市场。
func (l *Listener) Symbols() []string {
	out := make([]string, 0, len(l.Markets))
	for sym, mc := range l.Markets {
		if mc.Params().DisableRefFeed {
			continue
		}
		out = append(out, sym)
	}
	return out
}

// Run 订阅行情流并阻塞消费，直到 ctx 取消。
func (l *Listener) Run(ctx context.Context) error {
	symbols := l.Symbols()
	if len(symbols) == 0 {
		l.Log.Event("ref_feed_disabled", nil)
		<-ctx.Done()
		return nil
	}
	events, err := l.Feed.Subscribe(ctx, symbols, []gateway.EventKind{
		gateway.EventBookChange,
		gateway.EventFundingRate,
	})
	if err != nil {
		return err
	}
	for ev := range events {
		l.Apply(ev)
	}
	return ctx.Err()
}

// Apply 把单个事件写入对应市场，未知 symbol 丢弃。
func (l *Listener) Apply(ev gateway.Event) {
	mc, ok := l.Markets[ev.Symbol]
	if !ok || mc.Params().DisableRefFeed {
		return
	}
	switch ev.Kind {
	case gateway.EventBookChange:
		mc.Ref.ApplyDelta(ev.Bids, ev.Asks)
		mc.MarkRefUpdate(ev.Ts)
	case gateway.EventFundingRate:
		if ev.FundingRate != nil {
			mc.SetFundingRate(*ev.FundingRate, ev.Ts)
		}
	}
}
