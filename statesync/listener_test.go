package statesync

import (
	"sort"
	"testing"
	"time"

	"perp-quoter-go/gateway"
	"perp-quoter-go/market"
)

func newListenerMarkets() (map[string]*market.Context, *market.Context, *market.Context) {
	sol := market.NewContext(market.Instrument{Name: "SOL-PERP"}, market.Params{})
	btc := market.NewContext(market.Instrument{Name: "BTC-PERP"}, market.Params{DisableRefFeed: true})
	return map[string]*market.Context{
		"SOLUSDT": sol,
		"BTCUSDT": btc,
	}, sol, btc
}

func TestListenerSymbolsSkipsDisabled(t *testing.T) {
	markets, _, _ := newListenerMarkets()
	l := &Listener{Markets: markets}
	symbols := l.Symbols()
	sort.Strings(symbols)
	if len(symbols) != 1 || symbols[0] != "SOLUSDT" {
		t.Fatalf("unexpected symbols %v", symbols)
	}
}

func TestListenerApplyBookChange(t *testing.T) {
	markets, sol, _ := newListenerMarkets()
	l := &Listener{Markets: markets}
	ts := time.UnixMilli(1700000000000)

	l.Apply(gateway.Event{
		Kind:   gateway.EventBookChange,
		Symbol: "SOLUSDT",
		Ts:     ts,
		Bids:   []market.Level{{Price: 100, Size: 2}},
		Asks:   []market.Level{{Price: 101, Size: 1}},
	})

	if bid := sol.Ref.BestBid(); bid != 100 {
		t.Fatalf("unexpected ref bid %f", bid)
	}
	if !sol.LastRefUpdate().Equal(ts) {
		t.Fatalf("ref timestamp not recorded: %v", sol.LastRefUpdate())
	}
}

func TestListenerApplyFundingRate(t *testing.T) {
	markets, sol, _ := newListenerMarkets()
	l := &Listener{Markets: markets}
	ts := time.UnixMilli(1700000000000)
	rate := 0.0003

	l.Apply(gateway.Event{Kind: gateway.EventFundingRate, Symbol: "SOLUSDT", Ts: ts, FundingRate: &rate})
	if got := sol.FundingRate(); got != rate {
		t.Fatalf("unexpected funding %f", got)
	}

	// rate 缺失的 tick 不覆盖已有值
	l.Apply(gateway.Event{Kind: gateway.EventFundingRate, Symbol: "SOLUSDT", Ts: ts.Add(time.Second)})
	if got := sol.FundingRate(); got != rate {
		t.Fatalf("nil rate must not overwrite, got %f", got)
	}
}

func TestListenerApplyIgnoresDisabledAndUnknown(t *testing.T) {
	markets, _, btc := newListenerMarkets()
	l := &Listener{Markets: markets}

	l.Apply(gateway.Event{
		Kind:   gateway.EventBookChange,
		Symbol: "BTCUSDT",
		Bids:   []market.Level{{Price: 50000, Size: 1}},
	})
	if bids, _ := btc.Ref.Depth(); bids != 0 {
		t.Fatalf("disabled market must not receive updates")
	}

	// 未知 symbol 直接丢弃，不 panic
	l.Apply(gateway.Event{Kind: gateway.EventBookChange, Symbol: "ETHUSDT"})
}
