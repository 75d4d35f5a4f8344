package market

import (
	"testing"
	"time"
)

func TestBookSnapshotBest(t *testing.T) {
	var book *BookSnapshot
	if _, ok := book.BestBid(); ok {
		t.Fatalf("nil book should have no best bid")
	}
	book = &BookSnapshot{
		Bids: []BookLevel{{PriceLots: 100, SizeLots: 5}},
		Asks: []BookLevel{{PriceLots: 102, SizeLots: 3}},
	}
	bid, ok := book.BestBid()
	if !ok || bid.PriceLots != 100 {
		t.Fatalf("unexpected best bid %+v (ok=%v)", bid, ok)
	}
	ask, ok := book.BestAsk()
	if !ok || ask.PriceLots != 102 {
		t.Fatalf("unexpected best ask %+v (ok=%v)", ask, ok)
	}
}

func TestPriceCacheSlots(t *testing.T) {
	var cache *PriceCache
	if _, ok := cache.Price(0); ok {
		t.Fatalf("nil cache should have no price")
	}
	cache = &PriceCache{Slots: []PriceSlot{{Price: 150.5}, {Price: 0}}}
	if p, ok := cache.Price(0); !ok || p != 150.5 {
		t.Fatalf("unexpected slot 0 price %f (ok=%v)", p, ok)
	}
	// 非正价格视为缺失
	if _, ok := cache.Price(1); ok {
		t.Fatalf("zero price slot should be missing")
	}
	if _, ok := cache.Price(5); ok {
		t.Fatalf("out of range slot should be missing")
	}
}

func TestAccountSnapshotLookups(t *testing.T) {
	var snap *AccountSnapshot
	if pos := snap.BasePosition(1); pos != 0 {
		t.Fatalf("nil snapshot position should be 0, got %f", pos)
	}
	snap = &AccountSnapshot{
		Positions: map[int]float64{1: -2.5},
		OpenOrders: []OpenOrder{
			{MarketIndex: 1, Side: SideBuy, PriceLots: 10},
			{MarketIndex: 2, Side: SideSell, PriceLots: 20},
		},
	}
	if pos := snap.BasePosition(1); pos != -2.5 {
		t.Fatalf("unexpected position %f", pos)
	}
	if orders := snap.OpenOrdersFor(1); len(orders) != 1 || orders[0].PriceLots != 10 {
		t.Fatalf("unexpected open orders %+v", orders)
	}
}

func TestSharedBundlePublish(t *testing.T) {
	shared := &SharedBundle{}
	if shared.Load() != nil {
		t.Fatalf("expected nil before first publish")
	}
	b := &Bundle{Account: &AccountSnapshot{Equity: 42}}
	shared.Publish(b)
	if got := shared.Load(); got != b {
		t.Fatalf("expected published bundle back")
	}
}

func TestContextParamsSwap(t *testing.T) {
	mc := NewContext(Instrument{Name: "SOL-PERP"}, Params{Edge: 0.001})
	if got := mc.Params().Edge; got != 0.001 {
		t.Fatalf("unexpected edge %f", got)
	}
	mc.SetParams(Params{Edge: 0.002, KillSwitch: true})
	p := mc.Params()
	if p.Edge != 0.002 || !p.KillSwitch {
		t.Fatalf("params swap not applied: %+v", p)
	}
}

func TestContextTimestamps(t *testing.T) {
	mc := NewContext(Instrument{}, Params{})
	ts := time.UnixMilli(1700000000000)
	mc.SetBook(&BookSnapshot{}, ts)
	if !mc.LastBookUpdate().Equal(ts) {
		t.Fatalf("unexpected book ts %v", mc.LastBookUpdate())
	}
	mc.SetFundingRate(0.0003, ts)
	if r := mc.FundingRate(); r != 0.0003 {
		t.Fatalf("unexpected funding %f", r)
	}
	if !mc.LastFundingUpdate().Equal(ts) {
		t.Fatalf("unexpected funding ts %v", mc.LastFundingUpdate())
	}
}
