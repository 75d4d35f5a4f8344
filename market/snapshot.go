package market

import (
	"sync/atomic"
	"time"
)

// OpenOrder 是账户当前挂在簿上的一张订单（lot 单位）。
type OpenOrder struct {
	MarketIndex int
	Side        Side
	PriceLots   int64
	SizeLots    int64
}

// OpenOrdersChunk 是单个 open-orders 账户解码后的内容。
type OpenOrdersChunk struct {
	MarketIndex int
	Orders      []OpenOrder
}

// AccountSnapshot 是账户状态的整体快照：权益、各市场仓位与挂单。
// 同步循环整体替换，周期内对决策只读。
type AccountSnapshot struct {
	Equity            float64
	Positions         map[int]float64 // marketIndex -> 基础仓位（UI 单位，正多负空）
	OpenOrders        []OpenOrder
	OpenOrdersHandles []string
}

// BasePosition 返回指定市场的基础仓位，缺省为 0。
func (a *AccountSnapshot) BasePosition(marketIndex int) float64 {
	if a == nil {
		return 0
	}
	return a.Positions[marketIndex]
}

// OpenOrdersFor 返回指定市场的全部挂单。
func (a *AccountSnapshot) OpenOrdersFor(marketIndex int) []OpenOrder {
	if a == nil {
		return nil
	}
	var out []OpenOrder
	for _, o := range a.OpenOrders {
		if o.MarketIndex == marketIndex {
			out = append(out, o)
		}
	}
	return out
}

// PriceSlot 是价格缓存里的一个预言机槽位。
type PriceSlot struct {
	Price      float64
	LastUpdate time.Time
}

// PriceCache 是链上价格缓存快照，槽位按市场 index 寻址。
type PriceCache struct {
	Slots []PriceSlot
}

// Price 返回槽位价格；槽位缺失或价格非正时 ok=false。
func (c *PriceCache) Price(slot int) (float64, bool) {
	if c == nil || slot < 0 || slot >= len(c.Slots) {
		return 0, false
	}
	p := c.Slots[slot].Price
	if p <= 0 {
		return 0, false
	}
	return p, true
}

// Bundle 把账户快照与价格缓存捆绑为一个发布单元。
// 两者必须一起替换，避免新预言机价配旧权益做风控。
type Bundle struct {
	Account *AccountSnapshot
	Cache   *PriceCache
}

// SharedBundle 是单写多读的快照发布点。
type SharedBundle struct {
	p atomic.Pointer[Bundle]
}

// Load 返回当前快照，尚未发布时为 nil。
func (s *SharedBundle) Load() *Bundle { return s.p.Load() }

// Publish 原子替换整个快照。
func (s *SharedBundle) Publish(b *Bundle) { s.p.Store(b) }
