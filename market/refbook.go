package market

import (
	"sort"
	"sync"
)

// RefBook 维护参考交易所的订单簿（价格->数量）。
// 监听协程写入增量，决策循环按目标名义金额取带深度的最优价。
type RefBook struct {
	mu   sync.RWMutex
	bids map[float64]float64
	asks map[float64]float64
}

func NewRefBook() *RefBook {
	return &RefBook{
		bids: make(map[float64]float64),
		asks: make(map[float64]float64),
	}
}

// ApplyDelta 应用增量更新，size 为 0 表示删除该档。
func (rb *RefBook) ApplyDelta(bids, asks []Level) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	for _, lvl := range bids {
		if lvl.Size == 0 {
			delete(rb.bids, lvl.Price)
		} else {
			rb.bids[lvl.Price] = lvl.Size
		}
	}
	for _, lvl := range asks {
		if lvl.Size == 0 {
			delete(rb.asks, lvl.Price)
		} else {
			rb.asks[lvl.Price] = lvl.Size
		}
	}
}

// SizedBestBid 从最优买价向下累计名义金额，返回满足 notional 所需的最后一档价格。
// 深度不足时 ok=false。
func (rb *RefBook) SizedBestBid(notional float64) (float64, bool) {
	levels := rb.sortedLevels(true)
	rem := notional
	for _, lvl := range levels {
		rem -= lvl.Price * lvl.Size
		if rem <= 0 {
			return lvl.Price, true
		}
	}
	return 0, false
}

// SizedBestAsk 从最优卖价向上累计名义金额，返回满足 notional 所需的最后一档价格。
func (rb *RefBook) SizedBestAsk(notional float64) (float64, bool) {
	levels := rb.sortedLevels(false)
	rem := notional
	for _, lvl := range levels {
		rem -= lvl.Price * lvl.Size
		if rem <= 0 {
			return lvl.Price, true
		}
	}
	return 0, false
}

// BestBid 返回未加权的最优买价；簿空时为 0。
func (rb *RefBook) BestBid() float64 {
	levels := rb.sortedLevels(true)
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Price
}

// BestAsk 返回未加权的最优卖价；簿空时为 0。
func (rb *RefBook) BestAsk() float64 {
	levels := rb.sortedLevels(false)
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Price
}

// Depth 返回双边档位数量。
func (rb *RefBook) Depth() (bids, asks int) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.bids), len(rb.asks)
}

func (rb *RefBook) sortedLevels(bids bool) []Level {
	rb.mu.RLock()
	src := rb.asks
	if bids {
		src = rb.bids
	}
	levels := make([]Level, 0, len(src))
	for p, s := range src {
		levels = append(levels, Level{Price: p, Size: s})
	}
	rb.mu.RUnlock()
	if bids {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	} else {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	}
	return levels
}
