package market

// Side 表示订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Level 是参考行情的一个价位档（UI 单位）。
type Level struct {
	Price float64
	Size  float64
}

// BookLevel 是本市场订单簿的一个价位档（lot 单位）。
type BookLevel struct {
	PriceLots int64
	SizeLots  int64
}

// BookSnapshot 是同步循环解码出的订单簿快照，档位按最优在前排序。
// 发布后不可变，读取方整体替换引用。
type BookSnapshot struct {
	Bids []BookLevel
	Asks []BookLevel
}

// BestBid 返回最优买档；簿空时 ok=false。
func (b *BookSnapshot) BestBid() (BookLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk 返回最优卖档；簿空时 ok=false。
func (b *BookSnapshot) BestAsk() (BookLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return BookLevel{}, false
	}
	return b.Asks[0], true
}
