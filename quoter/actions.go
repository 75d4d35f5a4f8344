package quoter

import "perp-quoter-go/market"

// Kind 是订单动作的类型。
type Kind int

const (
	// KindSequenceCheck 序号校验指令，置于每个批次之首防止过期批次重放。
	KindSequenceCheck Kind = iota
	// KindCancelAll 撤掉该市场的全部挂单。
	KindCancelAll
	// KindPlaceResting 挂出被动报价单。
	KindPlaceResting
	// KindPlaceTake 主动吃单。
	KindPlaceTake
)

func (k Kind) String() string {
	switch k {
	case KindSequenceCheck:
		return "sequence_check"
	case KindCancelAll:
		return "cancel_all"
	case KindPlaceResting:
		return "place_resting"
	case KindPlaceTake:
		return "place_take"
	default:
		return "unknown"
	}
}

// 订单时效语义，跟随交易所定义。
const (
	TIFPostOnlySlide = "postOnlySlide"
	TIFImmediate     = "ioc"
)

// Action 是与订单网关交换的最小指令单元。
type Action struct {
	Kind        Kind
	Market      string
	MarketIndex int
	Side        market.Side
	PriceLots   int64
	SizeLots    int64
	TimeInForce string
	Seq         int64 // 仅 KindSequenceCheck 使用，毫秒时间戳，单调递增
}

// Decision 是引擎单周期对单市场的完整决策记录，仅用于日志与测试，不持久化。
type Decision struct {
	Market     string
	FairValue  float64
	RefSpread  float64
	RefMissing bool
	Edge       float64

	TightBidLots     int64
	TightAskLots     int64
	TightBidSizeLots int64
	TightAskSizeLots int64
	WideBidLots      int64
	WideAskLots      int64
	WideBidSizeLots  int64
	WideAskSizeLots  int64

	BookAdjBidLots int64
	BookAdjAskLots int64

	Requote bool

	MispricedBid float64
	MispricedAsk float64
	HitBidSize   float64
	LiftAskSize  float64
	NotionalHit  float64
	NotionalLift float64

	InCooldown  bool
	TakeSide    market.Side
	SpammerSide market.Side
}
