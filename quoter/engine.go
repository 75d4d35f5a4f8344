package quoter

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
	"perp-quoter-go/metrics"
)

const (
	defaultEdge        = 0.0015
	defaultRefNotional = 100000
	defaultIVDays      = 7
	// 参考簿无深度时退回预言机价的上下保护带
	oracleFallbackBand = 0.01
	// 平方类市场价格归一化除数
	squareDivisor = 1000000
	// 单手挂单清除阈值里的固定加项
	spammerFloor = 0.0005
)

// RefInputs 是引擎单次评估时使用的参考行情。对平方类市场，
// 执行循环传入标的市场的参考簿与资金费率。
type RefInputs struct {
	Book     *market.RefBook
	Funding  float64
	IVOffset float64
}

// Engine 是单周期决策核心：输入市场上下文与账户/价格快照，
// 输出订单动作列表。自身只持有跨市场共享的吃单冷却时间戳。
type Engine struct {
	log *logger.Logger

	// 机会性吃单的全局冷却时间戳（毫秒）。跨市场共享是有意设计，
	// 用 CAS 更新避免并发评估时丢失写入。
	lastTakeMilli atomic.Int64
}

func New(log *logger.Logger) *Engine {
	e := &Engine{log: log}
	// 启动时视为一小时前刚交易过，首个冷却窗口立即可用
	e.lastTakeMilli.Store(time.Now().Add(-time.Hour).UnixMilli())
	return e
}

// FundingFromIV 把隐含波动率预言机价换算为资金费偏移。
func FundingFromIV(ivPrice, days float64) float64 {
	if days <= 0 {
		days = defaultIVDays
	}
	return math.Pow(ivPrice/100, 2) / 365 * days
}

// SquareTransform 把标的价映射为平方类市场的价格。
func SquareTransform(price float64) float64 {
	d := decimal.NewFromFloat(price)
	return d.Mul(d).Div(decimal.NewFromInt(squareDivisor)).InexactFloat64()
}

// LastTakeTime 返回最近一次机会性吃单时间。
func (e *Engine) LastTakeTime() time.Time {
	return time.UnixMilli(e.lastTakeMilli.Load())
}

// SetLastTakeTime 覆盖冷却时间戳（测试用）。
func (e *Engine) SetLastTakeTime(ts time.Time) {
	e.lastTakeMilli.Store(ts.UnixMilli())
}

func (e *Engine) touchCooldown(now time.Time) {
	for {
		prev := e.lastTakeMilli.Load()
		next := now.UnixMilli()
		if next <= prev || e.lastTakeMilli.CompareAndSwap(prev, next) {
			return
		}
	}
}

// Evaluate 对单个市场跑一遍完整的报价/风控决策。
// 输入快照周期内只读；除记录已发送报价外不产生其他副作用。
// 权益或公允价为零时各比值会出现 NaN/Inf，换算 lot 时归零跳过，不会崩溃。
func (e *Engine) Evaluate(mc *market.Context, bundle *market.Bundle, ref RefInputs, now time.Time) ([]Action, Decision) {
	ins := mc.Instrument
	params := mc.Params()
	dec := Decision{Market: ins.Name}

	var account *market.AccountSnapshot
	var cache *market.PriceCache
	if bundle != nil {
		account = bundle.Account
		cache = bundle.Cache
	}
	oracle, _ := cache.Price(ins.Index)

	// 公允价推导：参考簿按目标名义金额取加权最优价，深度不足退回预言机
	refNotional := params.RefNotional
	if refNotional <= 0 {
		refNotional = defaultRefNotional
	}
	var refBid, refAsk float64
	found := false
	if ref.Book != nil {
		var okBid, okAsk bool
		refBid, okBid = ref.Book.SizedBestBid(refNotional)
		refAsk, okAsk = ref.Book.SizedBestAsk(refNotional)
		found = okBid && okAsk
	}
	if !found {
		refBid = oracle - oracleFallbackBand*oracle
		refAsk = oracle + oracleFallbackBand*oracle
		metrics.RefFallbacks.WithLabelValues(ins.Name).Inc()
	}
	if params.Squared && found {
		refBid = SquareTransform(refBid)
		refAsk = SquareTransform(refAsk)
	}
	dec.RefMissing = !found

	fairBid := refBid
	fairAsk := refAsk
	// TODO: 向产品确认中点是否应纳入 ask 腿；当前沿用上线版本的公式
	fairValue := (fairBid + fairBid) / 2
	refSpread := (fairAsk - fairBid) / fairValue
	dec.FairValue = fairValue
	dec.RefSpread = refSpread

	equity := 0.0
	if account != nil {
		equity = account.Equity
	}
	basePos := account.BasePosition(ins.Index)

	edge := params.Edge
	if edge == 0 {
		edge = defaultEdge
	}
	edge += refSpread / 2
	dec.Edge = edge

	bias := params.Bias
	size := equity * params.SizePerc / fairValue
	lean := 0.0 // (-params.LeanCoeff * basePos) / size

	ivOff := ref.IVOffset
	bidPx := fairValue * (1 - edge + lean + bias + 1.3*ivOff)
	askPx := fairValue * (1 + edge + lean + bias + 1.7*ivOff)

	tightBidLots, tightBidSize := ins.UIToNative(bidPx, size)
	tightAskLots, tightAskSize := ins.UIToNative(askPx, size)
	wideBidLots, wideBidSize := ins.UIToNative(bidPx*0.993, size*4.87)
	wideAskLots, wideAskSize := ins.UIToNative(askPx*1.007, size*4.95)
	dec.TightBidLots, dec.TightBidSizeLots = tightBidLots, tightBidSize
	dec.TightAskLots, dec.TightAskSizeLots = tightAskLots, tightAskSize
	dec.WideBidLots, dec.WideBidSizeLots = wideBidLots, wideBidSize
	dec.WideAskLots, dec.WideAskSizeLots = wideAskLots, wideAskSize

	// 簿内保护：买价压到最优卖一档之下，卖价抬到最优买一档之上
	book := mc.Book()
	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()

	bookAdjBid := tightBidLots
	bookAdjBid2 := wideBidLots
	if hasAsk {
		bookAdjBid = min(bestAsk.PriceLots-1, tightBidLots)
		bookAdjBid2 = min(bestAsk.PriceLots-1, wideBidLots)
	}
	bookAdjAsk := tightAskLots
	bookAdjAsk2 := wideAskLots
	if hasBid {
		bookAdjAsk = max(bestBid.PriceLots+1, tightAskLots)
		bookAdjAsk2 = max(bestBid.PriceLots+1, wideAskLots)
	}
	dec.BookAdjBidLots = bookAdjBid
	dec.BookAdjAskLots = bookAdjAsk

	// 撤换判定。挂单状态与簿状态刷新节奏不同：
	// 簿比挂单新时用账户内真实挂单比价，否则只能比上次发送的价格。
	requote := false
	if !mc.LastBookUpdate().Before(mc.LastOrderUpdate) {
		open := account.OpenOrdersFor(ins.Index)
		requote = len(open) != 2
		for _, o := range open {
			refLots := bookAdjBid
			if o.Side == market.SideSell {
				refLots = bookAdjAsk
			}
			if deviates(float64(o.PriceLots), float64(refLots), params.RequoteThresh) {
				requote = true
			}
		}
	} else {
		requote = deviates(float64(mc.SentBidLots), float64(bookAdjBid), params.RequoteThresh) ||
			deviates(float64(mc.SentAskLots), float64(bookAdjAsk), params.RequoteThresh)
	}
	dec.Requote = requote

	actions := []Action{{
		Kind:        KindSequenceCheck,
		Market:      ins.Name,
		MarketIndex: ins.Index,
		Seq:         now.UnixMilli(),
	}}

	// 机会性吃单：对手价越过误价带且不在冷却期时单边出手
	mispricedBid := (1 + params.MispriceThresh) * fairValue
	mispricedAsk := (1 - params.MispriceThresh) * fairValue
	hitBidSize := equity * params.TakePerc / mispricedBid
	liftAskSize := equity * params.TakePerc / mispricedBid
	notionalHit := mispricedBid * hitBidSize
	notionalLift := mispricedAsk * liftAskSize

	if params.MaxTakeNotional > 0 && notionalHit > params.MaxTakeNotional {
		e.log.Warning("take_notional_clamped", map[string]interface{}{
			"market": ins.Name, "side": "hit_bid",
			"intended": notionalHit, "limit": params.MaxTakeNotional,
		})
		notionalHit = params.MaxTakeNotional
		hitBidSize = notionalHit / mispricedBid
	}
	if params.MaxTakeNotional > 0 && notionalLift > params.MaxTakeNotional {
		e.log.Warning("take_notional_clamped", map[string]interface{}{
			"market": ins.Name, "side": "lift_ask",
			"intended": notionalLift, "limit": params.MaxTakeNotional,
		})
		notionalLift = params.MaxTakeNotional
		liftAskSize = notionalLift / mispricedAsk
	}

	// 组合限额：吃单后的名义仓位不得越过 ±MaxTakePortNotional / ±MaxTakePortPerc*equity，
	// 只向下裁剪到限额边界，不放大，不为负
	notionalPosition := basePos * oracle
	intendedHit := notionalPosition - notionalHit
	if params.MaxTakePortNotional > 0 && intendedHit < -params.MaxTakePortNotional {
		e.log.Warning("take_position_clamped", map[string]interface{}{
			"market": ins.Name, "side": "hit_bid",
			"intended": intendedHit, "limit": -params.MaxTakePortNotional,
		})
		notionalHit = params.MaxTakePortNotional + notionalPosition
		intendedHit = notionalPosition - notionalHit
		hitBidSize = notionalHit / mispricedBid
	}
	if params.MaxTakePortPerc > 0 && equity > 0 && intendedHit < -params.MaxTakePortPerc*equity {
		e.log.Warning("take_position_clamped", map[string]interface{}{
			"market": ins.Name, "side": "hit_bid",
			"intended_perc": 100 * intendedHit / equity, "limit_perc": -100 * params.MaxTakePortPerc,
		})
		notionalHit = params.MaxTakePortPerc*equity + notionalPosition
		intendedHit = notionalPosition - notionalHit
		hitBidSize = notionalHit / mispricedBid
	}
	intendedLift := notionalPosition + notionalLift
	if params.MaxTakePortNotional > 0 && intendedLift > params.MaxTakePortNotional {
		e.log.Warning("take_position_clamped", map[string]interface{}{
			"market": ins.Name, "side": "lift_ask",
			"intended": intendedLift, "limit": params.MaxTakePortNotional,
		})
		notionalLift = params.MaxTakePortNotional - notionalPosition
		intendedLift = notionalPosition + notionalLift
		liftAskSize = notionalLift / mispricedAsk
	}
	if params.MaxTakePortPerc > 0 && equity > 0 && intendedLift > params.MaxTakePortPerc*equity {
		e.log.Warning("take_position_clamped", map[string]interface{}{
			"market": ins.Name, "side": "lift_ask",
			"intended_perc": 100 * intendedLift / equity, "limit_perc": 100 * params.MaxTakePortPerc,
		})
		notionalLift = params.MaxTakePortPerc*equity - notionalPosition
		intendedLift = notionalPosition + notionalLift
		liftAskSize = notionalLift / mispricedAsk
	}
	if hitBidSize < 0 {
		hitBidSize = 0
	}
	if liftAskSize < 0 {
		liftAskSize = 0
	}
	dec.MispricedBid, dec.MispricedAsk = mispricedBid, mispricedAsk
	dec.HitBidSize, dec.LiftAskSize = hitBidSize, liftAskSize
	dec.NotionalHit, dec.NotionalLift = notionalHit, notionalLift

	takerBidLots, hitSizeLots := ins.UIToNative(mispricedBid, hitBidSize)
	takerAskLots, liftSizeLots := ins.UIToNative(mispricedAsk, liftAskSize)

	inTimeout := float64(now.UnixMilli()-e.lastTakeMilli.Load())/1000 < params.TimeLimit
	dec.InCooldown = inTimeout
	if inTimeout {
		metrics.CooldownActive.Set(1)
	} else {
		metrics.CooldownActive.Set(0)
	}

	switch {
	case hasBid && ins.PriceToUI(bestBid.PriceLots) > mispricedBid && !inTimeout && hitSizeLots > 0:
		actions = append(actions, Action{
			Kind:        KindPlaceTake,
			Market:      ins.Name,
			MarketIndex: ins.Index,
			Side:        market.SideSell,
			PriceLots:   takerBidLots,
			SizeLots:    hitSizeLots,
			TimeInForce: TIFImmediate,
		})
		e.touchCooldown(now)
		dec.TakeSide = market.SideSell
		metrics.Takes.WithLabelValues(ins.Name, "sell").Inc()
		e.log.Event("take_emitted", map[string]interface{}{
			"market": ins.Name, "side": "sell",
			"best_bid": ins.PriceToUI(bestBid.PriceLots), "threshold": mispricedBid,
			"size_lots": hitSizeLots,
		})
	case hasAsk && ins.PriceToUI(bestAsk.PriceLots) < mispricedAsk && !inTimeout && liftSizeLots > 0:
		actions = append(actions, Action{
			Kind:        KindPlaceTake,
			Market:      ins.Name,
			MarketIndex: ins.Index,
			Side:        market.SideBuy,
			PriceLots:   takerAskLots,
			SizeLots:    liftSizeLots,
			TimeInForce: TIFImmediate,
		})
		e.touchCooldown(now)
		dec.TakeSide = market.SideBuy
		metrics.Takes.WithLabelValues(ins.Name, "buy").Inc()
		e.log.Event("take_emitted", map[string]interface{}{
			"market": ins.Name, "side": "buy",
			"best_ask": ins.PriceToUI(bestAsk.PriceLots), "threshold": mispricedAsk,
			"size_lots": liftSizeLots,
		})
	}

	// 清除疑似操纵价格的单手挂单，不受吃单冷却约束
	spammerThresh := params.SpammerCharge*edge + spammerFloor
	if params.TakeSpammers && hasBid && bestBid.SizeLots == 1 && tightAskLots > 0 &&
		float64(bestBid.PriceLots)/float64(tightAskLots)-1 > spammerThresh {
		actions = append(actions, Action{
			Kind:        KindPlaceTake,
			Market:      ins.Name,
			MarketIndex: ins.Index,
			Side:        market.SideSell,
			PriceLots:   bestBid.PriceLots,
			SizeLots:    1,
			TimeInForce: TIFImmediate,
		})
		dec.SpammerSide = market.SideSell
		metrics.SpammerClears.WithLabelValues(ins.Name, "sell").Inc()
	} else if params.TakeSpammers && hasAsk && bestAsk.SizeLots == 1 && bestAsk.PriceLots > 0 &&
		float64(tightBidLots)/float64(bestAsk.PriceLots)-1 > spammerThresh {
		actions = append(actions, Action{
			Kind:        KindPlaceTake,
			Market:      ins.Name,
			MarketIndex: ins.Index,
			Side:        market.SideBuy,
			PriceLots:   bestAsk.PriceLots,
			SizeLots:    1,
			TimeInForce: TIFImmediate,
		})
		dec.SpammerSide = market.SideBuy
		metrics.SpammerClears.WithLabelValues(ins.Name, "buy").Inc()
	}

	if requote {
		actions = append(actions, Action{
			Kind:        KindCancelAll,
			Market:      ins.Name,
			MarketIndex: ins.Index,
		})
		if !params.KillSwitch {
			actions = appendPlace(actions, ins, market.SideBuy, bookAdjBid, tightBidSize)
			actions = appendPlace(actions, ins, market.SideBuy, bookAdjBid2, wideBidSize)
			actions = appendPlace(actions, ins, market.SideSell, bookAdjAsk, tightAskSize)
			actions = appendPlace(actions, ins, market.SideSell, bookAdjAsk2, wideAskSize)
		}
		mc.SentBidLots = bookAdjBid
		mc.SentAskLots = bookAdjAsk
		mc.LastOrderUpdate = now
		metrics.Requotes.WithLabelValues(ins.Name).Inc()
	}

	e.logDecision(dec, equity, notionalPosition)
	metrics.FairValue.WithLabelValues(ins.Name).Set(zeroIfNaN(fairValue))
	metrics.RefSpread.WithLabelValues(ins.Name).Set(zeroIfNaN(refSpread))
	metrics.Equity.Set(equity)
	metrics.PositionNotional.WithLabelValues(ins.Name).Set(zeroIfNaN(notionalPosition))

	// 只剩序号校验时本周期无动作
	if len(actions) == 1 {
		return nil, dec
	}
	for _, a := range actions {
		metrics.Actions.WithLabelValues(ins.Name, a.Kind.String()).Inc()
	}
	return actions, dec
}

func appendPlace(actions []Action, ins market.Instrument, side market.Side, priceLots, sizeLots int64) []Action {
	// 零 lot 表示换算自 NaN/Inf 或低于步进的尺寸，跳过
	if priceLots <= 0 || sizeLots <= 0 {
		return actions
	}
	return append(actions, Action{
		Kind:        KindPlaceResting,
		Market:      ins.Name,
		MarketIndex: ins.Index,
		Side:        side,
		PriceLots:   priceLots,
		SizeLots:    sizeLots,
		TimeInForce: TIFPostOnlySlide,
	})
}

// deviates 判断 price 相对 ref 的偏移是否超过阈值。ref 为 0 时视为超限。
func deviates(price, ref, thresh float64) bool {
	if ref == 0 {
		return true
	}
	return math.Abs(price/ref-1) > thresh
}

func (e *Engine) logDecision(dec Decision, equity, notionalPosition float64) {
	e.log.Event("quote_decision", map[string]interface{}{
		"market":        dec.Market,
		"fair_value":    dec.FairValue,
		"ref_spread":    dec.RefSpread,
		"ref_missing":   dec.RefMissing,
		"edge":          dec.Edge,
		"tight_bid":     dec.TightBidLots,
		"tight_ask":     dec.TightAskLots,
		"wide_bid":      dec.WideBidLots,
		"wide_ask":      dec.WideAskLots,
		"adj_bid":       dec.BookAdjBidLots,
		"adj_ask":       dec.BookAdjAskLots,
		"requote":       dec.Requote,
		"mispriced_bid": dec.MispricedBid,
		"mispriced_ask": dec.MispricedAsk,
		"hit_size":      dec.HitBidSize,
		"lift_size":     dec.LiftAskSize,
		"in_cooldown":   dec.InCooldown,
		"equity":        equity,
		"position":      notionalPosition,
	})
}

func zeroIfNaN(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
