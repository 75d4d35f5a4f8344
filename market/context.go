package market

import (
	"math"
	"sync/atomic"
	"time"
)

// Params 是单个市场的报价/吃单参数，可被配置热更新整体替换。
type Params struct {
	Edge           float64 // 基础半价差，0 时取 0.0015
	Bias           float64
	LeanCoeff      float64 // 仓位倾斜系数（当前停用，公式位保留）
	SizePerc       float64 // 挂单规模 = equity*SizePerc/fairValue
	TakePerc       float64 // 吃单规模 = equity*TakePerc/价格
	MispriceThresh float64
	RequoteThresh  float64
	TimeLimit      float64 // 两次机会性吃单之间的最小间隔（秒）

	MaxTakeNotional     float64
	MinTakeNotional     float64
	MaxTakePortNotional float64
	MaxTakePortPerc     float64

	TakeSpammers  bool
	SpammerCharge float64

	RefNotional    float64 // 参考簿加权深度的目标名义金额，0 时取 100000
	DisableRefFeed bool
	KillSwitch     bool // 置位时 requote 只发撤单，不再挂新单

	Underlying string  // 平方类市场的标的市场名
	Squared    bool    // 公允价取标的价平方
	IVDays     float64 // 隐含波动率资金费偏移的天数，0 时取 7
	IVSlot     int     // 隐含波动率预言机所在的缓存槽位
}

// Context 是单个市场的运行期状态：静态参数、实时簿、参考簿与上次报价记录。
// 同步循环写簿、监听循环写参考簿、执行循环写已发送价格，互相之间只做整体替换。
type Context struct {
	Instrument Instrument
	Ref        *RefBook

	params atomic.Pointer[Params]

	book           atomic.Pointer[BookSnapshot]
	lastBookUpdate atomic.Int64 // unix 毫秒

	fundingBits       atomic.Uint64
	lastRefUpdate     atomic.Int64
	lastFundingUpdate atomic.Int64

	// 以下字段仅由执行循环持有者读写。
	SentBidLots     int64
	SentAskLots     int64
	LastOrderUpdate time.Time
}

func NewContext(ins Instrument, p Params) *Context {
	c := &Context{
		Instrument: ins,
		Ref:        NewRefBook(),
	}
	c.SetParams(p)
	return c
}

// Params 返回当前参数快照。
func (c *Context) Params() Params { return *c.params.Load() }

// SetParams 整体替换参数（配置热更新入口）。
func (c *Context) SetParams(p Params) { c.params.Store(&p) }

// Book 返回最近一次发布的订单簿快照，可能为 nil。
func (c *Context) Book() *BookSnapshot { return c.book.Load() }

// SetBook 发布新的订单簿快照并记录时间。
func (c *Context) SetBook(b *BookSnapshot, ts time.Time) {
	c.book.Store(b)
	c.lastBookUpdate.Store(ts.UnixMilli())
}

// LastBookUpdate 返回簿快照的最近刷新时间。
func (c *Context) LastBookUpdate() time.Time {
	return time.UnixMilli(c.lastBookUpdate.Load())
}

// FundingRate 返回参考市场最近一次资金费率。
func (c *Context) FundingRate() float64 {
	return math.Float64frombits(c.fundingBits.Load())
}

// SetFundingRate 记录资金费率与时间。
func (c *Context) SetFundingRate(rate float64, ts time.Time) {
	c.fundingBits.Store(math.Float64bits(rate))
	c.lastFundingUpdate.Store(ts.UnixMilli())
}

// MarkRefUpdate 记录参考簿最近一次更新时间。
func (c *Context) MarkRefUpdate(ts time.Time) {
	c.lastRefUpdate.Store(ts.UnixMilli())
}

// LastRefUpdate 返回参考簿的最近更新时间。
func (c *Context) LastRefUpdate() time.Time {
	return time.UnixMilli(c.lastRefUpdate.Load())
}

// LastFundingUpdate 返回资金费率的最近更新时间。
func (c *Context) LastFundingUpdate() time.Time {
	return time.UnixMilli(c.lastFundingUpdate.Load())
}
