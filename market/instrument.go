package market

import "math"

// Instrument 描述一个永续市场的静态属性与 lot 换算。
// TickSize/StepSize 是一个 price lot / size lot 对应的 UI 单位。
type Instrument struct {
	Name       string
	Index      int
	TickSize   float64
	StepSize   float64
	BidsHandle string
	AsksHandle string
}

// UIToNative 把 UI 价格/数量换算成整数 lot。
// NaN/Inf/非正输入返回 0 lot，调用方把 0 视为跳过。
func (ins Instrument) UIToNative(price, size float64) (priceLots, sizeLots int64) {
	if isFinitePositive(price) && ins.TickSize > 0 {
		priceLots = int64(math.Round(price / ins.TickSize))
	}
	if isFinitePositive(size) && ins.StepSize > 0 {
		sizeLots = int64(math.Floor(size / ins.StepSize))
	}
	return priceLots, sizeLots
}

// PriceToUI 把 price lot 换算回 UI 价格。
func (ins Instrument) PriceToUI(lots int64) float64 {
	return float64(lots) * ins.TickSize
}

// SizeToUI 把 size lot 换算回 UI 数量。
func (ins Instrument) SizeToUI(lots int64) float64 {
	return float64(lots) * ins.StepSize
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
