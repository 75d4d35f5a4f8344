package runner

import (
	"context"
	"fmt"
	"time"

	"perp-quoter-go/gateway"
	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
	"perp-quoter-go/metrics"
	"perp-quoter-go/quoter"
)

// Loop 是执行循环：每个周期在同一份快照上依次评估全部市场，
// 动作攒到 Batch 条就提交一笔。市场顺序即配置顺序，周期内不重排。
type Loop struct {
	Engine  *quoter.Engine
	Gateway gateway.OrderGateway
	Shared  *market.SharedBundle

	Markets []*market.Context
	ByName  map[string]*market.Context // 平方类市场查标的用

	Interval time.Duration // 0 取 250ms
	Batch    int           // 单笔提交的最大动作数，0 不设上限
	Log      *logger.Logger
}

// Run 阻塞运行执行循环，直到 ctx 取消。单周期 panic 只记录并继续。
func (l *Loop) Run(ctx context.Context) {
	interval := l.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	for {
		l.cycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (l *Loop) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CycleErrors.Inc()
			l.Log.Warning("cycle_panic", map[string]interface{}{
				"panic": fmt.Sprint(r),
			})
		}
	}()

	// 周期开始时取一次快照，整个周期内所有市场用同一份
	bundle := l.Shared.Load()
	if bundle == nil {
		return
	}
	metrics.Cycles.Inc()

	now := time.Now()
	var pending []quoter.Action
	for _, mc := range l.Markets {
		actions, _ := l.Engine.Evaluate(mc, bundle, l.refInputs(mc, bundle), now)
		pending = append(pending, actions...)
		if l.Batch > 0 && len(pending) >= l.Batch {
			l.flush(ctx, pending, fmt.Sprintf("%s update", mc.Instrument.Name))
			pending = nil
		}
	}
	if len(pending) > 0 {
		l.flush(ctx, pending, "all markets update")
	}
}

// refInputs 组装引擎输入。平方类市场借用标的市场的参考簿与资金费，
// 并从价格缓存的波动率槽位换算资金费偏移。
func (l *Loop) refInputs(mc *market.Context, bundle *market.Bundle) quoter.RefInputs {
	params := mc.Params()
	src := mc
	if params.Squared && params.Underlying != "" {
		if under, ok := l.ByName[params.Underlying]; ok {
			src = under
		}
	}
	ref := quoter.RefInputs{
		Book:    src.Ref,
		Funding: src.FundingRate(),
	}
	if params.Squared && bundle != nil {
		if ivPrice, ok := bundle.Cache.Price(params.IVSlot); ok {
			ref.IVOffset = quoter.FundingFromIV(ivPrice, params.IVDays)
		}
	}
	return ref
}

func (l *Loop) flush(ctx context.Context, actions []quoter.Action, label string) {
	if len(actions) == 0 {
		return
	}
	id, err := l.Gateway.Submit(ctx, actions, label)
	if err != nil {
		metrics.SubmitErrors.Inc()
		l.Log.Warning("submit_error", map[string]interface{}{
			"label":   label,
			"actions": len(actions),
			"error":   err.Error(),
		})
		return
	}
	metrics.Submissions.Inc()
	l.Log.Event("submitted", map[string]interface{}{
		"label":   label,
		"actions": len(actions),
		"id":      id,
	})
}
