// Package metrics provides Prometheus metrics for the quoting engine
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_cycles_total",
		Help: "执行循环完成的周期数",
	})
	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_cycle_errors_total",
		Help: "执行循环内被捕获的周期级异常数",
	})
	LoopRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_loop_restarts_total",
		Help: "执行循环被监督器重启的次数",
	})

	StateSyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_state_syncs_total",
		Help: "账户/订单簿状态同步成功次数",
	})
	StateSyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_state_sync_errors_total",
		Help: "状态同步失败次数",
	})

	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_feed_events_total",
		Help: "参考行情事件数量",
	}, []string{"kind"})
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_feed_reconnects_total",
		Help: "参考行情流重连次数",
	})

	Submissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_submissions_total",
		Help: "订单网关批量提交次数",
	})
	SubmitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quoter_submit_errors_total",
		Help: "订单网关提交失败次数",
	})
	Actions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_actions_total",
		Help: "引擎产生的订单动作数量",
	}, []string{"market", "kind"})

	Requotes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_requotes_total",
		Help: "撤换报价次数",
	}, []string{"market"})
	Takes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_takes_total",
		Help: "机会性吃单次数",
	}, []string{"market", "side"})
	SpammerClears = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_spammer_clears_total",
		Help: "清除单手挂单的防操纵吃单次数",
	}, []string{"market", "side"})
	RefFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_ref_fallbacks_total",
		Help: "参考簿深度不足退回预言机价的次数",
	}, []string{"market"})

	FairValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_fair_value",
		Help: "引擎当前公允价",
	}, []string{"market"})
	RefSpread = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_ref_spread",
		Help: "参考市场相对价差",
	}, []string{"market"})
	Equity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quoter_account_equity",
		Help: "账户权益",
	})
	PositionNotional = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_position_notional",
		Help: "各市场名义仓位",
	}, []string{"market"})
	CooldownActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quoter_take_cooldown_active",
		Help: "机会性吃单冷却是否生效(0/1)",
	})
)

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
