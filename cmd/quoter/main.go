package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"perp-quoter-go/config"
	"perp-quoter-go/gateway"
	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
	"perp-quoter-go/metrics"
	"perp-quoter-go/quoter"
	"perp-quoter-go/runner"
	"perp-quoter-go/statesync"
)

func main() {
	cfgPath := flag.String("config", "configs/quoter.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正提交交易")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，留空取配置值")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer lg.Close()

	addr := *metricsAddr
	if addr == "" {
		addr = cfg.MetricsAddr
	}
	if addr != "" {
		metrics.StartMetricsServer(addr)
	}

	// 市场按名称稳定排序，执行循环与批量提交都依赖这个顺序
	names := cfg.MarketNames()
	markets := make([]*market.Context, 0, len(names))
	byName := make(map[string]*market.Context, len(names))
	bySymbol := make(map[string]*market.Context, len(names))
	for _, name := range names {
		mc := cfg.Markets[name]
		ctx := market.NewContext(mc.Instrument(name), mc.Params.ToParams())
		markets = append(markets, ctx)
		byName[name] = ctx
		sym := mc.RefSymbol
		if sym == "" {
			sym = name
		}
		bySymbol[sym] = ctx
	}

	provider := gateway.NewHTTPProvider(cfg.Gateway.Endpoint)
	var orderGW gateway.OrderGateway
	if *dryRun {
		orderGW = &gateway.DryRunGateway{Log: lg}
	} else {
		signer, err := loadSigner(cfg.Gateway.SignerKeyPath)
		if err != nil {
			log.Fatalf("加载签名私钥失败: %v", err)
		}
		var limiter gateway.RateLimiter
		if cfg.Gateway.Rate > 0 {
			limiter = gateway.NewTokenBucketLimiter(cfg.Gateway.Rate, cfg.Gateway.Burst)
		}
		orderGW = gateway.NewHTTPOrderGateway(cfg.Gateway.Endpoint, signer, limiter)
	}

	shared := &market.SharedBundle{}
	sync := &statesync.Synchronizer{
		Provider:      provider,
		Markets:       markets,
		Shared:        shared,
		AccountHandle: cfg.Account.Handle,
		CacheHandle:   cfg.Account.CacheHandle,
		Interval:      time.Duration(cfg.StateRefreshMs) * time.Millisecond,
		Log:           lg,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 首轮同步成功后才进入执行循环，避免空簿决策
	if err := sync.SyncOnce(ctx); err != nil {
		log.Fatalf("首轮状态同步失败: %v", err)
	}
	go sync.Run(ctx)

	if cfg.Gateway.FeedEndpoint != "" {
		listener := &statesync.Listener{
			Feed:    gateway.NewWSFeed(cfg.Gateway.FeedEndpoint, lg),
			Markets: bySymbol,
			Log:     lg,
		}
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				lg.LogError(err, map[string]interface{}{"component": "ref_feed"})
			}
		}()
	}

	go watchConfig(ctx, *cfgPath, byName, lg)

	// 启动先对齐序列号并清掉历史挂单
	initActions := make([]quoter.Action, 0, 2*len(markets))
	now := time.Now().UnixMilli()
	for _, mc := range markets {
		initActions = append(initActions,
			quoter.Action{Kind: quoter.KindSequenceCheck, Market: mc.Instrument.Name, MarketIndex: mc.Instrument.Index, Seq: now},
			quoter.Action{Kind: quoter.KindCancelAll, Market: mc.Instrument.Name, MarketIndex: mc.Instrument.Index},
		)
	}
	if _, err := orderGW.Submit(ctx, initActions, "startup reset"); err != nil {
		log.Fatalf("启动清理失败: %v", err)
	}

	sup := &runner.Supervisor{
		Loop: &runner.Loop{
			Engine:   quoter.New(lg),
			Gateway:  orderGW,
			Shared:   shared,
			Markets:  markets,
			ByName:   byName,
			Interval: time.Duration(cfg.IntervalMs) * time.Millisecond,
			Batch:    cfg.Batch,
			Log:      lg,
		},
		Log: lg,
	}
	sup.Run(ctx)
	lg.Event("quoter_exit", map[string]interface{}{"env": cfg.Env})
}

// watchConfig 把热更新后的市场参数整体替换进运行期上下文。
// 新增/删除市场需要重启进程，这里只更新已有市场的参数。
func watchConfig(ctx context.Context, path string, byName map[string]*market.Context, lg *logger.Logger) {
	w := config.Watcher{Path: path}
	err := w.Start(ctx, func(cfg config.AppConfig) {
		for name, mc := range cfg.Markets {
			if mctx, ok := byName[name]; ok {
				mctx.SetParams(mc.Params.ToParams())
			}
		}
		lg.Event("config_reloaded", map[string]interface{}{"markets": len(cfg.Markets)})
	})
	if err != nil && ctx.Err() == nil {
		lg.LogError(err, map[string]interface{}{"component": "config_watcher"})
	}
}

func loadSigner(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
