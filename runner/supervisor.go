package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/metrics"
	"perp-quoter-go/quoter"
)

// Supervisor 驻留在执行循环外层：对接 systemd 通知、
// 崩溃后重启循环、退出前撤掉全部挂单。
type Supervisor struct {
	Loop *Loop
	Log  *logger.Logger

	// 退出清理的提交超时，0 取 10s
	DrainTimeout time.Duration
}

// Run 阻塞运行直到 ctx 取消，随后执行退出清理。
func (s *Supervisor) Run(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	s.Log.Event("supervisor_started", map[string]interface{}{
		"markets": len(s.Loop.Markets),
	})

	for ctx.Err() == nil {
		s.Loop.Run(ctx)
		if ctx.Err() == nil {
			// Run 只会因周期外的意外返回；正常路径靠 ctx 退出
			metrics.LoopRestarts.Inc()
			s.Log.Warning("loop_restarted", nil)
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	s.drain()
}

// drain 退出前对每个市场发一笔撤单。ctx 已取消，用独立超时上下文提交。
func (s *Supervisor) drain() {
	timeout := s.DrainTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	now := time.Now().UnixMilli()
	actions := make([]quoter.Action, 0, 2*len(s.Loop.Markets))
	for _, mc := range s.Loop.Markets {
		actions = append(actions,
			quoter.Action{Kind: quoter.KindSequenceCheck, Market: mc.Instrument.Name, MarketIndex: mc.Instrument.Index, Seq: now},
			quoter.Action{Kind: quoter.KindCancelAll, Market: mc.Instrument.Name, MarketIndex: mc.Instrument.Index},
		)
	}
	if len(actions) == 0 {
		return
	}
	// 和执行循环一样按动作数分批
	for len(actions) > 0 {
		chunk := actions
		if s.Loop.Batch > 0 && len(chunk) > s.Loop.Batch {
			chunk = actions[:s.Loop.Batch]
		}
		actions = actions[len(chunk):]
		if _, err := s.Loop.Gateway.Submit(ctx, chunk, "shutdown cancel"); err != nil {
			s.Log.Warning("shutdown_cancel_error", map[string]interface{}{
				"error": fmt.Sprint(err),
			})
		}
	}
	s.Log.Event("shutdown_cancel_sent", map[string]interface{}{
		"markets": len(s.Loop.Markets),
	})
}
