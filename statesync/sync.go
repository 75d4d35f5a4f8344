package statesync

import (
	"context"
	"fmt"
	"time"

	"perp-quoter-go/gateway"
	"perp-quoter-go/infrastructure/logger"
	"perp-quoter-go/market"
	"perp-quoter-go/metrics"
)

// Synchronizer 周期性拉取链上账户状态并整体发布。
// 每轮重建完整快照后一次性替换 SharedBundle 与各市场订单簿，
// 决策循环永远看到同一轮拉取的权益、仓位与簿。
type Synchronizer struct {
	Provider gateway.StateProvider
	Markets  []*market.Context
	Shared   *market.SharedBundle

	AccountHandle string
	CacheHandle   string

	Interval time.Duration // 0 取 1s
	Log      *logger.Logger
}

// Run 阻塞运行同步循环，直到 ctx 取消。
// 单轮失败只计数并重试，不会让旧快照失效。
func (s *Synchronizer) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		if err := s.SyncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.StateSyncErrors.Inc()
			s.Log.Warning("state_sync_error", map[string]interface{}{
				"error": err.Error(),
			})
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// SyncOnce 执行一轮完整同步：
// 先拉取价格缓存、主账户与全部市场簿，再按主账户指向的
// open-orders 账户补拉挂单，最后原子发布。
func (s *Synchronizer) SyncOnce(ctx context.Context) error {
	handles := make([]string, 0, 2+2*len(s.Markets))
	handles = append(handles, s.CacheHandle, s.AccountHandle)
	for _, mc := range s.Markets {
		handles = append(handles, mc.Instrument.BidsHandle, mc.Instrument.AsksHandle)
	}

	batch, err := s.Provider.FetchBatch(ctx, handles)
	if err != nil {
		return fmt.Errorf("fetch state batch: %w", err)
	}
	if len(batch) != len(handles) {
		return fmt.Errorf("state batch: want %d accounts, got %d", len(handles), len(batch))
	}

	cache, err := s.Provider.DecodeCache(batch[0].Data)
	if err != nil {
		return err
	}
	account, err := s.Provider.DecodeAccount(batch[1].Data)
	if err != nil {
		return err
	}

	now := time.Now()
	books := make([]*market.BookSnapshot, len(s.Markets))
	for i, mc := range s.Markets {
		bids, err := s.Provider.DecodeOrderbook(batch[2+2*i].Data)
		if err != nil {
			return fmt.Errorf("market %s bids: %w", mc.Instrument.Name, err)
		}
		asks, err := s.Provider.DecodeOrderbook(batch[3+2*i].Data)
		if err != nil {
			return fmt.Errorf("market %s asks: %w", mc.Instrument.Name, err)
		}
		books[i] = &market.BookSnapshot{Bids: bids, Asks: asks}
	}

	if len(account.OpenOrdersHandles) > 0 {
		if err := s.fillOpenOrders(ctx, account); err != nil {
			return err
		}
	}

	// 快照齐备后再对外可见
	for i, mc := range s.Markets {
		mc.SetBook(books[i], now)
	}
	s.Shared.Publish(&market.Bundle{Account: account, Cache: cache})

	metrics.StateSyncs.Inc()
	metrics.Equity.Set(account.Equity)
	for _, mc := range s.Markets {
		if price, ok := cache.Price(mc.Instrument.Index); ok {
			metrics.PositionNotional.WithLabelValues(mc.Instrument.Name).
				Set(account.BasePosition(mc.Instrument.Index) * price)
		}
	}
	return nil
}

func (s *Synchronizer) fillOpenOrders(ctx context.Context, account *market.AccountSnapshot) error {
	batch, err := s.Provider.FetchBatch(ctx, account.OpenOrdersHandles)
	if err != nil {
		return fmt.Errorf("fetch open orders: %w", err)
	}
	for _, data := range batch {
		chunk, err := s.Provider.DecodeOpenOrders(data.Data)
		if err != nil {
			return fmt.Errorf("open orders %s: %w", data.Handle, err)
		}
		account.OpenOrders = append(account.OpenOrders, chunk.Orders...)
	}
	return nil
}
