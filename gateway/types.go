package gateway

import (
	"time"

	"perp-quoter-go/market"
)

// EventKind 是参考行情流的事件类别。
type EventKind string

const (
	EventBookChange  EventKind = "book_change"
	EventFundingRate EventKind = "funding_rate"
	EventTrade       EventKind = "trade"
)

// Event 是归一化后的参考行情事件。
type Event struct {
	Kind        EventKind
	Symbol      string
	Ts          time.Time
	Bids        []market.Level
	Asks        []market.Level
	FundingRate *float64 // 仅 EventFundingRate；流里缺失时为 nil
}

// AccountData 是批量拉取返回的单个账户原始字节。
type AccountData struct {
	Handle string
	Data   []byte
}
