package gateway

import (
	"testing"
	"time"
)

func TestParseFeedFrameBookChange(t *testing.T) {
	raw := []byte(`{
		"type": "book_change",
		"symbol": "SOLUSDT",
		"timestamp": 1700000000000,
		"bids": [[100.5, 2], [100.4, 0]],
		"asks": [[100.6, 1.5]]
	}`)
	ev, ok, err := ParseFeedFrame(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected frame to be accepted")
	}
	if ev.Kind != EventBookChange || ev.Symbol != "SOLUSDT" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.Ts.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected ts %v", ev.Ts)
	}
	if len(ev.Bids) != 2 || ev.Bids[0].Price != 100.5 || ev.Bids[0].Size != 2 {
		t.Fatalf("unexpected bids %+v", ev.Bids)
	}
	// size 0 原样传递，由参考簿删除档位
	if ev.Bids[1].Size != 0 {
		t.Fatalf("expected zero size preserved, got %f", ev.Bids[1].Size)
	}
	if len(ev.Asks) != 1 || ev.Asks[0].Price != 100.6 {
		t.Fatalf("unexpected asks %+v", ev.Asks)
	}
}

func TestParseFeedFrameFundingRate(t *testing.T) {
	ev, ok, err := ParseFeedFrame([]byte(`{"type": "funding_rate", "symbol": "SOLUSDT", "timestamp": 1, "fundingRate": 0.0001}`))
	if err != nil || !ok {
		t.Fatalf("unexpected result err=%v ok=%v", err, ok)
	}
	if ev.FundingRate == nil || *ev.FundingRate != 0.0001 {
		t.Fatalf("unexpected funding rate %+v", ev.FundingRate)
	}

	// 流里缺失 rate 时保持 nil，消费方据此跳过
	ev, ok, err = ParseFeedFrame([]byte(`{"type": "funding_rate", "symbol": "SOLUSDT", "timestamp": 1}`))
	if err != nil || !ok {
		t.Fatalf("unexpected result err=%v ok=%v", err, ok)
	}
	if ev.FundingRate != nil {
		t.Fatalf("expected nil funding rate, got %f", *ev.FundingRate)
	}
}

func TestParseFeedFrameIgnoresUnknown(t *testing.T) {
	if _, ok, err := ParseFeedFrame([]byte(`{"type": "heartbeat"}`)); ok || err != nil {
		t.Fatalf("heartbeat should be skipped (ok=%v err=%v)", ok, err)
	}
	if _, ok, err := ParseFeedFrame([]byte(`not json`)); ok || err == nil {
		t.Fatalf("invalid json should error (ok=%v err=%v)", ok, err)
	}
}
