package market

import (
	"math"
	"testing"
)

func TestUIToNative(t *testing.T) {
	ins := Instrument{TickSize: 0.01, StepSize: 0.5}
	priceLots, sizeLots := ins.UIToNative(99.85, 2.5)
	if priceLots != 9985 {
		t.Fatalf("unexpected price lots %d", priceLots)
	}
	if sizeLots != 5 {
		t.Fatalf("unexpected size lots %d", sizeLots)
	}
	// 价格四舍五入，数量向下取整
	priceLots, sizeLots = ins.UIToNative(99.856, 2.9)
	if priceLots != 9986 {
		t.Fatalf("expected rounded price lots 9986 got %d", priceLots)
	}
	if sizeLots != 5 {
		t.Fatalf("expected floored size lots 5 got %d", sizeLots)
	}
}

func TestUIToNativeNonFinite(t *testing.T) {
	ins := Instrument{TickSize: 0.01, StepSize: 0.5}
	cases := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1, 0}
	for _, v := range cases {
		priceLots, sizeLots := ins.UIToNative(v, v)
		if priceLots != 0 || sizeLots != 0 {
			t.Fatalf("input %f: expected zero lots got %d/%d", v, priceLots, sizeLots)
		}
	}
}

func TestPriceRoundTrip(t *testing.T) {
	ins := Instrument{TickSize: 0.25, StepSize: 0.125}
	if p := ins.PriceToUI(400); p != 100 {
		t.Fatalf("unexpected price %f", p)
	}
	if s := ins.SizeToUI(8); s != 1 {
		t.Fatalf("unexpected size %f", s)
	}
}
