package pricing

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/domain"
)

func testBook(bid, bidVol, ask, askVol float64) *domain.OrderBook {
	return &domain.OrderBook{
		Pair:      "BTC/USDT",
		Bids:      []domain.PriceLevel{{Price: bid, Amount: bidVol}},
		Asks:      []domain.PriceLevel{{Price: ask, Amount: askVol}},
		Source:    "test",
		Timestamp: time.Now(),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestVanillaPrice(t *testing.T) {
	v := NewVanilla(0.01, Bounds{})
	book := testBook(99.90, 1, 100.10, 1)

	if p, ok := v.Price(book, domain.SideBuy); !ok || !almostEqual(p, 100.09) {
		t.Fatalf("buy price = %v ok=%v, want 100.09", p, ok)
	}
	if p, ok := v.Price(book, domain.SideSell); !ok || !almostEqual(p, 99.91) {
		t.Fatalf("sell price = %v ok=%v, want 99.91", p, ok)
	}
}

func TestVanillaBounds(t *testing.T) {
	v := NewVanilla(0.01, Bounds{MinPrice: 50, MaxPrice: 100})
	book := testBook(100.50, 1, 100.60, 1)

	// 买价 100.59 超过上界，不交易
	if _, ok := v.Price(book, domain.SideBuy); ok {
		t.Fatalf("out-of-bounds price was not rejected")
	}
}

func TestCrossedBookNoTrade(t *testing.T) {
	crossed := testBook(100.10, 1, 100.00, 1) // ask <= bid
	strategies := []Strategy{
		NewVanilla(0.01, Bounds{}),
		NewDepthAware(0.01, 0.01, 3, Bounds{}),
		NewAggressive(domain.AggOnTop, 0.01, 0, Bounds{}),
	}
	for i, s := range strategies {
		for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
			if _, ok := s.Price(crossed, side); ok {
				t.Fatalf("strategy %d produced a price on crossed book, side=%s", i, side)
			}
		}
	}
}

func TestInvalidBookNoTrade(t *testing.T) {
	v := NewVanilla(0.01, Bounds{})

	empty := &domain.OrderBook{Pair: "X", Timestamp: time.Now()}
	if _, ok := v.Price(empty, domain.SideBuy); ok {
		t.Fatalf("empty book produced a price")
	}
	noTS := testBook(99, 1, 100, 1)
	noTS.Timestamp = time.Time{}
	if _, ok := v.Price(noTS, domain.SideBuy); ok {
		t.Fatalf("untimestamped book produced a price")
	}
}

func TestDepthAwareCrossOnImbalance(t *testing.T) {
	d := NewDepthAware(0.01, 0.01, 5, Bounds{})
	// 价差 0.02 ≤ 5 tick；买一量是卖一量的 5 倍 → 直接穿越
	book := testBook(100.00, 50, 100.02, 10)

	p, ok := d.Price(book, domain.SideBuy)
	if !ok {
		t.Fatalf("no trade on dominant imbalance")
	}
	// 精确等于 ask − increment，不走插值分支
	if p != 100.02-0.01 {
		t.Fatalf("price = %v, want exactly %v", p, 100.02-0.01)
	}
}

func TestDepthAwareNarrowSpreadInterp(t *testing.T) {
	d := NewDepthAware(0.01, 0.01, 5, Bounds{})
	// 量比不足 5 倍 → 从被动侧插值 0.75
	book := testBook(100.00, 20, 100.04, 10)

	p, ok := d.Price(book, domain.SideBuy)
	if !ok {
		t.Fatalf("no trade on balanced book")
	}
	want := SnapToTick(100.00+0.75*0.04, 0.01)
	if !almostEqual(p, want) {
		t.Fatalf("price = %v, want %v", p, want)
	}
}

func TestDepthAwareWideSpread(t *testing.T) {
	d := NewDepthAware(0.01, 0.01, 3, Bounds{})
	spread := 0.10 // > 3 tick

	// 第一档与累计量同时占优 → 穿越
	both := testBook(100.00, 50, 100.00+spread, 10)
	if p, ok := d.Price(both, domain.SideBuy); !ok || p != 100.10-0.01 {
		t.Fatalf("both-dominant price = %v ok=%v, want %v", p, ok, 100.10-0.01)
	}

	// 仅第一档占优 → 0.9 插值
	topOnly := &domain.OrderBook{
		Pair: "BTC/USDT",
		Bids: []domain.PriceLevel{{Price: 100.00, Amount: 50}},
		Asks: []domain.PriceLevel{
			{Price: 100.10, Amount: 10},
			{Price: 100.11, Amount: 500},
		},
		Timestamp: time.Now(),
	}
	wantTop := SnapToTick(100.00+0.9*spread, 0.01)
	if p, ok := d.Price(topOnly, domain.SideBuy); !ok || !almostEqual(p, wantTop) {
		t.Fatalf("top-dominant price = %v ok=%v, want %v", p, ok, wantTop)
	}

	// 均不占优 → 0.85 插值
	neither := testBook(100.00, 20, 100.10, 10)
	wantMid := SnapToTick(100.00+0.85*spread, 0.01)
	if p, ok := d.Price(neither, domain.SideBuy); !ok || !almostEqual(p, wantMid) {
		t.Fatalf("neutral price = %v ok=%v, want %v", p, ok, wantMid)
	}
}

func TestAggressiveTable(t *testing.T) {
	book := testBook(100.00, 1, 100.10, 1)
	tick := 0.01

	cases := []struct {
		level   domain.Aggressiveness
		mult    float64
		side    domain.Side
		want    float64
	}{
		{domain.AggLimitAtBest, 0, domain.SideBuy, 100.00},
		{domain.AggLimitAtBest, 0, domain.SideSell, 100.10},
		{domain.AggTickWorse, 0, domain.SideBuy, 99.99},
		{domain.AggTickWorse, 0, domain.SideSell, 100.11},
		{domain.AggOnTop, 0, domain.SideBuy, 100.01},
		{domain.AggOnTop, 0, domain.SideSell, 100.09},
		{domain.AggOnTopSpread, 0, domain.SideBuy, 100.01},
		{domain.AggManualOffset, 3, domain.SideBuy, 100.03},
		{domain.AggManualOffset, 3, domain.SideSell, 100.07},
		{domain.AggSuperCross, 2, domain.SideBuy, 100.12},
		{domain.AggSuperCross, 2, domain.SideSell, 99.98},
	}
	for _, c := range cases {
		a := NewAggressive(c.level, tick, c.mult, Bounds{})
		p, ok := a.Price(book, c.side)
		if !ok || !almostEqual(p, c.want) {
			t.Fatalf("level=%d side=%s price=%v ok=%v, want %v", c.level, c.side, p, ok, c.want)
		}
	}
}

func TestAggressiveOnTopSpreadFallsBack(t *testing.T) {
	// 价差只有 1 tick，压价会倒挂 → 退回挂最优价
	book := testBook(100.00, 1, 100.01, 1)
	a := NewAggressive(domain.AggOnTopSpread, 0.01, 0, Bounds{})

	if p, ok := a.Price(book, domain.SideBuy); !ok || !almostEqual(p, 100.00) {
		t.Fatalf("buy price = %v ok=%v, want 100.00", p, ok)
	}
	if p, ok := a.Price(book, domain.SideSell); !ok || !almostEqual(p, 100.01) {
		t.Fatalf("sell price = %v ok=%v, want 100.01", p, ok)
	}
}

func TestAggressiveTakeAll(t *testing.T) {
	book := testBook(100.00, 1, 100.10, 1)
	a := NewAggressive(domain.AggTakeAll, 0.01, 0, Bounds{})

	p, ok := a.Price(book, domain.SideBuy)
	if !ok || p <= 100.10 {
		t.Fatalf("take-all buy price = %v ok=%v, want > ask", p, ok)
	}
	p, ok = a.Price(book, domain.SideSell)
	if !ok || p >= 100.00 {
		t.Fatalf("take-all sell price = %v ok=%v, want < bid", p, ok)
	}
}

func TestSliceFromWindow(t *testing.T) {
	// 目标 240000，等待窗口 15~45s，平均 30s → 240000/(86400/30) = 83.33
	got := SliceFromWindow(240000, 15, 45)
	if math.Abs(got-83.333333333) > 1e-6 {
		t.Fatalf("slice = %v, want 83.333333", got)
	}

	if got := SliceFromWindow(100, 0, 0); got != 0 {
		t.Fatalf("zero window slice = %v, want 0", got)
	}
}

func TestRandomizedAmount(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	slice := 100.0
	for i := 0; i < 1000; i++ {
		got := RandomizedAmount(slice, DefaultRandomRatio, 4, rng)
		if got < slice*0.8-1e-4 || got > slice*1.2 {
			t.Fatalf("randomized amount %v outside [80,120]", got)
		}
		// 精度 4 位小数
		scaled := got * 1e4
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("amount %v not rounded to 4 decimals", got)
		}
	}
}

func TestPairedLegAmount(t *testing.T) {
	inst := &domain.InstrumentInfo{
		Pair:           "ETH/USDT",
		TickSize:       0.01,
		AmountPrec:     3,
		MinOrderAmount: 0.01,
		MinNotional:    10,
	}

	// 名义缺口 5000，价格 2500 → 2 个
	if got := PairedLegAmount(5000, 2500, inst); !almostEqual(got, 2) {
		t.Fatalf("amount = %v, want 2", got)
	}
	// 缺口为负（本腿领先）→ 不交易
	if got := PairedLegAmount(-5000, 2500, inst); got != 0 {
		t.Fatalf("negative gap amount = %v, want 0", got)
	}
	// 缺口折算后低于最小名义 → 不交易
	if got := PairedLegAmount(5, 2500, inst); got != 0 {
		t.Fatalf("sub-minimum amount = %v, want 0", got)
	}
	// 价格缺失 → 不交易
	if got := PairedLegAmount(5000, 0, inst); got != 0 {
		t.Fatalf("missing price amount = %v, want 0", got)
	}
}
