package gate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/domain"
)

type fakeProgress struct {
	dealt      float64
	notional   float64
	net        float64
	lastUpdate time.Time
}

func (f *fakeProgress) Dealt() float64             { return f.dealt }
func (f *fakeProgress) DealtNotional() float64     { return f.notional }
func (f *fakeProgress) NetPosition() float64       { return f.net }
func (f *fakeProgress) LastOrderUpdate() time.Time { return f.lastUpdate }

type fakeRefPricer struct {
	mid float64
	err error
}

func (f *fakeRefPricer) Mid(ctx context.Context, exchange, pair string) (float64, error) {
	return f.mid, f.err
}

func freshBook() *domain.OrderBook {
	return &domain.OrderBook{
		Pair:      "BTC/USDT",
		Bids:      []domain.PriceLevel{{Price: 100, Amount: 10}},
		Asks:      []domain.PriceLevel{{Price: 100.1, Amount: 10}},
		Timestamp: time.Now(),
	}
}

func spotInput() Input {
	return Input{
		Book: freshBook(),
		Balances: domain.AccountBalances{
			"USDT": {Asset: "USDT", Available: 100000},
			"BTC":  {Asset: "BTC", Available: 10},
		},
		Account: &domain.AccountConfig{Account: "acc1", Exchange: "test", Leverage: 1},
		Inst: &domain.InstrumentInfo{
			Pair:       "BTC/USDT",
			BaseAsset:  "BTC",
			QuoteAsset: "USDT",
			TickSize:   0.01,
			Multiplier: 1,
		},
		Side:     domain.SideBuy,
		Price:    100,
		Amount:   1,
		Progress: &fakeProgress{},
		Now:      time.Now(),
	}
}

func baseConfig() Config {
	return Config{
		MaxBookAge:   10 * time.Second,
		ReserveBase:  ReserveDisabled,
		ReserveQuote: ReserveDisabled,
	}
}

func TestAllReady(t *testing.T) {
	g := New(baseConfig(), nil)
	mask := g.Check(context.Background(), spotInput())
	if !mask.Ready() {
		t.Fatalf("mask = %s, want ready", mask)
	}
}

func TestBookStale(t *testing.T) {
	g := New(baseConfig(), nil)
	in := spotInput()
	in.Book.Timestamp = time.Now().Add(-time.Minute)

	mask := g.Check(context.Background(), in)
	if !mask.Has(domain.NotReadyBook) {
		t.Fatalf("mask = %s, want book bit", mask)
	}
}

func TestBookEmptySide(t *testing.T) {
	g := New(baseConfig(), nil)
	in := spotInput()
	in.Book.Asks = nil

	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyBook) {
		t.Fatalf("mask = %s, want book bit", mask)
	}
}

func TestBookOlderThanOwnOrderUpdate(t *testing.T) {
	g := New(baseConfig(), nil)
	in := spotInput()
	in.Account.RefreshDelayMs = 500
	// 自家订单 100ms 前有变动，快照必须晚于变动时间+500ms 刷新延迟
	in.Progress = &fakeProgress{lastUpdate: time.Now().Add(-100 * time.Millisecond)}

	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyBook) {
		t.Fatalf("mask = %s, want book bit", mask)
	}

	// 变动已是很久以前，快照足够新
	in.Progress = &fakeProgress{lastUpdate: time.Now().Add(-time.Minute)}
	if mask := g.Check(context.Background(), in); mask.Has(domain.NotReadyBook) {
		t.Fatalf("mask = %s, book bit set on fresh snapshot", mask)
	}
}

func TestBalanceSpot(t *testing.T) {
	g := New(baseConfig(), nil)

	// 买方看计价资产
	in := spotInput()
	in.Balances["USDT"] = domain.Balance{Asset: "USDT", Available: 50}
	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyBalance) {
		t.Fatalf("mask = %s, want balance bit on short quote", mask)
	}

	// 卖方看基础资产
	in = spotInput()
	in.Side = domain.SideSell
	in.Balances["BTC"] = domain.Balance{Asset: "BTC", Available: 0.5}
	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyBalance) {
		t.Fatalf("mask = %s, want balance bit on short base", mask)
	}
}

func TestBalanceDerivativeDualSide(t *testing.T) {
	g := New(baseConfig(), nil)
	in := spotInput()
	in.Account.IsDerivative = true
	in.Account.IsDualSide = true
	in.Account.Leverage = 10
	// 名义 100，杠杆 10 → 需要保证金 10
	in.Balances["USDT"] = domain.Balance{Asset: "USDT", LongAvailable: 15, ShortAvailable: 5}

	if mask := g.Check(context.Background(), in); mask.Has(domain.NotReadyBalance) {
		t.Fatalf("mask = %s, long margin 15 should cover 10", mask)
	}
	in.Side = domain.SideSell
	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyBalance) {
		t.Fatalf("mask = %s, short margin 5 cannot cover 10", mask)
	}
}

func TestReserveFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.ReserveQuote = 99950
	g := New(cfg, nil)
	in := spotInput() // 10 万 USDT，下单 100 后剩 99900 < 99950

	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyReserve) {
		t.Fatalf("mask = %s, want reserve bit", mask)
	}

	cfg.ReserveQuote = 1000
	g = New(cfg, nil)
	if mask := g.Check(context.Background(), in); mask.Has(domain.NotReadyReserve) {
		t.Fatalf("mask = %s, reserve bit set with ample balance", mask)
	}
}

func TestReserveSentinelDisables(t *testing.T) {
	cfg := baseConfig()
	cfg.ReserveQuote = ReserveDisabled
	g := New(cfg, nil)
	in := spotInput()
	// 即使下单后余额为负，-1 哨兵也不触发 reserve 位
	in.Balances["USDT"] = domain.Balance{Asset: "USDT", Available: 10}

	mask := g.Check(context.Background(), in)
	if mask.Has(domain.NotReadyReserve) {
		t.Fatalf("mask = %s, sentinel did not disable reserve check", mask)
	}
	// 余额不足仍由 balance 位报告
	if !mask.Has(domain.NotReadyBalance) {
		t.Fatalf("mask = %s, want balance bit", mask)
	}
}

func TestTriggerCondition(t *testing.T) {
	cfg := baseConfig()
	cfg.Trigger = domain.ParseTriggerCondition("binance:btc_usdt:>=:97000")

	// 参考价满足
	g := New(cfg, &fakeRefPricer{mid: 98000})
	if mask := g.Check(context.Background(), spotInput()); mask.Has(domain.NotReadyTrigger) {
		t.Fatalf("mask = %s, trigger bit set though satisfied", mask)
	}
	// 参考价不满足
	g = New(cfg, &fakeRefPricer{mid: 96000})
	if mask := g.Check(context.Background(), spotInput()); !mask.Has(domain.NotReadyTrigger) {
		t.Fatalf("mask = %s, want trigger bit", mask)
	}
	// 不可验证（服务出错）按未满足处理
	g = New(cfg, &fakeRefPricer{err: fmt.Errorf("timeout")})
	if mask := g.Check(context.Background(), spotInput()); !mask.Has(domain.NotReadyTrigger) {
		t.Fatalf("mask = %s, want trigger bit on unverifiable condition", mask)
	}
}

func TestStopCondition(t *testing.T) {
	cfg := baseConfig()
	cfg.Stop = domain.ParseStopCondition("USDT:<:1000")
	g := New(cfg, nil)

	in := spotInput()
	if mask := g.Check(context.Background(), in); mask.Has(domain.NotReadyStop) {
		t.Fatalf("mask = %s, stop bit set though balance above threshold", mask)
	}
	in.Balances["USDT"] = domain.Balance{Asset: "USDT", Available: 500}
	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyStop) {
		t.Fatalf("mask = %s, want stop bit", mask)
	}
}

func TestTargetAmountIdempotent(t *testing.T) {
	cfg := baseConfig()
	cfg.Target = Target{Kind: TargetAmount, Value: 100}
	g := New(cfg, nil)

	in := spotInput()
	in.Progress = &fakeProgress{dealt: 99.9}
	if mask := g.Check(context.Background(), in); mask.Has(domain.NotReadyTarget) {
		t.Fatalf("mask = %s, target bit set before target reached", mask)
	}

	// 达成后永久阻塞
	in.Progress = &fakeProgress{dealt: 100}
	for i := 0; i < 3; i++ {
		if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyTarget) {
			t.Fatalf("mask = %s, want target bit (check %d)", mask, i)
		}
	}
}

func TestTargetNotional(t *testing.T) {
	cfg := baseConfig()
	cfg.Target = Target{Kind: TargetNotional, Value: 5000}
	g := New(cfg, nil)

	in := spotInput()
	in.Progress = &fakeProgress{notional: 5001}
	if mask := g.Check(context.Background(), in); !mask.Has(domain.NotReadyTarget) {
		t.Fatalf("mask = %s, want target bit", mask)
	}
}

func TestTargetNetPositionTruthTable(t *testing.T) {
	cases := []struct {
		target  float64
		side    domain.Side
		net     float64
		reached bool
	}{
		// 正目标：买方推进，卖方恒判达成
		{100, domain.SideBuy, 50, false},
		{100, domain.SideBuy, 100, true},
		{100, domain.SideBuy, 150, true},
		{100, domain.SideSell, 0, true},
		{100, domain.SideSell, 200, true},
		// 负目标：卖方推进，买方恒判达成
		{-100, domain.SideSell, -50, false},
		{-100, domain.SideSell, -100, true},
		{-100, domain.SideBuy, 0, true},
	}
	for _, c := range cases {
		cfg := baseConfig()
		cfg.Target = Target{Kind: TargetNetPosition, Value: c.target}
		g := New(cfg, nil)
		in := spotInput()
		in.Side = c.side
		in.Progress = &fakeProgress{net: c.net}

		got := g.Check(context.Background(), in).Has(domain.NotReadyTarget)
		if got != c.reached {
			t.Fatalf("target=%v side=%s net=%v: reached=%v, want %v", c.target, c.side, c.net, got, c.reached)
		}
	}
}

func TestMultipleBitsSetTogether(t *testing.T) {
	cfg := baseConfig()
	cfg.Target = Target{Kind: TargetAmount, Value: 10}
	g := New(cfg, nil)

	in := spotInput()
	in.Book.Timestamp = time.Now().Add(-time.Minute)
	in.Balances["USDT"] = domain.Balance{Asset: "USDT", Available: 1}
	in.Progress = &fakeProgress{dealt: 10}

	mask := g.Check(context.Background(), in)
	for _, bit := range []domain.NotReady{domain.NotReadyBook, domain.NotReadyBalance, domain.NotReadyTarget} {
		if !mask.Has(bit) {
			t.Fatalf("mask = %s, missing bit %s", mask, bit)
		}
	}
}
