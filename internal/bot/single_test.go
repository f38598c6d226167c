package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/coordinator"
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/gate"
	"github.com/execbot/gotrade/internal/pricing"
	"github.com/execbot/gotrade/internal/tracker"
)

func newSingleFixture(t *testing.T, target float64) (*SingleLeg, *exchange.MockGateway) {
	t.Helper()
	mock := exchange.NewMockGateway()
	mock.SetOrderBook("BTC/USDT", &domain.OrderBook{
		Pair:      "BTC/USDT",
		Bids:      []domain.PriceLevel{{Price: 99.99, Amount: 10}},
		Asks:      []domain.PriceLevel{{Price: 100.01, Amount: 10}},
		Timestamp: time.Now(),
	})
	mock.SetBalances("acc1", domain.AccountBalances{
		"USDT": {Asset: "USDT", Available: 1e6},
		"BTC":  {Asset: "BTC", Available: 100},
	})
	mock.SetInstrumentInfo("BTC/USDT", &domain.InstrumentInfo{
		Pair:           "BTC/USDT",
		BaseAsset:      "BTC",
		QuoteAsset:     "USDT",
		TickSize:       0.01,
		AmountPrec:     4,
		MinOrderAmount: 0.01,
		Multiplier:     1,
	})

	gw := exchange.NewCachedGateway(mock)
	leg := &domain.Leg{
		Pair:         "BTC/USDT",
		Account:      "acc1",
		Side:         domain.SideBuy,
		TargetAmount: target,
		SliceAmount:  1,
		OrderType:    domain.OrderTypeLimit,
		Status:       domain.LegWaiting,
	}
	trk := tracker.New("single-test", "acc1", "BTC/USDT", gw)
	g := gate.New(gate.Config{
		MaxBookAge:   time.Minute,
		ReserveBase:  gate.ReserveDisabled,
		ReserveQuote: gate.ReserveDisabled,
	}, nil)
	strategy := pricing.NewVanilla(0.01, pricing.Bounds{})
	coord := coordinator.New(leg, gw, trk, g, strategy, coordinator.Config{})
	return NewSingleLeg("single-test", gw, coord), mock
}

func TestCycleSubmitsOrder(t *testing.T) {
	b, mock := newSingleFixture(t, 100)
	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if mock.OpenOrderCount() != 1 {
		t.Fatalf("open orders = %d, want 1", mock.OpenOrderCount())
	}
	if b.Status() != StatusRunning {
		t.Fatalf("status = %s, want running", b.Status())
	}
}

func TestCycleNonReentrant(t *testing.T) {
	b, _ := newSingleFixture(t, 100)
	b.cycling.Store(true)

	err := b.Cycle(context.Background())
	var reentrant ErrReentrantCycle
	if !errors.As(err, &reentrant) {
		t.Fatalf("err = %v, want ErrReentrantCycle", err)
	}
}

func TestCycleSkipsOnMarketDataError(t *testing.T) {
	b, mock := newSingleFixture(t, 100)
	mock.SetOrderBook("BTC/USDT", nil)

	// 行情拿不到：周期跳过，不报错也不下单
	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if mock.OpenOrderCount() != 0 {
		t.Fatalf("order submitted without market data")
	}
	if b.Status() != StatusRunning {
		t.Fatalf("status = %s, want running", b.Status())
	}
}

func TestBotCompletes(t *testing.T) {
	b, _ := newSingleFixture(t, 0.005) // 低于最小下单量，第一个周期即完成
	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if b.Status() != StatusCompleted {
		t.Fatalf("status = %s, want completed", b.Status())
	}
	// 完成后周期变为空操作
	if err := b.Cycle(context.Background()); err != nil {
		t.Fatalf("cycle after completion: %v", err)
	}
}
