package bot

import (
	"context"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/coordinator"
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/gate"
	"github.com/execbot/gotrade/internal/pricing"
	"github.com/execbot/gotrade/internal/tracker"
)

func dualFixture(t *testing.T) (*DualLeg, *exchange.MockGateway) {
	t.Helper()
	mock := exchange.NewMockGateway()
	for pair, mid := range map[string]float64{"BTC/USDT": 100, "ETH/USDT": 50} {
		mock.SetOrderBook(pair, &domain.OrderBook{
			Pair:      pair,
			Bids:      []domain.PriceLevel{{Price: mid - 0.01, Amount: 10}},
			Asks:      []domain.PriceLevel{{Price: mid + 0.01, Amount: 10}},
			Timestamp: time.Now(),
		})
		mock.SetInstrumentInfo(pair, &domain.InstrumentInfo{
			Pair:           pair,
			BaseAsset:      pair[:3],
			QuoteAsset:     "USDT",
			TickSize:       0.01,
			AmountPrec:     4,
			MinOrderAmount: 0.01,
			MinNotional:    10,
			Multiplier:     1,
		})
	}
	mock.SetBalances("acc1", domain.AccountBalances{
		"USDT": {Asset: "USDT", Available: 1e6},
		"BTC":  {Asset: "BTC", Available: 100},
		"ETH":  {Asset: "ETH", Available: 100},
	})

	gw := exchange.NewCachedGateway(mock)
	g := gate.New(gate.Config{
		MaxBookAge:   time.Minute,
		ReserveBase:  gate.ReserveDisabled,
		ReserveQuote: gate.ReserveDisabled,
	}, nil)

	newCoord := func(pair string, side domain.Side, cfg coordinator.Config) *coordinator.Coordinator {
		leg := &domain.Leg{
			Pair:         pair,
			Account:      "acc1",
			Side:         side,
			TargetAmount: 1000,
			SliceAmount:  1,
			OrderType:    domain.OrderTypeLimit,
			Status:       domain.LegWaiting,
		}
		trk := tracker.New("dual-"+pair, "acc1", pair, gw)
		return coordinator.New(leg, gw, trk, g, pricing.NewVanilla(0.01, pricing.Bounds{}), cfg)
	}

	primary := newCoord("BTC/USDT", domain.SideBuy, coordinator.Config{IsPrimary: true})
	secondary := newCoord("ETH/USDT", domain.SideSell, coordinator.Config{})
	return NewDualLeg("dual-test", gw, primary, secondary, nil), mock
}

func TestDualLegWiring(t *testing.T) {
	b, _ := dualFixture(t)
	p := b.primary.Leg()
	s := b.secondary.Leg()
	if p.Counterpart != s || s.Counterpart != p {
		t.Fatalf("counterpart back-references not wired")
	}
}

func TestDualLegSecondaryChasesPrimary(t *testing.T) {
	b, mock := dualFixture(t)
	ctx := context.Background()

	// 第一个周期：主腿下单；从腿 gap 为 0，按依赖等待
	if err := b.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if mock.OpenOrderCount() != 1 {
		t.Fatalf("open orders = %d, want 1 (primary only)", mock.OpenOrderCount())
	}
	if !b.secondary.Leg().Blocked.Has(domain.NotReadyDepend) {
		t.Fatalf("secondary blocked = %s, want depend bit", b.secondary.Leg().Blocked)
	}

	// 主腿攒出名义进度后，从腿开始追赶
	b.primary.Tracker().SetPreload(domain.SideBuy, 5, 500)
	if err := b.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if mock.OpenOrderCount() != 2 {
		t.Fatalf("open orders = %d, want 2 (both legs)", mock.OpenOrderCount())
	}
	if b.secondary.Leg().Status != domain.LegOrderSubmitted {
		t.Fatalf("secondary status = %s, want order_submitted", b.secondary.Leg().Status)
	}
}

func TestDualLegCompletesAfterCatchUp(t *testing.T) {
	b, _ := dualFixture(t)
	ctx := context.Background()

	// 主腿达成目标，从腿名义已追平：一个周期内两腿都应终结
	b.primary.Leg().TargetAmount = 1
	b.primary.Tracker().SetPreload(domain.SideBuy, 1, 100)
	b.secondary.Tracker().SetPreload(domain.SideSell, 2, 100)

	if err := b.Cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if b.primary.Leg().Status != domain.LegCompleted {
		t.Fatalf("primary status = %s, want completed", b.primary.Leg().Status)
	}
	if b.secondary.Leg().Status != domain.LegCompleted {
		t.Fatalf("secondary status = %s, want completed", b.secondary.Leg().Status)
	}
	if b.Status() != StatusCompleted {
		t.Fatalf("bot status = %s, want completed", b.Status())
	}

	// 终结后的周期不再动作
	if err := b.Cycle(ctx); err != nil {
		t.Fatalf("cycle after completion: %v", err)
	}
	if b.Status() != StatusCompleted {
		t.Fatalf("bot status = %s, completion is terminal", b.Status())
	}
}
