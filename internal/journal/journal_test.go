package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/domain"
)

func testOrder(id string, dealt float64) *domain.Order {
	now := time.Now().Truncate(time.Millisecond)
	return &domain.Order{
		OrderID:     id,
		Pair:        "BTC/USDT",
		Account:     "acc1",
		Side:        domain.SideBuy,
		Price:       100,
		Amount:      5,
		DealtAmount: dealt,
		Status:      domain.OrderStatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRecordAndQuery(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	if err := j.Record("bot1", testOrder("o1", 5), false); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Record("bot1", testOrder("o2", 2), true); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Record("bot2", testOrder("o3", 1), false); err != nil {
		t.Fatalf("record: %v", err)
	}

	orders, err := j.Orders("bot1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(orders))
	}
	got := orders[0]
	if got.OrderID != "o1" || got.DealtAmount != 5 || got.Side != domain.SideBuy {
		t.Fatalf("order mismatch: %+v", got)
	}
	if got.Status != domain.OrderStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestRecordIdempotent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	o := testOrder("dup", 3)
	for i := 0; i < 3; i++ {
		if err := j.Record("bot1", o, false); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	orders, err := j.Orders("bot1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1 (idempotent insert)", len(orders))
	}
}
