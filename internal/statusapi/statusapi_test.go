package statusapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/bot"
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/engine"
	"github.com/execbot/gotrade/internal/journal"
	"github.com/execbot/gotrade/internal/tracker"
)

type stubBot struct {
	id     string
	report domain.ExecutionReport
}

func (s *stubBot) ID() string                        { return s.id }
func (s *stubBot) Cycle(ctx context.Context) error   { return nil }
func (s *stubBot) Status() bot.Status                { return bot.StatusRunning }
func (s *stubBot) StatusReason() string              { return "" }
func (s *stubBot) Report() domain.ExecutionReport    { return s.report }
func (s *stubBot) Trackers() []*tracker.Tracker      { return nil }
func (s *stubBot) Shutdown(ctx context.Context)      {}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(nil, nil, time.Second)
	_ = eng.Register(context.Background(), &stubBot{
		id: "bot1",
		report: domain.ExecutionReport{
			LongAmount:  10,
			Cost:        1000,
			AvgPrice:    100,
			TotalAmount: 10,
			TotalCash:   1000,
		},
	})
	return NewServer(eng, nil, ":0"), eng
}

func TestListBots(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Bots []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"bots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Bots) != 1 || body.Bots[0].ID != "bot1" || body.Bots[0].Status != "running" {
		t.Fatalf("body = %+v", body)
	}
}

func TestBotReport(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots/bot1/report", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Report map[string]float64 `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Report["long"] != 10 || body.Report["price"] != 100 {
		t.Fatalf("report = %+v", body.Report)
	}
}

func TestBotOrdersFromJournal(t *testing.T) {
	jnl, err := journal.Open(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer jnl.Close()

	eng := engine.New(nil, nil, time.Second)
	_ = eng.Register(context.Background(), &stubBot{id: "bot1"})
	if err := jnl.Record("bot1", &domain.Order{
		OrderID: "o1", Pair: "BTC/USDT", Account: "acc1",
		Side: domain.SideBuy, Price: 100, Amount: 1, DealtAmount: 1,
		Status: domain.OrderStatusCompleted,
	}, false); err != nil {
		t.Fatal(err)
	}

	s := NewServer(eng, jnl, ":0")
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots/bot1/orders", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Orders []struct {
			OrderID string `json:"orderID"`
		} `json:"orders"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Orders) != 1 || body.Orders[0].OrderID != "o1" {
		t.Fatalf("orders = %+v", body.Orders)
	}
}

func TestBotOrdersWithoutJournal(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots/bot1/orders", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestBotReportNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots/nope/report", nil)
	s.http.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
