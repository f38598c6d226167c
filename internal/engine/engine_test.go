package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/execbot/gotrade/internal/bot"
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/tracker"
	"github.com/execbot/gotrade/pkg/persistence"
)

// fakeBot 固定周期数后完成
type fakeBot struct {
	id          string
	cycles      atomic.Int64
	completeAt  int64
	trackers    []*tracker.Tracker
	shutdowns   atomic.Int64
}

func (f *fakeBot) ID() string           { return f.id }
func (f *fakeBot) StatusReason() string { return "" }
func (f *fakeBot) Report() domain.ExecutionReport {
	return domain.ExecutionReport{}
}
func (f *fakeBot) Trackers() []*tracker.Tracker { return f.trackers }
func (f *fakeBot) Shutdown(ctx context.Context) { f.shutdowns.Add(1) }

func (f *fakeBot) Cycle(ctx context.Context) error {
	f.cycles.Add(1)
	return nil
}

func (f *fakeBot) Status() bot.Status {
	if f.completeAt > 0 && f.cycles.Load() >= f.completeAt {
		return bot.StatusCompleted
	}
	return bot.StatusRunning
}

func TestScheduleUntilCompleted(t *testing.T) {
	e := New(nil, nil, 5*time.Millisecond)
	fb := &fakeBot{id: "b1", completeAt: 3}
	if err := e.Register(context.Background(), fb); err != nil {
		t.Fatalf("register: %v", err)
	}

	e.Run(context.Background())
	deadline := time.After(2 * time.Second)
	for fb.cycles.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("bot never completed, cycles=%d", fb.cycles.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	// 完成后调度退出，周期数不再增长
	settled := fb.cycles.Load()
	time.Sleep(50 * time.Millisecond)
	if fb.cycles.Load() != settled {
		t.Fatalf("scheduler kept cycling after completion")
	}

	e.Stop(context.Background())
	if fb.shutdowns.Load() != 1 {
		t.Fatalf("shutdowns = %d, want 1", fb.shutdowns.Load())
	}
}

func TestDuplicateRegistrationIgnored(t *testing.T) {
	e := New(nil, nil, time.Second)
	fb := &fakeBot{id: "dup"}
	_ = e.Register(context.Background(), fb)
	_ = e.Register(context.Background(), fb)
	if len(e.Bots()) != 1 {
		t.Fatalf("bots = %d, want 1", len(e.Bots()))
	}
}

func TestWarmRestartRoundTrip(t *testing.T) {
	svc := persistence.NewJSONFileService(t.TempDir())
	gw := exchange.NewMockGateway()

	// 第一代进程：tracker 攒出进度并随引擎关停落盘
	trk := tracker.New("warm-bot", "acc1", "BTC/USDT", gw)
	trk.SetPreload(domain.SideBuy, 7, 700)
	fb := &fakeBot{id: "warm-bot", trackers: []*tracker.Tracker{trk}}

	e := New(svc, nil, time.Second)
	if err := e.Register(context.Background(), fb); err != nil {
		t.Fatalf("register: %v", err)
	}
	e.Stop(context.Background())

	// 第二代进程：注册时自动恢复快照
	trk2 := tracker.New("warm-bot", "acc1", "BTC/USDT", gw)
	fb2 := &fakeBot{id: "warm-bot", trackers: []*tracker.Tracker{trk2}}
	e2 := New(svc, nil, time.Second)
	if err := e2.Register(context.Background(), fb2); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := trk2.Dealt(); got != 7 {
		t.Fatalf("restored dealt = %v, want 7", got)
	}
	if got := trk2.DealtPrice(); got != 100 {
		t.Fatalf("restored dealt price = %v, want 100", got)
	}
}
