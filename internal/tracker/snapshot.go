package tracker

import (
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/pkg/persistence"
)

// Snapshot 可落盘的 tracker 完整状态
// 语义要求严格可往返：Restore(Snapshot()) 之后所有聚合读取结果不变
type Snapshot struct {
	Open      map[string]*trackedOrder     `json:"open"`
	Completed []*domain.Order              `json:"completed"`
	Failed    []*domain.Order              `json:"failed"`
	Dealt     map[domain.Side]*sideTotals  `json:"dealt"`
	Preload   map[domain.Side]*sideTotals  `json:"preload"`
}

// Snapshot 在锁下导出当前状态的深拷贝
func (t *Tracker) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &Snapshot{
		Open:      make(map[string]*trackedOrder, len(t.open)),
		Completed: make([]*domain.Order, len(t.completed)),
		Failed:    make([]*domain.Order, len(t.failed)),
		Dealt:     newSideTotals(),
		Preload:   newSideTotals(),
	}
	for id, tr := range t.open {
		orderCp := *tr.Order
		trCp := *tr
		trCp.Order = &orderCp
		s.Open[id] = &trCp
	}
	for i, o := range t.completed {
		cp := *o
		s.Completed[i] = &cp
	}
	for i, o := range t.failed {
		cp := *o
		s.Failed[i] = &cp
	}
	for side, st := range t.dealt {
		s.Dealt[side] = &sideTotals{Amount: st.Amount, Notional: st.Notional}
	}
	for side, st := range t.preload {
		s.Preload[side] = &sideTotals{Amount: st.Amount, Notional: st.Notional}
	}
	return s
}

// Restore 用快照覆盖当前状态（暖重启时在 Start 之前调用）
func (t *Tracker) Restore(s *Snapshot) {
	if s == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = make(map[string]*trackedOrder, len(s.Open))
	for id, tr := range s.Open {
		t.open[id] = tr
	}
	t.completed = append([]*domain.Order{}, s.Completed...)
	t.failed = append([]*domain.Order{}, s.Failed...)
	t.dealt = newSideTotals()
	t.preload = newSideTotals()
	for side, st := range s.Dealt {
		t.dealt[side] = &sideTotals{Amount: st.Amount, Notional: st.Notional}
	}
	for side, st := range s.Preload {
		t.preload[side] = &sideTotals{Amount: st.Amount, Notional: st.Notional}
	}
	// JSON 往返可能丢掉未出现过的侧，补齐零值项
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		if t.dealt[side] == nil {
			t.dealt[side] = &sideTotals{}
		}
		if t.preload[side] == nil {
			t.preload[side] = &sideTotals{}
		}
	}

	log.Infof("📦 [tracker:%s] 快照已恢复: open=%d completed=%d failed=%d dealt=%.4f",
		t.id, len(t.open), len(t.completed), len(t.failed), t.dealtLocked())
}

// SaveTo 把快照写入持久化存储
func (t *Tracker) SaveTo(service persistence.Service) error {
	store := service.NewStore("state", t.id, "tracker")
	return store.Save(t.Snapshot())
}

// LoadFrom 从持久化存储恢复快照；无历史数据时保持空状态
func (t *Tracker) LoadFrom(service persistence.Service) error {
	store := service.NewStore("state", t.id, "tracker")
	var s Snapshot
	if err := store.Load(&s); err != nil {
		if err == persistence.ErrNotExists {
			return nil
		}
		return err
	}
	t.Restore(&s)
	return nil
}
