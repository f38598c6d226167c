package syncgroup

import (
	"sync"
)

type groupFunc func()

// SyncGroup 是 sync.WaitGroup 的包装器，简化后台 goroutine 生命周期管理
// （tracker 对账循环、推送 feed、调度器都挂在这里），自动管理 Add/Done
type SyncGroup struct {
	wg sync.WaitGroup

	mu           sync.Mutex
	fns          []groupFunc
	hasRun       bool
	runningCount int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 添加一个 goroutine 函数
// Add 应该在 Run 之前调用；如果已经运行过，需要先 WaitAndClear
func (w *SyncGroup) Add(fn groupFunc) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.hasRun && w.runningCount > 0 {
		// 已有 goroutine 在运行时不接受新函数，避免 WaitGroup 计数错乱
		return
	}

	w.fns = append(w.fns, fn)
}

// Run 启动所有已添加的 goroutine，并清空函数列表避免重复启动
func (w *SyncGroup) Run() {
	w.mu.Lock()
	if w.hasRun && w.runningCount > 0 {
		w.mu.Unlock()
		return
	}
	fns := w.fns
	w.fns = []groupFunc{}
	w.hasRun = true
	w.runningCount = len(fns)
	w.mu.Unlock()

	for _, fn := range fns {
		if fn == nil {
			continue
		}
		w.wg.Add(1)
		go func(doFunc groupFunc) {
			defer func() {
				w.wg.Done()
				w.mu.Lock()
				w.runningCount--
				w.mu.Unlock()
			}()
			doFunc()
		}(fn)
	}
}

// WaitAndClear 等待所有 goroutine 完成并重置
func (w *SyncGroup) WaitAndClear() {
	w.wg.Wait()

	w.mu.Lock()
	w.fns = []groupFunc{}
	w.hasRun = false
	w.runningCount = 0
	w.mu.Unlock()
}

// Wait 等待所有 goroutine 完成（不重置）
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
