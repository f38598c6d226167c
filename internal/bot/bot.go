package bot

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/tracker"
)

var log = logrus.WithField("module", "bot")

// Status bot 级状态，唯一跨出执行核心边界的状态
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Bot 执行机器人
// Cycle 不可重入，由调度器按 bot 串行调用；所有周期内错误就地消化，
// 只有 Running/Completed/Error 三态对外
type Bot interface {
	ID() string
	// Cycle 执行一个决策周期
	Cycle(ctx context.Context) error
	Status() Status
	// StatusReason 状态补充说明（Error 时为原因）
	StatusReason() string
	// Report 成交进度汇总
	Report() domain.ExecutionReport
	// Trackers 暴露内部追踪器（持久化、状态接口用）
	Trackers() []*tracker.Tracker
	// Shutdown 停止后台循环并清场在途订单
	Shutdown(ctx context.Context)
}

// ErrReentrantCycle 决策周期被并发调用
type ErrReentrantCycle struct{ Bot string }

func (e ErrReentrantCycle) Error() string {
	return "bot " + e.Bot + ": cycle invoked reentrantly"
}
