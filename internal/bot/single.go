package bot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/execbot/gotrade/internal/coordinator"
	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/tracker"
)

// 余额连续拉不到这么多次后，强制失效账户配置缓存再试
const balanceRefreshThreshold = 3

// SingleLeg 单腿执行 bot：一个账户在一个交易对上朝目标执行
type SingleLeg struct {
	id    string
	gw    *exchange.CachedGateway
	coord *coordinator.Coordinator

	status       atomic.Value // Status
	statusReason atomic.Value // string
	cycling      atomic.Bool

	balanceFailures int
}

// NewSingleLeg 创建单腿 bot
func NewSingleLeg(id string, gw *exchange.CachedGateway, coord *coordinator.Coordinator) *SingleLeg {
	b := &SingleLeg{id: id, gw: gw, coord: coord}
	b.status.Store(StatusRunning)
	b.statusReason.Store("")
	return b
}

// ID 返回 bot 标识
func (b *SingleLeg) ID() string { return b.id }

// Status 返回 bot 状态
func (b *SingleLeg) Status() Status { return b.status.Load().(Status) }

// StatusReason 返回状态补充说明
func (b *SingleLeg) StatusReason() string { return b.statusReason.Load().(string) }

// Report 从完成订单集合重算进度汇总
func (b *SingleLeg) Report() domain.ExecutionReport {
	return b.coord.Tracker().Report()
}

// Trackers 返回内部追踪器
func (b *SingleLeg) Trackers() []*tracker.Tracker {
	return []*tracker.Tracker{b.coord.Tracker()}
}

// Cycle 执行一个决策周期
func (b *SingleLeg) Cycle(ctx context.Context) error {
	if !b.cycling.CompareAndSwap(false, true) {
		return ErrReentrantCycle{Bot: b.id}
	}
	defer b.cycling.Store(false)

	if b.Status() != StatusRunning {
		return nil
	}

	leg := b.coord.Leg()
	env, ok := b.gather(ctx, leg)
	if !ok {
		// 行情/余额异常跳过本周期，下一周期重试
		return nil
	}

	switch b.coord.Step(ctx, env) {
	case domain.LegCompleted:
		log.Infof("🎉 [bot:%s] 执行完成", b.id)
		b.status.Store(StatusCompleted)
	case domain.LegError:
		b.status.Store(StatusError)
		b.statusReason.Store("leg error: " + leg.Blocked.String())
	}
	return nil
}

// gather 采集本周期的市场/账户快照
func (b *SingleLeg) gather(ctx context.Context, leg *domain.Leg) (coordinator.Env, bool) {
	var env coordinator.Env
	env.Now = time.Now()

	book, err := b.gw.GetOrderBook(ctx, leg.Pair, leg.Account)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 盘口获取失败，跳过本周期: %v", b.id, err)
		return env, false
	}
	balances, err := b.gw.GetBalances(ctx, leg.Account)
	if err != nil {
		b.balanceFailures++
		if b.balanceFailures >= balanceRefreshThreshold {
			// 连续失败可能是账户配置变了，强制失效缓存
			b.gw.InvalidateAccount(leg.Account)
			b.balanceFailures = 0
			log.Warnf("🔄 [bot:%s] 余额连续失败，已强制刷新账户缓存", b.id)
		}
		log.Warnf("⚠️ [bot:%s] 余额获取失败，跳过本周期: %v", b.id, err)
		return env, false
	}
	b.balanceFailures = 0

	account, err := b.gw.GetAccountConfig(ctx, leg.Account)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 账户配置获取失败，跳过本周期: %v", b.id, err)
		return env, false
	}
	inst, err := b.gw.GetInstrumentInfo(ctx, leg.Pair)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 交易对信息获取失败，跳过本周期: %v", b.id, err)
		return env, false
	}

	env.Book = book
	env.Balances = balances
	env.Account = account
	env.Inst = inst
	return env, true
}

// Shutdown 清场：停 tracker 循环并尽力撤掉在途订单
func (b *SingleLeg) Shutdown(ctx context.Context) {
	trk := b.coord.Tracker()
	trk.CancelAllOpenOrders(ctx)
	trk.Stop()
	log.Infof("🛑 [bot:%s] 已关停", b.id)
}
