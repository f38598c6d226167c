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

// BridgeRater 桥汇率提供方（refprice 客户端实现）
type BridgeRater interface {
	BridgeRate(ctx context.Context, exchange, asset string) (float64, error)
}

// DualLeg 双腿执行 bot：主腿自主执行，从腿按名义 gap 追赶主腿
type DualLeg struct {
	id        string
	gw        *exchange.CachedGateway
	primary   *coordinator.Coordinator
	secondary *coordinator.Coordinator
	bridge    BridgeRater

	status       atomic.Value
	statusReason atomic.Value
	cycling      atomic.Bool
}

// NewDualLeg 创建双腿 bot；两条腿的 Counterpart 引用在这里接好
func NewDualLeg(id string, gw *exchange.CachedGateway, primary, secondary *coordinator.Coordinator, bridge BridgeRater) *DualLeg {
	primary.Leg().Counterpart = secondary.Leg()
	secondary.Leg().Counterpart = primary.Leg()

	b := &DualLeg{
		id:        id,
		gw:        gw,
		primary:   primary,
		secondary: secondary,
		bridge:    bridge,
	}
	b.status.Store(StatusRunning)
	b.statusReason.Store("")
	return b
}

// ID 返回 bot 标识
func (b *DualLeg) ID() string { return b.id }

// Status 返回 bot 状态
func (b *DualLeg) Status() Status { return b.status.Load().(Status) }

// StatusReason 返回状态补充说明
func (b *DualLeg) StatusReason() string { return b.statusReason.Load().(string) }

// Report 两腿完成订单合并重算
func (b *DualLeg) Report() domain.ExecutionReport {
	orders := b.primary.Tracker().CompletedOrders()
	orders = append(orders, b.secondary.Tracker().CompletedOrders()...)
	return domain.BuildReport(orders)
}

// Trackers 返回两腿的追踪器
func (b *DualLeg) Trackers() []*tracker.Tracker {
	return []*tracker.Tracker{b.primary.Tracker(), b.secondary.Tracker()}
}

// Cycle 执行一个决策周期：主腿先走，从腿拿着主腿最新进度追赶
func (b *DualLeg) Cycle(ctx context.Context) error {
	if !b.cycling.CompareAndSwap(false, true) {
		return ErrReentrantCycle{Bot: b.id}
	}
	defer b.cycling.Store(false)

	if b.Status() != StatusRunning {
		return nil
	}

	primaryStatus := b.stepLeg(ctx, b.primary, b.secondary)
	secondaryStatus := b.stepLeg(ctx, b.secondary, b.primary)

	if primaryStatus == domain.LegCompleted && secondaryStatus == domain.LegCompleted {
		log.Infof("🎉 [bot:%s] 双腿执行完成", b.id)
		b.status.Store(StatusCompleted)
	}
	if primaryStatus == domain.LegError || secondaryStatus == domain.LegError {
		b.status.Store(StatusError)
		b.statusReason.Store("leg error")
	}
	return nil
}

// stepLeg 为一条腿采集快照并推进状态机
func (b *DualLeg) stepLeg(ctx context.Context, own, counter *coordinator.Coordinator) domain.LegStatus {
	ownLeg := own.Leg()
	if ownLeg.Status == domain.LegCompleted || ownLeg.Status == domain.LegError {
		return ownLeg.Status
	}

	env, ok := b.gatherLeg(ctx, own, counter)
	if !ok {
		return ownLeg.Status
	}
	return own.Step(ctx, env)
}

func (b *DualLeg) gatherLeg(ctx context.Context, own, counter *coordinator.Coordinator) (coordinator.Env, bool) {
	ownLeg := own.Leg()
	counterLeg := counter.Leg()
	var env coordinator.Env
	env.Now = time.Now()

	book, err := b.gw.GetOrderBook(ctx, ownLeg.Pair, ownLeg.Account)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] %s 盘口获取失败，本腿跳过: %v", b.id, ownLeg.Pair, err)
		return env, false
	}
	counterBook, err := b.gw.GetOrderBook(ctx, counterLeg.Pair, counterLeg.Account)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 对手腿 %s 盘口获取失败，本腿跳过: %v", b.id, counterLeg.Pair, err)
		return env, false
	}
	balances, err := b.gw.GetBalances(ctx, ownLeg.Account)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 余额获取失败，本腿跳过: %v", b.id, err)
		return env, false
	}
	account, err := b.gw.GetAccountConfig(ctx, ownLeg.Account)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 账户配置获取失败，本腿跳过: %v", b.id, err)
		return env, false
	}
	inst, err := b.gw.GetInstrumentInfo(ctx, ownLeg.Pair)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 交易对信息获取失败，本腿跳过: %v", b.id, err)
		return env, false
	}
	counterInst, err := b.gw.GetInstrumentInfo(ctx, counterLeg.Pair)
	if err != nil {
		log.Warnf("⚠️ [bot:%s] 对手交易对信息获取失败，本腿跳过: %v", b.id, err)
		return env, false
	}

	rate := 1.0
	if b.bridge != nil {
		rate, err = b.bridge.BridgeRate(ctx, account.Exchange, counterInst.QuoteAsset)
		if err != nil {
			log.Warnf("⚠️ [bot:%s] 桥汇率获取失败，本腿跳过: %v", b.id, err)
			return env, false
		}
	}

	env.Book = book
	env.Balances = balances
	env.Account = account
	env.Inst = inst
	env.CounterBook = counterBook
	env.CounterInst = counterInst
	env.CounterNotional = counter.Tracker().DealtNotional()
	env.BridgeRate = rate
	return env, true
}

// Shutdown 清场两条腿
func (b *DualLeg) Shutdown(ctx context.Context) {
	for _, trk := range b.Trackers() {
		trk.CancelAllOpenOrders(ctx)
		trk.Stop()
	}
	log.Infof("🛑 [bot:%s] 已关停", b.id)
}
