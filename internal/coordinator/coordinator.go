package coordinator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
	"github.com/execbot/gotrade/internal/exchange"
	"github.com/execbot/gotrade/internal/gate"
	"github.com/execbot/gotrade/internal/pricing"
	"github.com/execbot/gotrade/internal/tracker"
	"github.com/execbot/gotrade/pkg/ratelimit"
)

var log = logrus.WithField("module", "coordinator")

const (
	// DefaultCancelCooldown 连续撤单之间的最小间隔，防撤单风暴
	DefaultCancelCooldown = time.Second
	// DefaultBackoffStep 连续下单失败的线性退避步长
	DefaultBackoffStep = time.Second
	// DefaultMaxBackoff 退避上限
	DefaultMaxBackoff = 10 * time.Second
	// DefaultRequoteQtyRatio 期望数量变化超过该比例触发改价
	DefaultRequoteQtyRatio = 0.5
	// 每个 key（账户:交易对）每分钟的撤单预算
	cancelBudgetPerMinute = 30
)

// Config 腿协调器配置
type Config struct {
	ClientIDPrefix  string
	CancelCooldown  time.Duration
	BackoffStep     time.Duration
	MaxBackoff      time.Duration
	RandomRatio     float64 // 切片数量随机化半径
	RequoteQtyRatio float64

	IsPrimary bool // 主腿（从腿执行依赖协议，主腿执行领先上限与价差守卫）
	AutoSide  bool // 按两腿相对中间价自动推导方向

	StartGuard   *SpreadGuard // 满足才允许开始（仅主腿）
	SuspendGuard *SpreadGuard // 满足即暂停（仅主腿）
}

func (c *Config) fillDefaults() {
	if c.CancelCooldown <= 0 {
		c.CancelCooldown = DefaultCancelCooldown
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = DefaultBackoffStep
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.RandomRatio <= 0 {
		c.RandomRatio = pricing.DefaultRandomRatio
	}
	if c.RequoteQtyRatio <= 0 {
		c.RequoteQtyRatio = DefaultRequoteQtyRatio
	}
}

// Env 一个决策周期的市场/账户快照，由决策循环统一采集后传入
type Env struct {
	Book     *domain.OrderBook
	Balances domain.AccountBalances
	Account  *domain.AccountConfig
	Inst     *domain.InstrumentInfo

	// 对手腿数据（单腿时为零值）
	CounterBook     *domain.OrderBook
	CounterInst     *domain.InstrumentInfo
	CounterNotional float64
	BridgeRate      float64 // 对手腿计价资产 → 本腿计价资产的桥汇率

	Now time.Time
}

// Coordinator 单腿状态机
// Waiting → OrderSubmitted → OrderPending → {OrderCancelled→Waiting,
// Completed, Error, NotEnoughBalance, OrderFailed}
// 不可重入：由决策循环按 bot 串行调用
type Coordinator struct {
	leg      *domain.Leg
	gw       exchange.Gateway
	tracker  *tracker.Tracker
	gate     *gate.Gate
	strategy pricing.Strategy
	cfg      Config
	rng      *rand.Rand

	cancelLimiter *ratelimit.PerKeyLimiter
	lastCancelAt  time.Time
	failures      int // 连续下单失败次数
	nextRetryAt   time.Time
}

// New 创建腿协调器
func New(leg *domain.Leg, gw exchange.Gateway, trk *tracker.Tracker, gt *gate.Gate, strategy pricing.Strategy, cfg Config) *Coordinator {
	cfg.fillDefaults()
	return &Coordinator{
		leg:           leg,
		gw:            gw,
		tracker:       trk,
		gate:          gt,
		strategy:      strategy,
		cfg:           cfg,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		cancelLimiter: ratelimit.NewPerKeyLimiter(cancelBudgetPerMinute, cancelBudgetPerMinute),
	}
}

// Leg 返回所属腿
func (c *Coordinator) Leg() *domain.Leg { return c.leg }

// Tracker 返回腿的订单追踪器
func (c *Coordinator) Tracker() *tracker.Tracker { return c.tracker }

// Step 执行一个决策周期，返回本周期结束时的腿状态
func (c *Coordinator) Step(ctx context.Context, env Env) domain.LegStatus {
	switch c.leg.Status {
	case domain.LegCompleted, domain.LegError:
		return c.leg.Status
	}
	if env.Now.IsZero() {
		env.Now = time.Now()
	}

	// 方向自动推导：本腿中间价贵则卖、便宜则买
	if c.cfg.AutoSide {
		if side, ok := c.deduceSide(env); ok {
			c.leg.Side = side
		} else {
			return c.transition(domain.LegWaiting, domain.NotReadyBook)
		}
	}

	remaining := c.leg.TargetAmount - c.tracker.Dealt()
	if remaining < env.Inst.MinOrderAmount {
		if c.tracker.OpenCount() > 0 {
			// 余量不足但还有在途订单，等 tracker 收敛后再终结
			return c.transition(domain.LegOrderPending, 0)
		}
		log.Infof("🎉 [%s:%s] 剩余量 %.8f 低于最小下单量，执行完成", c.leg.Account, c.leg.Pair, remaining)
		return c.transition(domain.LegCompleted, 0)
	}

	// 下单失败退避期内不动作
	if env.Now.Before(c.nextRetryAt) {
		return c.transition(domain.LegWaiting, 0)
	}

	price, ok := c.strategy.Price(env.Book, c.leg.Side)
	if !ok {
		return c.transition(domain.LegWaiting, domain.NotReadyBook)
	}
	amount := c.candidateAmount(env, price, remaining)
	if amount < env.Inst.MinOrderAmount {
		if c.leg.Counterpart != nil && !c.cfg.IsPrimary {
			// 对手腿已终结且缺口耗尽、又无在途订单 → 追赶结束
			if c.leg.Counterpart.Status == domain.LegCompleted && c.tracker.OpenCount() == 0 {
				log.Infof("🎉 [%s:%s] 对手腿已完成且名义缺口耗尽，从腿完成", c.leg.Account, c.leg.Pair)
				return c.transition(domain.LegCompleted, 0)
			}
			// 从腿切片由名义缺口推导，推不出量就是缺口不足
			return c.transition(domain.LegWaiting, domain.NotReadyDepend)
		}
		return c.transition(domain.LegWaiting, 0)
	}

	// single-flight：已有在途订单时只做改价判断，绝不产生第二笔
	if order, exists := c.tracker.OpenOrder(); exists {
		return c.stepPending(ctx, env, order, price, amount)
	}

	if mask := c.admit(ctx, env, price, amount); !mask.Ready() {
		status := domain.LegWaiting
		if mask == domain.NotReadyBalance {
			status = domain.LegNotEnoughBalance
		}
		return c.transition(status, mask)
	}

	return c.submit(ctx, env, price, amount)
}

// stepPending 在途订单的改价判断
// 价格偏移 ≥ 一个 tick 或期望数量变化超过比例 → 撤单重来；
// 撤单受冷却期和每分钟预算双重约束，原单继续挂着等下一周期
func (c *Coordinator) stepPending(ctx context.Context, env Env, order *domain.Order, price, amount float64) domain.LegStatus {
	priceMoved := math.Abs(price-order.Price) >= env.Inst.TickSize-1e-12
	qtyMoved := order.Amount > 0 &&
		math.Abs(amount-order.Remaining()) > c.cfg.RequoteQtyRatio*order.Amount

	if !priceMoved && !qtyMoved {
		return c.transition(domain.LegOrderPending, 0)
	}

	if env.Now.Sub(c.lastCancelAt) < c.cfg.CancelCooldown {
		return c.transition(domain.LegOrderPending, 0)
	}
	key := c.leg.Account + ":" + c.leg.Pair
	if !c.cancelLimiter.Allow(key, 1) {
		log.Warnf("⚠️ [%s:%s] 撤单预算耗尽，本周期不改价", c.leg.Account, c.leg.Pair)
		return c.transition(domain.LegOrderPending, 0)
	}

	c.lastCancelAt = env.Now
	log.Infof("🔄 [%s:%s] 改价撤单: orderID=%s price %.8f -> %.8f", c.leg.Account, c.leg.Pair, order.OrderID, order.Price, price)
	if err := c.gw.CancelOrder(ctx, c.leg.Account, c.leg.Pair, order.OrderID); err != nil {
		// 撤单失败只记录，确认交给 tracker 的下一轮对账
		log.Warnf("⚠️ [%s:%s] 改价撤单失败: orderID=%s err=%v", c.leg.Account, c.leg.Pair, order.OrderID, err)
	}
	return c.transition(domain.LegOrderCancelled, 0)
}

// submit 提交新订单并登记到 tracker
func (c *Coordinator) submit(ctx context.Context, env Env, price, amount float64) domain.LegStatus {
	req := exchange.OrderRequest{
		Account:       c.leg.Account,
		Pair:          c.leg.Pair,
		Side:          c.leg.Side,
		Price:         price,
		Amount:        amount,
		OrderType:     c.leg.OrderType,
		ClientOrderID: exchange.NewClientOrderID(c.cfg.ClientIDPrefix),
	}
	orderID, err := c.gw.SubmitOrder(ctx, req)
	if err != nil {
		c.failures++
		backoff := time.Duration(c.failures) * c.cfg.BackoffStep
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
		c.nextRetryAt = env.Now.Add(backoff)
		log.Errorf("❌ [%s:%s] 下单失败（连续 %d 次，退避 %s）: %v", c.leg.Account, c.leg.Pair, c.failures, backoff, err)
		return c.transition(domain.LegOrderFailed, 0)
	}

	c.failures = 0
	c.nextRetryAt = time.Time{}
	if err := c.tracker.Add(ctx, orderID); err != nil {
		log.Warnf("⚠️ [%s:%s] tracker 登记失败: orderID=%s err=%v", c.leg.Account, c.leg.Pair, orderID, err)
	}
	log.Infof("📤 [%s:%s] 已下单: orderID=%s side=%s price=%.8f amount=%.8f", c.leg.Account, c.leg.Pair, orderID, c.leg.Side, price, amount)
	return c.transition(domain.LegOrderSubmitted, 0)
}

// admit 组合准入：风控 gate + 跨腿依赖 + 价差守卫
func (c *Coordinator) admit(ctx context.Context, env Env, price, amount float64) domain.NotReady {
	mask := c.gate.Check(ctx, gate.Input{
		Book:     env.Book,
		Balances: env.Balances,
		Account:  env.Account,
		Inst:     env.Inst,
		Side:     c.leg.Side,
		Price:    price,
		Amount:   amount,
		Progress: c.tracker,
		Now:      env.Now,
	})
	if c.leg.Counterpart != nil {
		if !c.dependencySatisfied(env) {
			mask |= domain.NotReadyDepend
		}
		if c.cfg.IsPrimary && !c.spreadAllows(env) {
			mask |= domain.NotReadySpread
		}
	}
	return mask
}

// candidateAmount 候选数量：从腿按名义缺口推导，主腿/单腿按切片随机化，
// 最后都压到剩余目标以内
func (c *Coordinator) candidateAmount(env Env, price, remaining float64) float64 {
	var amount float64
	if c.leg.Counterpart != nil && !c.cfg.IsPrimary {
		amount = pricing.PairedLegAmount(c.notionalGap(env), price, env.Inst)
	} else {
		amount = pricing.RandomizedAmount(c.leg.SliceAmount, c.cfg.RandomRatio, env.Inst.AmountPrec, c.rng)
	}
	return pricing.ClampAmount(amount, remaining, env.Inst.AmountPrec)
}

// notionalGap 从腿还该补的名义缺口，换算到本腿计价资产
// 自动推导为卖方向时追赶方向相反，缺口取反。推量和依赖判断都从这里取值，
// 两边永远看到同一个符号的缺口
func (c *Coordinator) notionalGap(env Env) float64 {
	gap := env.CounterNotional*env.BridgeRate - c.tracker.DealtNotional()
	if c.cfg.AutoSide && c.leg.Side == domain.SideSell {
		gap = -gap
	}
	return gap
}

// dependencySatisfied 跨腿名义偏离约束
// 从腿：与对手的名义 gap 达到自己的最小可成交名义才动；
// 主腿：领先对手不超过对手的最小下单名义才动。两条合起来把
// 两腿名义偏离约束在一个最小名义的带宽内
func (c *Coordinator) dependencySatisfied(env Env) bool {
	if c.cfg.IsPrimary {
		counterMin := 0.0
		if env.CounterInst != nil {
			counterMin = env.CounterInst.MinNotional
		}
		ahead := c.tracker.DealtNotional() - env.CounterNotional*env.BridgeRate
		if ahead > counterMin {
			log.Debugf("⏸️ [%s:%s] 主腿领先 %.4f 超过对手最小名义 %.4f，等待", c.leg.Account, c.leg.Pair, ahead, counterMin)
			return false
		}
		return true
	}

	gap := c.notionalGap(env)
	if gap < env.Inst.MinNotional {
		log.Debugf("⏸️ [%s:%s] 从腿名义 gap %.4f 低于最小名义 %.4f，等待", c.leg.Account, c.leg.Pair, gap, env.Inst.MinNotional)
		return false
	}
	return true
}

// spreadAllows 跨腿价差守卫（仅主腿）：start 条件不满足或 suspend 条件
// 满足都阻塞
func (c *Coordinator) spreadAllows(env Env) bool {
	spread, ok := interLegSpread(env)
	if !ok {
		// 配置了守卫但算不出价差时保守阻塞
		return c.cfg.StartGuard == nil && c.cfg.SuspendGuard == nil
	}
	if c.cfg.StartGuard != nil && !c.cfg.StartGuard.Holds(spread) {
		return false
	}
	if c.cfg.SuspendGuard != nil && c.cfg.SuspendGuard.Holds(spread) {
		log.Infof("⏸️ [%s:%s] 价差守卫触发暂停: spread=%.8f", c.leg.Account, c.leg.Pair, spread)
		return false
	}
	return true
}

// deduceSide 按两腿相对中间价推导方向：本腿贵 → 卖，便宜 → 买
func (c *Coordinator) deduceSide(env Env) (domain.Side, bool) {
	ownMid, ok1 := env.Book.Mid()
	counterMid, ok2 := env.CounterBook.Mid()
	if !ok1 || !ok2 || env.BridgeRate <= 0 {
		return "", false
	}
	if ownMid > counterMid*env.BridgeRate {
		return domain.SideSell, true
	}
	return domain.SideBuy, true
}

// interLegSpread 本腿中间价 − 对手腿中间价（经桥汇率换算）
func interLegSpread(env Env) (float64, bool) {
	ownMid, ok1 := env.Book.Mid()
	counterMid, ok2 := env.CounterBook.Mid()
	if !ok1 || !ok2 {
		return 0, false
	}
	rate := env.BridgeRate
	if rate <= 0 {
		rate = 1
	}
	return ownMid - counterMid*rate, true
}

// transition 更新腿状态与阻塞位
func (c *Coordinator) transition(status domain.LegStatus, mask domain.NotReady) domain.LegStatus {
	c.leg.Status = status
	c.leg.Blocked = mask
	return status
}
