package gate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
)

var log = logrus.WithField("module", "gate")

// ReserveDisabled 保留额检查的关闭哨兵值
const ReserveDisabled = -1

// Progress 执行进度读取口（tracker 实现）
type Progress interface {
	Dealt() float64
	DealtNotional() float64
	NetPosition() float64
	LastOrderUpdate() time.Time
}

// RefPricer 参考价服务：另一个交易所上某交易对的中间价
type RefPricer interface {
	Mid(ctx context.Context, exchange, pair string) (float64, error)
}

// TargetKind 目标口径
type TargetKind int

const (
	TargetAmount      TargetKind = iota // 成交数量目标
	TargetNotional                      // 成交名义金额目标
	TargetNetPosition                   // 净头寸目标（持仓模式感知）
)

// Target 执行目标
type Target struct {
	Kind  TargetKind
	Value float64
}

// Config 准入检查配置
type Config struct {
	MaxBookAge   time.Duration
	ReserveBase  float64 // 基础资产保留额下限，-1 关闭
	ReserveQuote float64 // 计价资产保留额下限，-1 关闭
	Trigger      *domain.TriggerCondition
	Stop         *domain.StopCondition
	Target       Target
}

// Input 单次检查的快照输入
type Input struct {
	Book     *domain.OrderBook
	Balances domain.AccountBalances
	Account  *domain.AccountConfig
	Inst     *domain.InstrumentInfo
	Side     domain.Side
	Price    float64 // 候选订单价格
	Amount   float64 // 候选订单数量
	Progress Progress
	Now      time.Time
}

// Gate 准入/风控复合检查
// 各检查项独立求值，失败只置对应的位，绝不把原因折叠成单个布尔：
// 诊断时每一位都要能单独回答“为什么没下单”
type Gate struct {
	cfg Config
	ref RefPricer
}

// New 创建 gate
func New(cfg Config, ref RefPricer) *Gate {
	return &Gate{cfg: cfg, ref: ref}
}

// Check 执行全部检查并返回阻塞位掩码（0 表示就绪）
func (g *Gate) Check(ctx context.Context, in Input) domain.NotReady {
	var mask domain.NotReady

	if !g.bookFresh(in) {
		mask |= domain.NotReadyBook
	}
	if !g.balanceSufficient(in) {
		mask |= domain.NotReadyBalance
	}
	if !g.reserveIntact(in) {
		mask |= domain.NotReadyReserve
	}
	if !g.triggerSatisfied(ctx) {
		mask |= domain.NotReadyTrigger
	}
	if g.stopTriggered(in) {
		mask |= domain.NotReadyStop
	}
	if g.targetReached(in) {
		mask |= domain.NotReadyTarget
	}

	if !mask.Ready() {
		log.Debugf("🚧 准入未通过: side=%s reasons=%s", in.Side, mask)
	}
	return mask
}

// bookFresh 盘口两侧有深度、带时间戳、年龄达标，
// 且比自家订单最后变动时间 + 交易所刷新延迟更新
func (g *Gate) bookFresh(in Input) bool {
	if !in.Book.Valid() {
		return false
	}
	if g.cfg.MaxBookAge > 0 && in.Book.Age(in.Now) > g.cfg.MaxBookAge {
		return false
	}
	if in.Progress != nil && in.Account != nil {
		last := in.Progress.LastOrderUpdate()
		if !last.IsZero() {
			delay := time.Duration(in.Account.RefreshDelayMs) * time.Millisecond
			if !in.Book.Timestamp.After(last.Add(delay)) {
				// 快照可能还没反映自家订单的成交/撤销
				return false
			}
		}
	}
	return true
}

// balanceSufficient 预计下单后余额仍非负
// 现货买方看计价资产、卖方看基础资产；衍生品按杠杆折算保证金，
// 双向持仓模式下多/空子余额分开核
func (g *Gate) balanceSufficient(in Input) bool {
	if in.Balances == nil || in.Inst == nil {
		return false
	}
	if in.Price <= 0 || in.Amount <= 0 {
		return false
	}

	if in.Account != nil && in.Account.IsDerivative {
		leverage := in.Account.Leverage
		if leverage <= 0 {
			leverage = 1
		}
		multiplier := in.Inst.Multiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		margin := in.Price * in.Amount * multiplier / leverage

		bal := in.Balances[in.Inst.QuoteAsset]
		if in.Account.IsDualSide {
			if in.Side == domain.SideBuy {
				return bal.LongAvailable >= margin
			}
			return bal.ShortAvailable >= margin
		}
		return bal.Available >= margin
	}

	switch in.Side {
	case domain.SideBuy:
		return in.Balances.Available(in.Inst.QuoteAsset) >= in.Price*in.Amount
	case domain.SideSell:
		return in.Balances.Available(in.Inst.BaseAsset) >= in.Amount
	}
	return false
}

// reserveIntact 下单后相关资产余额不跌破保留额下限；-1 哨兵完全关闭检查
func (g *Gate) reserveIntact(in Input) bool {
	if in.Balances == nil || in.Inst == nil {
		// 余额拿不到时由 balance 位报告，这里不重复置位
		return true
	}
	switch in.Side {
	case domain.SideBuy:
		if g.cfg.ReserveQuote == ReserveDisabled {
			return true
		}
		after := in.Balances.Available(in.Inst.QuoteAsset) - in.Price*in.Amount
		return after >= g.cfg.ReserveQuote
	case domain.SideSell:
		if g.cfg.ReserveBase == ReserveDisabled {
			return true
		}
		after := in.Balances.Available(in.Inst.BaseAsset) - in.Amount
		return after >= g.cfg.ReserveBase
	}
	return true
}

// triggerSatisfied 参考市场触发条件；未配置恒真，不可验证视为未满足
func (g *Gate) triggerSatisfied(ctx context.Context) bool {
	cond := g.cfg.Trigger
	if cond == nil {
		return true
	}
	if g.ref == nil {
		log.Warnf("⚠️ 配置了触发条件但没有参考价服务，按未满足处理")
		return false
	}
	mid, err := g.ref.Mid(ctx, cond.Exchange, cond.Pair)
	if err != nil {
		log.Warnf("⚠️ 触发条件参考价获取失败，按未满足处理: %s:%s err=%v", cond.Exchange, cond.Pair, err)
		return false
	}
	return cond.Op.Eval(mid, cond.Threshold)
}

// stopTriggered 停止条件：余额比较式满足即停（是停机，不是错误）
func (g *Gate) stopTriggered(in Input) bool {
	cond := g.cfg.Stop
	if cond == nil || in.Balances == nil {
		return false
	}
	value := in.Balances.Available(cond.Asset)
	if cond.Op.Eval(value, cond.Threshold) {
		log.Infof("🛑 停止条件已触发: %s %s %v (当前 %v)", cond.Asset, cond.Op, cond.Threshold, value)
		return true
	}
	return false
}

// targetReached 目标达成检查；达成后永久阻塞（幂等）
func (g *Gate) targetReached(in Input) bool {
	if in.Progress == nil {
		return false
	}
	switch g.cfg.Target.Kind {
	case TargetAmount:
		return g.cfg.Target.Value > 0 && in.Progress.Dealt() >= g.cfg.Target.Value
	case TargetNotional:
		return g.cfg.Target.Value > 0 && in.Progress.DealtNotional() >= g.cfg.Target.Value
	case TargetNetPosition:
		return g.netPositionReached(in)
	}
	return false
}

// netPositionReached 净头寸目标真值表
// 正目标只由买方推进：买方在净头寸 ≥ 目标时判达成，卖方恒判达成
// （卖方继续交易只会让净头寸远离正目标）；负目标对称
func (g *Gate) netPositionReached(in Input) bool {
	target := g.cfg.Target.Value
	net := in.Progress.NetPosition()

	if target >= 0 {
		if in.Side == domain.SideBuy {
			return net >= target
		}
		return true
	}
	if in.Side == domain.SideSell {
		return net <= target
	}
	return true
}
