package domain

import (
	"strings"
)

// LegStatus 腿状态机
type LegStatus string

const (
	LegWaiting          LegStatus = "waiting"            // 等待下一次决策
	LegOrderSubmitted   LegStatus = "order_submitted"    // 刚提交订单
	LegOrderPending     LegStatus = "order_pending"      // 订单挂单中
	LegOrderCancelled   LegStatus = "order_cancelled"    // 订单已撤，回到 waiting
	LegCompleted        LegStatus = "completed"          // 目标达成（终态）
	LegError            LegStatus = "error"              // 配置或不可恢复错误
	LegNotEnoughBalance LegStatus = "not_enough_balance" // 余额不足
	LegOrderFailed      LegStatus = "order_failed"       // 订单失败，退避后重试
)

// NotReady 准入检查的阻塞原因位掩码
// 每一位都是可独立诊断的检查项；gate 永远不把原因折叠成单个布尔值
type NotReady uint32

const (
	NotReadyBook      NotReady = 1 << iota // 盘口缺失/过期
	NotReadyBalance                        // 余额不足
	NotReadyReserve                        // 触破保留额下限
	NotReadyTrigger                        // 触发条件未满足或不可验证
	NotReadyStop                           // 停止条件已触发
	NotReadyTarget                         // 目标已达成
	NotReadyDepend                         // 对手腿未就绪（名义 gap 不足）
	NotReadySpread                         // 跨腿价差守卫阻塞
)

var notReadyNames = []struct {
	bit  NotReady
	name string
}{
	{NotReadyBook, "book"},
	{NotReadyBalance, "balance"},
	{NotReadyReserve, "reserve"},
	{NotReadyTrigger, "trigger"},
	{NotReadyStop, "stop"},
	{NotReadyTarget, "target"},
	{NotReadyDepend, "depend"},
	{NotReadySpread, "spread"},
}

// Ready 检查是否全部就绪
func (m NotReady) Ready() bool { return m == 0 }

// Has 检查某一位是否置位
func (m NotReady) Has(bit NotReady) bool { return m&bit != 0 }

// String 列出所有置位的原因
func (m NotReady) String() string {
	if m == 0 {
		return "ready"
	}
	var parts []string
	for _, n := range notReadyNames {
		if m&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Aggressiveness 多腿策略的报价激进度（全序）
type Aggressiveness int

const (
	AggLimitAtBest  Aggressiveness = iota // 挂自己侧最优价
	AggTickWorse                          // 比最优价让出一个 tick
	AggOnTop                              // 压过最优价一个 tick
	AggOnTopSpread                        // 价差允许时才压一个 tick，否则挂最优价
	AggManualOffset                       // 手动偏移 N 个 tick（N 来自 multiplier）
	AggSuperCross                         // 穿越对手价再深入 N 个 tick
	AggTakeAll                            // 扫穿对手盘（按对手价上浮一档保护价）
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Leg 一条执行腿：一个账户在一个交易对上朝一个数量目标执行
type Leg struct {
	Pair           string
	Account        string
	Side           Side
	TargetAmount   float64 // 目标数量
	SliceAmount    float64 // 单笔切片数量
	Aggressiveness Aggressiveness
	OrderType      OrderType

	Blocked NotReady  // 最近一次 gate 结果
	Status  LegStatus

	// Counterpart 对手腿的弱引用，仅用于读取其进度，不持有生命周期
	Counterpart *Leg
}
