package pricing

import (
	"github.com/execbot/gotrade/internal/domain"
)

const (
	// DefaultImbalanceRatio 判定“压倒性买/卖压”的量比阈值
	DefaultImbalanceRatio = 5.0
	// DefaultDepthLevels 参与累计量计算的档位数
	DefaultDepthLevels = 5

	// 窄价差时从被动侧向内插值的比例
	narrowSpreadFraction = 0.75
	// 宽价差、仅累计量占优（或均不占优）时的插值比例
	wideSpreadFraction = 0.85
	// 宽价差、仅盘口第一档占优时的插值比例
	wideSpreadTopFraction = 0.9
)

// DepthAware 深度感知定价：按两侧量比在“穿越对手价”和
// “价差内插值”之间选挡
type DepthAware struct {
	Increment      float64 // 穿越对手价时的让价增量
	Tick           float64
	BenchmarkTicks float64 // 窄/宽价差分界 = BenchmarkTicks × Tick
	Levels         int     // 累计量统计档位数
	ImbalanceRatio float64
	Bounds         Bounds
}

// NewDepthAware 创建深度感知策略
func NewDepthAware(increment, tick, benchmarkTicks float64, bounds Bounds) *DepthAware {
	return &DepthAware{
		Increment:      increment,
		Tick:           tick,
		BenchmarkTicks: benchmarkTicks,
		Levels:         DefaultDepthLevels,
		ImbalanceRatio: DefaultImbalanceRatio,
		Bounds:         bounds,
	}
}

// Price 计算候选价格
//
// 以买方为例：己方（买侧）量压倒对手（卖侧）5 倍以上说明对手价撑不住，
// 直接穿越（ask − increment）；否则在价差内从被动侧按比例插值。
// 窄价差（≤ benchmark×tick）只看是否有任一侧压倒性占优；宽价差按
// “第一档占优 / 累计量占优”分别选 0.9 / 0.85 的插值比例，
// 两者同时占优才穿越
func (d *DepthAware) Price(book *domain.OrderBook, side domain.Side) (float64, bool) {
	if !usableBook(book) {
		return 0, false
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return 0, false
	}

	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	spread := ask.Price - bid.Price

	// 己方/对手量，买方视角己方是 bid 侧
	ownTop, oppTop := bid.Amount, ask.Amount
	ownCum := domain.CumAmount(book.Bids, d.Levels)
	oppCum := domain.CumAmount(book.Asks, d.Levels)
	if side == domain.SideSell {
		ownTop, oppTop = ask.Amount, bid.Amount
		ownCum, oppCum = oppCum, ownCum
	}
	topDominant := oppTop > 0 && ownTop/oppTop >= d.ImbalanceRatio
	cumDominant := oppCum > 0 && ownCum/oppCum >= d.ImbalanceRatio

	cross := func() float64 {
		if side == domain.SideBuy {
			return ask.Price - d.Increment
		}
		return bid.Price + d.Increment
	}
	interp := func(fraction float64) float64 {
		if side == domain.SideBuy {
			return SnapToTick(bid.Price+fraction*spread, d.Tick)
		}
		return SnapToTick(ask.Price-fraction*spread, d.Tick)
	}

	var price float64
	if spread <= d.BenchmarkTicks*d.Tick {
		if topDominant || cumDominant {
			price = cross()
		} else {
			price = interp(narrowSpreadFraction)
		}
	} else {
		switch {
		case topDominant && cumDominant:
			price = cross()
		case topDominant:
			price = interp(wideSpreadTopFraction)
		default:
			price = interp(wideSpreadFraction)
		}
	}

	if price <= 0 || !d.Bounds.Contains(price) {
		log.Debugf("💡 深度定价越界不交易: pair=%s side=%s price=%v", book.Pair, side, price)
		return 0, false
	}
	return price, true
}
