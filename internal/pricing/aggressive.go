package pricing

import (
	"github.com/execbot/gotrade/internal/domain"
)

// takeAllSlackRatio 扫穿对手盘时在对手价上再让出的保护比例
const takeAllSlackRatio = 0.01

// priceFunc 激进度档位对应的闭式定价函数
// 入参固定为 (买一价, 卖一价, tick, multiplier)；multiplier 只有
// 手动偏移和深度穿越两档使用（偏移的 tick 数），其余档位忽略
type priceFunc func(bid, ask, tick, mult float64) float64

// 买卖两侧的档位函数表；表查找而非分支，派发 O(1)
var buyPriceTable = map[domain.Aggressiveness]priceFunc{
	domain.AggLimitAtBest: func(bid, ask, tick, mult float64) float64 { return bid },
	domain.AggTickWorse:   func(bid, ask, tick, mult float64) float64 { return bid - tick },
	domain.AggOnTop:       func(bid, ask, tick, mult float64) float64 { return bid + tick },
	domain.AggOnTopSpread: func(bid, ask, tick, mult float64) float64 {
		if bid+tick < ask {
			return bid + tick
		}
		return bid
	},
	domain.AggManualOffset: func(bid, ask, tick, mult float64) float64 { return bid + mult*tick },
	domain.AggSuperCross:   func(bid, ask, tick, mult float64) float64 { return ask + mult*tick },
	domain.AggTakeAll: func(bid, ask, tick, mult float64) float64 {
		return SnapToTick(ask*(1+takeAllSlackRatio), tick)
	},
}

var sellPriceTable = map[domain.Aggressiveness]priceFunc{
	domain.AggLimitAtBest: func(bid, ask, tick, mult float64) float64 { return ask },
	domain.AggTickWorse:   func(bid, ask, tick, mult float64) float64 { return ask + tick },
	domain.AggOnTop:       func(bid, ask, tick, mult float64) float64 { return ask - tick },
	domain.AggOnTopSpread: func(bid, ask, tick, mult float64) float64 {
		if ask-tick > bid {
			return ask - tick
		}
		return ask
	},
	domain.AggManualOffset: func(bid, ask, tick, mult float64) float64 { return ask - mult*tick },
	domain.AggSuperCross:   func(bid, ask, tick, mult float64) float64 { return bid - mult*tick },
	domain.AggTakeAll: func(bid, ask, tick, mult float64) float64 {
		return SnapToTick(bid*(1-takeAllSlackRatio), tick)
	},
}

// Aggressive 激进度索引定价（多腿策略用）
type Aggressive struct {
	Level  domain.Aggressiveness
	Tick   float64
	Mult   float64 // 手动偏移/深度穿越档位的 tick 数
	Bounds Bounds
}

// NewAggressive 创建激进度索引策略
func NewAggressive(level domain.Aggressiveness, tick, mult float64, bounds Bounds) *Aggressive {
	return &Aggressive{Level: level, Tick: tick, Mult: mult, Bounds: bounds}
}

// Price 按档位表计算候选价格
func (a *Aggressive) Price(book *domain.OrderBook, side domain.Side) (float64, bool) {
	if !usableBook(book) {
		return 0, false
	}

	var table map[domain.Aggressiveness]priceFunc
	switch side {
	case domain.SideBuy:
		table = buyPriceTable
	case domain.SideSell:
		table = sellPriceTable
	default:
		return 0, false
	}
	fn, ok := table[a.Level]
	if !ok {
		log.Errorf("❌ 未知激进度档位: %d", a.Level)
		return 0, false
	}

	bid, _ := book.BestBid()
	ask, _ := book.BestAsk()
	price := fn(bid.Price, ask.Price, a.Tick, a.Mult)
	if price <= 0 || !a.Bounds.Contains(price) {
		return 0, false
	}
	return price, true
}
