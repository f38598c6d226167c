package pricing

import (
	"github.com/execbot/gotrade/internal/domain"
)

// Vanilla 基础定价：贴着对手方最优价让出一个固定增量
// 买单 = 卖一 − increment，卖单 = 买一 + increment
type Vanilla struct {
	Increment float64 // 价格增量，通常是一个 tick
	Bounds    Bounds
}

// NewVanilla 创建基础策略
func NewVanilla(increment float64, bounds Bounds) *Vanilla {
	return &Vanilla{Increment: increment, Bounds: bounds}
}

// Price 计算候选价格；盘口不可用或越界时返回 false
func (v *Vanilla) Price(book *domain.OrderBook, side domain.Side) (float64, bool) {
	if !usableBook(book) {
		return 0, false
	}

	var price float64
	switch side {
	case domain.SideBuy:
		ask, _ := book.BestAsk()
		price = ask.Price - v.Increment
	case domain.SideSell:
		bid, _ := book.BestBid()
		price = bid.Price + v.Increment
	default:
		return 0, false
	}

	if price <= 0 || !v.Bounds.Contains(price) {
		log.Debugf("💡 价格越界不交易: pair=%s side=%s price=%v bounds=[%v,%v]",
			book.Pair, side, price, v.Bounds.MinPrice, v.Bounds.MaxPrice)
		return 0, false
	}
	return price, true
}
