package domain

import (
	"time"
)

// PriceLevel 订单簿档位
type PriceLevel struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Sum    float64 `json:"sum"` // 从 touch 到本档的累计数量
}

// OrderBook 订单簿快照
// 每次轮询整体替换，任何地方都不做原地修改
type OrderBook struct {
	Pair      string       `json:"pair"`
	Bids      []PriceLevel `json:"bids"` // 价格从高到低
	Asks      []PriceLevel `json:"asks"` // 价格从低到高
	Source    string       `json:"source"`
	Timestamp time.Time    `json:"timestamp"`
}

// BestBid 返回买一档
func (b *OrderBook) BestBid() (PriceLevel, bool) {
	if b == nil || len(b.Bids) == 0 {
		return PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk 返回卖一档
func (b *OrderBook) BestAsk() (PriceLevel, bool) {
	if b == nil || len(b.Asks) == 0 {
		return PriceLevel{}, false
	}
	return b.Asks[0], true
}

// IsCrossed 检查盘口是否倒挂（ask <= bid）
// 倒挂快照一律视为不可用，所有定价策略直接返回“不交易”
func (b *OrderBook) IsCrossed() bool {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return false
	}
	return ask.Price <= bid.Price
}

// Valid 检查快照两侧是否都有深度且带时间戳
func (b *OrderBook) Valid() bool {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return false
	}
	return !b.Timestamp.IsZero()
}

// Spread 返回买卖价差（盘口不完整时返回 0,false）
func (b *OrderBook) Spread() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// Mid 返回中间价
func (b *OrderBook) Mid() (float64, bool) {
	bid, okB := b.BestBid()
	ask, okA := b.BestAsk()
	if !okB || !okA {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// Age 返回快照年龄
func (b *OrderBook) Age(now time.Time) time.Duration {
	if b == nil || b.Timestamp.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(b.Timestamp)
}

// CumAmount 返回某侧前 n 档的累计数量
func CumAmount(levels []PriceLevel, n int) float64 {
	if n > len(levels) {
		n = len(levels)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += levels[i].Amount
	}
	return sum
}
