package pricing

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/execbot/gotrade/internal/domain"
)

var log = logrus.WithField("module", "pricing")

// Quote 策略产出的候选报价
type Quote struct {
	Price  float64
	Amount float64
}

// Strategy 定价策略：从盘口快照算出候选价格
// 返回 false 表示“不交易”，调用方必须刷新行情后再试，
// 不允许拿着同一份过期快照忙等重试
type Strategy interface {
	Price(book *domain.OrderBook, side domain.Side) (float64, bool)
}

// Bounds 价格边界约束
type Bounds struct {
	MinPrice float64
	MaxPrice float64
}

// Contains 检查价格是否在 [min, max] 内；0 值边界视为未配置
func (b Bounds) Contains(price float64) bool {
	if b.MinPrice > 0 && price < b.MinPrice {
		return false
	}
	if b.MaxPrice > 0 && price > b.MaxPrice {
		return false
	}
	return true
}

// SnapToTick 把价格对齐到 tick 整数倍
func SnapToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// RoundToPrec 把数量按小数位精度截断（向下）
func RoundToPrec(amount float64, prec int) float64 {
	if prec < 0 {
		return amount
	}
	pow := math.Pow(10, float64(prec))
	return math.Floor(amount*pow) / pow
}

// usableBook 统一的快照前置校验：两侧有深度、带时间戳、未倒挂
func usableBook(book *domain.OrderBook) bool {
	if !book.Valid() {
		return false
	}
	if book.IsCrossed() {
		log.Warnf("⚠️ 盘口倒挂，跳过定价: pair=%s", book.Pair)
		return false
	}
	return true
}
