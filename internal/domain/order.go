package domain

import (
	"time"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite 返回相反方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusSending         OrderStatus = "sending"          // 已提交，交易所尚未确认
	OrderStatusOpen            OrderStatus = "open"             // 挂单中
	OrderStatusPartiallyFilled OrderStatus = "partially_filled" // 部分成交
	OrderStatusCompleted       OrderStatus = "completed"        // 全部成交
	OrderStatusCancelled       OrderStatus = "cancelled"        // 已撤销
	OrderStatusFailed          OrderStatus = "failed"           // 失败（提交异常或超时未决）
)

// Order 订单领域模型
// 提交后归 tracker 独占：状态只会被对账循环改写，到达终态后进入完成/失败集合，
// 不会被重新打开
type Order struct {
	OrderID     string      `json:"orderID"`
	Pair        string      `json:"pair"`
	Account     string      `json:"account"`
	Side        Side        `json:"side"`
	Price       float64     `json:"price"`
	Amount      float64     `json:"amount"`      // 下单数量
	DealtAmount float64     `json:"dealtAmount"` // 已成交数量（单调不减）
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"` // 交易所侧最后更新时间
}

// IsTerminal 检查订单是否处于终态
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// IsSending 检查订单是否仍处于初始提交状态
func (o *Order) IsSending() bool {
	return o.Status == OrderStatusSending
}

// Remaining 返回未成交数量
func (o *Order) Remaining() float64 {
	r := o.Amount - o.DealtAmount
	if r < 0 {
		return 0
	}
	return r
}

// DealtNotional 返回已成交名义金额
func (o *Order) DealtNotional() float64 {
	return o.DealtAmount * o.Price
}
