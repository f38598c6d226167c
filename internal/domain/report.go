package domain

// ExecutionReport 成交进度汇总
// 由完成订单集合重算得出的派生数据，不做增量维护
type ExecutionReport struct {
	LongAmount  float64 `json:"longAmount"`  // 买入累计成交数量
	ShortAmount float64 `json:"shortAmount"` // 卖出累计成交数量
	Cost        float64 `json:"cost"`        // 买入累计金额
	Revenue     float64 `json:"revenue"`     // 卖出累计金额
	AvgPrice    float64 `json:"avgPrice"`    // 全部成交的加权平均价
	TotalAmount float64 `json:"totalAmount"` // 总成交数量
	TotalCash   float64 `json:"totalCash"`   // 总成交金额
}

// BuildReport 从完成订单集合重算汇总
func BuildReport(orders []*Order) ExecutionReport {
	var r ExecutionReport
	for _, o := range orders {
		if o == nil || o.DealtAmount <= 0 {
			continue
		}
		notional := o.DealtAmount * o.Price
		switch o.Side {
		case SideBuy:
			r.LongAmount += o.DealtAmount
			r.Cost += notional
		case SideSell:
			r.ShortAmount += o.DealtAmount
			r.Revenue += notional
		}
		r.TotalAmount += o.DealtAmount
		r.TotalCash += notional
	}
	if r.TotalAmount > 0 {
		r.AvgPrice = r.TotalCash / r.TotalAmount
	}
	return r
}

// NetPosition 返回净头寸（多减空）
func (r ExecutionReport) NetPosition() float64 {
	return r.LongAmount - r.ShortAmount
}

// ToWire 转换为字符串键值形态
// 旧系统的落盘/上报格式是 string-keyed map，这个形状只存在于序列化边界
func (r ExecutionReport) ToWire() map[string]float64 {
	return map[string]float64{
		"long":         r.LongAmount,
		"short":        r.ShortAmount,
		"cost":         r.Cost,
		"revenue":      r.Revenue,
		"price":        r.AvgPrice,
		"total_amount": r.TotalAmount,
		"total_cash":   r.TotalCash,
	}
}

// ReportFromWire 从字符串键值形态还原
func ReportFromWire(m map[string]float64) ExecutionReport {
	return ExecutionReport{
		LongAmount:  m["long"],
		ShortAmount: m["short"],
		Cost:        m["cost"],
		Revenue:     m["revenue"],
		AvgPrice:    m["price"],
		TotalAmount: m["total_amount"],
		TotalCash:   m["total_cash"],
	}
}
