package domain

// Balance 单资产余额
type Balance struct {
	Asset     string  `json:"asset"`
	Available float64 `json:"available"`
	// 双向持仓模式下衍生品账户的多/空子余额（现货账户恒为 0）
	LongAvailable  float64 `json:"longAvailable"`
	ShortAvailable float64 `json:"shortAvailable"`
}

// AccountBalances 账户内按资产聚合的余额表
type AccountBalances map[string]Balance

// Available 返回某资产可用余额（缺失资产视为 0）
func (b AccountBalances) Available(asset string) float64 {
	return b[asset].Available
}

// InstrumentInfo 交易对元信息（精度与最小量约束）
type InstrumentInfo struct {
	Pair           string  `json:"pair"`
	BaseAsset      string  `json:"baseAsset"`
	QuoteAsset     string  `json:"quoteAsset"`
	TickSize       float64 `json:"tickSize"`       // 最小价格步长
	AmountPrec     int     `json:"amountPrec"`     // 数量小数位
	MinOrderAmount float64 `json:"minOrderAmount"` // 最小下单数量
	MinNotional    float64 `json:"minNotional"`    // 最小下单名义金额
	Multiplier     float64 `json:"multiplier"`     // 合约乘数（现货为 1）
}

// AccountConfig 账户级配置（经 read-through 缓存读取）
type AccountConfig struct {
	Account     string  `json:"account"`
	Exchange    string  `json:"exchange"`
	IsDualSide  bool    `json:"isDualSide"`  // 双向持仓模式
	Leverage    float64 `json:"leverage"`    // 衍生品杠杆（现货为 1）
	IsDerivative bool   `json:"isDerivative"`
	// RefreshDelay 交易所行情刷新周期：盘口必须比“自家订单最后更新时间+该延迟”更新
	RefreshDelayMs int `json:"refreshDelayMs"`
}
