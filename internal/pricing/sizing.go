package pricing

import (
	"math/rand"

	"github.com/execbot/gotrade/internal/domain"
)

const (
	secondsPerDay = 86400.0
	// DefaultRandomRatio 切片数量随机化的默认半径
	DefaultRandomRatio = 0.2
)

// SliceFromWindow 由目标数量和期望等待窗口推导单笔切片数量：
// 假设平均每 avgWait 秒成交一笔，一天内完成目标所需的单笔数量
// 即 target / (86400 / avgWait)
func SliceFromWindow(target, minWaitSec, maxWaitSec float64) float64 {
	avgWait := (minWaitSec + maxWaitSec) / 2
	if avgWait <= 0 {
		return 0
	}
	return target / (secondsPerDay / avgWait)
}

// RandomizedAmount 把切片数量乘上 [1−r, 1+r] 的均匀随机因子，
// 再按数量精度向下取整；随机化让挂单量不暴露固定模式
func RandomizedAmount(slice, ratio float64, prec int, rng *rand.Rand) float64 {
	if ratio < 0 {
		ratio = 0
	}
	factor := 1 - ratio + 2*ratio*rng.Float64()
	return RoundToPrec(slice*factor, prec)
}

// ClampAmount 把数量压到不超过剩余目标，再按精度取整
func ClampAmount(amount, remaining float64, prec int) float64 {
	if amount > remaining {
		amount = remaining
	}
	return RoundToPrec(amount, prec)
}

// PairedLegAmount 把名义缺口按当前价折成本腿应补的数量
// gap 由调用方算好（已含桥汇率换算和方向取反），这里只负责折算和下限过滤：
// 低于交易对最小数量/最小名义时返回 0（不交易）
func PairedLegAmount(gap, price float64, inst *domain.InstrumentInfo) float64 {
	if price <= 0 || gap <= 0 {
		return 0
	}
	amount := RoundToPrec(gap/price, inst.AmountPrec)
	if amount < inst.MinOrderAmount {
		return 0
	}
	if inst.MinNotional > 0 && amount*price < inst.MinNotional {
		return 0
	}
	return amount
}
