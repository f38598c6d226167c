package coordinator

import (
	"math"
)

// SpreadGuardKind 价差守卫的四种比较口径
type SpreadGuardKind int

const (
	SpreadAbsGT    SpreadGuardKind = iota // |spread| > threshold
	SpreadAbsLT                           // |spread| < threshold
	SpreadSignedGT                        // spread > threshold（带方向）
	SpreadSignedLT                        // spread < threshold（带方向）
)

// SpreadGuard 跨腿价差条件
// spread = 本腿中间价 − 对手腿中间价（经桥汇率换算）
type SpreadGuard struct {
	Kind      SpreadGuardKind
	Threshold float64
}

// Holds 判断价差是否满足条件
func (g *SpreadGuard) Holds(spread float64) bool {
	switch g.Kind {
	case SpreadAbsGT:
		return math.Abs(spread) > g.Threshold
	case SpreadAbsLT:
		return math.Abs(spread) < g.Threshold
	case SpreadSignedGT:
		return spread > g.Threshold
	case SpreadSignedLT:
		return spread < g.Threshold
	}
	return false
}

// ParseSpreadGuardKind 解析配置里的守卫口径
func ParseSpreadGuardKind(s string) (SpreadGuardKind, bool) {
	switch s {
	case "abs_gt":
		return SpreadAbsGT, true
	case "abs_lt":
		return SpreadAbsLT, true
	case "gt":
		return SpreadSignedGT, true
	case "lt":
		return SpreadSignedLT, true
	}
	return 0, false
}
