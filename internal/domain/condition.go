package domain

import (
	"strconv"
	"strings"
)

// CompareOp 比较运算符
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpLT CompareOp = "<"
	OpGE CompareOp = ">="
	OpLE CompareOp = "<="
)

// Eval 计算 value op threshold
func (op CompareOp) Eval(value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpGE:
		return value >= threshold
	case OpLE:
		return value <= threshold
	}
	return false
}

func parseOp(s string) (CompareOp, bool) {
	switch CompareOp(strings.TrimSpace(s)) {
	case OpGT:
		return OpGT, true
	case OpLT:
		return OpLT, true
	case OpGE:
		return OpGE, true
	case OpLE:
		return OpLE, true
	}
	return "", false
}

// TriggerCondition 触发条件：参考交易所上某个交易对的价格满足比较式才允许交易
// 配置用 4 段冒号分隔字符串表达："exchange:pair:op:threshold"
// 例如 "binance:btc_usdt:>=:97000"
type TriggerCondition struct {
	Exchange  string
	Pair      string
	Op        CompareOp
	Threshold float64
}

// ParseTriggerCondition 解析触发条件字符串
// 畸形字符串一律归一化为 nil（条件缺省），不报错也不让 bot 崩溃
func ParseTriggerCondition(s string) *TriggerCondition {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return nil
	}
	op, ok := parseOp(parts[2])
	if !ok {
		return nil
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
	if err != nil {
		return nil
	}
	exchange := strings.TrimSpace(parts[0])
	pair := strings.TrimSpace(parts[1])
	if exchange == "" || pair == "" {
		return nil
	}
	return &TriggerCondition{
		Exchange:  exchange,
		Pair:      pair,
		Op:        op,
		Threshold: threshold,
	}
}

// StopCondition 停止条件：某资产余额满足比较式则停止交易
// 配置用 3 段冒号分隔字符串表达："asset:op:threshold"
// 例如 "usdt:<:1000"
type StopCondition struct {
	Asset     string
	Op        CompareOp
	Threshold float64
}

// ParseStopCondition 解析停止条件字符串，畸形输入归一化为 nil
func ParseStopCondition(s string) *StopCondition {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil
	}
	op, ok := parseOp(parts[1])
	if !ok {
		return nil
	}
	threshold, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
	if err != nil {
		return nil
	}
	asset := strings.TrimSpace(parts[0])
	if asset == "" {
		return nil
	}
	return &StopCondition{
		Asset:     asset,
		Op:        op,
		Threshold: threshold,
	}
}
