package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶速率限制器
// 用于限制“重下/撤单这类高成本动作”的频率，避免极端行情下的撤单风暴
type TokenBucket struct {
	capacity   int       // 桶容量
	tokens     float64   // 当前令牌数
	refillRate float64   // 每秒补充的令牌数
	lastRefill time.Time // 上次补充时间
	mu         sync.Mutex
}

// NewTokenBucket 创建新的令牌桶（capacity 容量，refillPerMinute 每分钟补给量）
func NewTokenBucket(capacity, refillPerMinute int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     float64(capacity),
		refillRate: float64(refillPerMinute) / 60.0,
		lastRefill: time.Now(),
	}
}

// refill 补充令牌（调用方持锁）
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > float64(tb.capacity) {
		tb.tokens = float64(tb.capacity)
	}
	tb.lastRefill = now
}

// Allow 检查是否允许消耗 n 个令牌
func (tb *TokenBucket) Allow(n int) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// Remaining 返回当前剩余令牌数（取整）
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return int(tb.tokens)
}

// PerKeyLimiter 按 key（交易对/账户）分桶的限频器
type PerKeyLimiter struct {
	capacity        int
	refillPerMinute int

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewPerKeyLimiter 创建按 key 分桶的限频器
func NewPerKeyLimiter(capacity, refillPerMinute int) *PerKeyLimiter {
	return &PerKeyLimiter{
		capacity:        capacity,
		refillPerMinute: refillPerMinute,
		buckets:         make(map[string]*TokenBucket),
	}
}

// Allow 检查指定 key 是否允许消耗 n 个令牌
func (l *PerKeyLimiter) Allow(key string, n int) bool {
	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = NewTokenBucket(l.capacity, l.refillPerMinute)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow(n)
}
