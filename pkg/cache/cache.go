package cache

import (
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// InMemoryCache 内存缓存实现
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
}

// cacheItem 缓存项
type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache 创建新的内存缓存
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	cache := &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
	}

	go cache.startCleanup()

	return cache
}

// Get 获取缓存值
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		var zero V
		return zero, false
	}

	if time.Now().After(item.expiresAt) {
		// 异步删除过期项
		go c.Delete(key)
		var zero V
		return zero, false
	}

	return item.value, true
}

// Set 设置缓存值
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.items[key] = &cacheItem[V]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear 清空缓存
func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*cacheItem[V])
}

// Size 获取缓存大小
func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// startCleanup 定期清理过期项
func (c *InMemoryCache[K, V]) startCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.cleanup()
	}
}

// cleanup 清理过期项
func (c *InMemoryCache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// ReadThrough 读穿缓存：miss 时调用 loader 并回填
// 账户配置类查询（交易所名、杠杆、持仓模式）用它替代“查一次缓存到死”的记忆化，
// TTL 到期后自动走 loader 刷新，账户配置在运行期变更也能被看到
type ReadThrough[K comparable, V any] struct {
	cache  *InMemoryCache[K, V]
	loader func(key K) (V, error)
	ttl    time.Duration

	mu sync.Mutex // 串行化同 key 的并发加载
}

// NewReadThrough 创建读穿缓存
func NewReadThrough[K comparable, V any](ttl time.Duration, loader func(key K) (V, error)) *ReadThrough[K, V] {
	return &ReadThrough[K, V]{
		cache:  NewInMemoryCache[K, V](ttl),
		loader: loader,
		ttl:    ttl,
	}
}

// Get 获取值，缓存 miss 时加载
func (r *ReadThrough[K, V]) Get(key K) (V, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// double-check：拿到锁后可能已有别的调用回填
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}

	v, err := r.loader(key)
	if err != nil {
		var zero V
		return zero, err
	}
	r.cache.Set(key, v, r.ttl)
	return v, nil
}

// Invalidate 使指定 key 失效（账户配置变更后调用）
func (r *ReadThrough[K, V]) Invalidate(key K) {
	r.cache.Delete(key)
}
