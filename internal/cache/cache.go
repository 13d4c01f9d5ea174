package cache

import (
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache interface {
	// Set 设置缓存项
	Set(key string, value interface{}, ttl time.Duration)
	
	// Get 获取缓存项
	Get(key string) (interface{}, bool)
	
	// Delete 删除缓存项
	Delete(key string)
	
	// Clear 清空所有缓存
	Clear()
	
	// Size 获取缓存项数量
	Size() int
	
	// Keys 获取所有键
	Keys() []string
}

// CacheItem 缓存项
type CacheItem struct {
	Value     interface{}
	ExpiresAt time.Time
}

// IsExpired 检查是否过期
func (item *CacheItem) IsExpired() bool {
	return time.Now().After(item.ExpiresAt)
}

// MemoryCache 基于内存的缓存实现
type MemoryCache struct {
	items sync.Map
}

// NewMemoryCache 创建新的内存缓存
func NewMemoryCache() *MemoryCache {
	cache := &MemoryCache{}
	
	// 启动清理协程
	go cache.startCleanup()
	
	return cache
}

// Set 设置缓存项
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	expiresAt := time.Now().Add(ttl)
	if ttl <= 0 {
		// 如果TTL为0或负数，设置为永不过期（100年后）
		expiresAt = time.Now().Add(100 * 365 * 24 * time.Hour)
	}
	
	item := &CacheItem{
		Value:     value,
		ExpiresAt: expiresAt,
	}
	
	c.items.Store(key, item)
}

// Get 获取缓存项
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	value, exists := c.items.Load(key)
	if !exists {
		return nil, false
	}
	
	item, ok := value.(*CacheItem)
	if !ok {
		c.items.Delete(key)
		return nil, false
	}
	
	if item.IsExpired() {
		c.items.Delete(key)
		return nil, false
	}
	
	return item.Value, true
}

// Delete 删除缓存项
func (c *MemoryCache) Delete(key string) {
	c.items.Delete(key)
}

// Clear 清空所有缓存
func (c *MemoryCache) Clear() {
	c.items.Range(func(key, value interface{}) bool {
		c.items.Delete(key)
		return true
	})
}

// Size 获取缓存项数量
func (c *MemoryCache) Size() int {
	count := 0
	c.items.Range(func(key, value interface{}) bool {
		if item, ok := value.(*CacheItem); ok && !item.IsExpired() {
			count++
		}
		return true
	})
	return count
}

// Keys 获取所有有效的键
func (c *MemoryCache) Keys() []string {
	var keys []string
	c.items.Range(func(key, value interface{}) bool {
		if keyStr, ok := key.(string); ok {
			if item, ok := value.(*CacheItem); ok && !item.IsExpired() {
				keys = append(keys, keyStr)
			}
		}
		return true
	})
	return keys
}

// startCleanup 启动定期清理过期项
func (c *MemoryCache) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute) // 每5分钟清理一次
	defer ticker.Stop()
	
	for range ticker.C {
		c.cleanup()
	}
}

// cleanup 清理过期项
func (c *MemoryCache) cleanup() {
	var expiredKeys []interface{}
	
	c.items.Range(func(key, value interface{}) bool {
		if item, ok := value.(*CacheItem); ok && item.IsExpired() {
			expiredKeys = append(expiredKeys, key)
		}
		return true
	})
	
	for _, key := range expiredKeys {
		c.items.Delete(key)
	}
}

var _ Cache = (*MemoryCache)(nil)
