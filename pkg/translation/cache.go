package translation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Key 缓存键：源语言、目标语言、原文三元组
type Key struct {
	Source string
	Target string
	Text   string
}

// String 返回 "src:dst:text" 形式，用于日志和合并请求
func (k Key) String() string {
	return k.Source + ":" + k.Target + ":" + k.Text
}

// Entry 缓存条目
type Entry struct {
	Key        Key
	Translated string
	CreatedAt  time.Time
}

// CacheStats 缓存统计
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int64
}

// Cache 翻译缓存接口，实现必须支持并发读写
type Cache interface {
	Get(key Key) (string, bool)
	Set(key Key, value string) error
	Delete(key Key) error
	Clear() error
	Stats() CacheStats
}

// Lister 可枚举条目的缓存
type Lister interface {
	List(limit int) ([]Entry, error)
}

// MemoryCache 内存缓存实现
type MemoryCache struct {
	mutex  sync.RWMutex
	data   map[Key]Entry
	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache 创建内存缓存
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		data: make(map[Key]Entry),
	}
}

// Get 获取缓存，多个读者可以并发进行
func (c *MemoryCache) Get(key Key) (string, bool) {
	c.mutex.RLock()
	entry, ok := c.data[key]
	c.mutex.RUnlock()

	if !ok {
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return entry.Translated, true
}

// Set 写入单个条目，整条替换
func (c *MemoryCache) Set(key Key, value string) error {
	c.mutex.Lock()
	c.data[key] = Entry{Key: key, Translated: value, CreatedAt: time.Now()}
	c.mutex.Unlock()
	return nil
}

// Delete 删除缓存
func (c *MemoryCache) Delete(key Key) error {
	c.mutex.Lock()
	delete(c.data, key)
	c.mutex.Unlock()
	return nil
}

// Clear 清除所有缓存
func (c *MemoryCache) Clear() error {
	c.mutex.Lock()
	c.data = make(map[Key]Entry)
	c.mutex.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

// Stats 获取缓存统计信息
func (c *MemoryCache) Stats() CacheStats {
	c.mutex.RLock()
	size := len(c.data)
	c.mutex.RUnlock()

	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   int64(size),
	}
}

// List 返回最多 limit 个条目的快照，limit <= 0 表示全部
func (c *MemoryCache) List(limit int) ([]Entry, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make([]Entry, 0, len(c.data))
	for _, e := range c.data {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, e)
	}
	return out, nil
}

// NewCache 根据配置创建缓存实例：未启用时返回纯内存缓存，指定路径时使用 SQLite 持久化
func NewCache(persist bool, path string) (Cache, error) {
	if !persist || path == "" {
		return NewMemoryCache(), nil
	}
	return NewSQLiteCache(path)
}
