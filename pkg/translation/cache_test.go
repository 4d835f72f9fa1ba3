package translation

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	k := Key{Source: "en", Target: "zh-TW", Text: "Hello"}

	_, ok := c.Get(k)
	assert.False(t, ok)

	require.NoError(t, c.Set(k, "你好"))
	v, ok := c.Get(k)
	assert.True(t, ok)
	assert.Equal(t, "你好", v)

	_, ok = c.Get(Key{Source: "en", Target: "ja", Text: "Hello"})
	assert.False(t, ok, "不同语言对互不影响")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, int64(1), stats.Size)

	require.NoError(t, c.Delete(k))
	_, ok = c.Get(k)
	assert.False(t, ok)

	require.NoError(t, c.Set(k, "你好"))
	require.NoError(t, c.Clear())
	assert.Equal(t, CacheStats{}, c.Stats())
}

func TestMemoryCacheConcurrent(t *testing.T) {
	c := NewMemoryCache()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := Key{Source: "en", Target: "zh", Text: fmt.Sprintf("t%d", j%20)}
				_ = c.Set(k, fmt.Sprintf("v%d", j%20))
				if v, ok := c.Get(k); ok {
					assert.Equal(t, fmt.Sprintf("v%d", j%20), v)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(20), c.Stats().Size)
}

func TestSQLiteCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cache.db")
	c, err := NewSQLiteCache(path)
	require.NoError(t, err)

	k := Key{Source: "auto", Target: "zh-TW", Text: "Settings"}
	require.NoError(t, c.Set(k, "設定"))
	require.NoError(t, c.Set(k, "設置"))
	require.NoError(t, c.Close())

	// 重新打开后数据仍在，且同一键只有一条
	c, err = NewSQLiteCache(path)
	require.NoError(t, err)
	defer c.Close()

	v, ok := c.Get(k)
	require.True(t, ok)
	assert.Equal(t, "設置", v)
	assert.Equal(t, int64(1), c.Stats().Size)

	entries, err := c.List(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, k, entries[0].Key)

	require.NoError(t, c.Delete(k))
	_, ok = c.Get(k)
	assert.False(t, ok)

	require.NoError(t, c.Set(k, "設定"))
	require.NoError(t, c.Clear())
	assert.Equal(t, int64(0), c.Stats().Size)
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(false, "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = NewCache(true, filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteCache{}, c)
	require.NoError(t, c.(*SQLiteCache).Close())
}
