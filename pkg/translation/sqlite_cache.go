package translation

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS translations (
	src        TEXT NOT NULL,
	dst        TEXT NOT NULL,
	text       TEXT NOT NULL,
	translated TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (src, dst, text)
);`

// SQLiteCache 持久化缓存，前面挂一层内存缓存作为一级缓存
type SQLiteCache struct {
	db     *sql.DB
	memory *MemoryCache
	hits   atomic.Int64
	misses atomic.Int64
}

// NewSQLiteCache 打开（必要时创建）SQLite 缓存数据库
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, WrapError(err, ErrCodeCache, "创建缓存目录失败")
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, WrapError(err, ErrCodeCache, "打开缓存数据库失败")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, WrapError(err, ErrCodeCache, "初始化缓存表失败")
	}

	return &SQLiteCache{db: db, memory: NewMemoryCache()}, nil
}

// Get 先查内存，再查数据库，数据库命中后回填内存
func (c *SQLiteCache) Get(key Key) (string, bool) {
	if v, ok := c.memory.Get(key); ok {
		c.hits.Add(1)
		return v, true
	}

	var translated string
	err := c.db.QueryRow(
		`SELECT translated FROM translations WHERE src = ? AND dst = ? AND text = ?`,
		key.Source, key.Target, key.Text,
	).Scan(&translated)
	if err != nil {
		c.misses.Add(1)
		return "", false
	}

	_ = c.memory.Set(key, translated)
	c.hits.Add(1)
	return translated, true
}

// Set 写入内存与数据库
func (c *SQLiteCache) Set(key Key, value string) error {
	if err := c.memory.Set(key, value); err != nil {
		return err
	}
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO translations (src, dst, text, translated, created_at) VALUES (?, ?, ?, ?, ?)`,
		key.Source, key.Target, key.Text, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheFailed, err)
	}
	return nil
}

// Delete 删除单个条目
func (c *SQLiteCache) Delete(key Key) error {
	_ = c.memory.Delete(key)
	_, err := c.db.Exec(
		`DELETE FROM translations WHERE src = ? AND dst = ? AND text = ?`,
		key.Source, key.Target, key.Text,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheFailed, err)
	}
	return nil
}

// Clear 清除所有缓存
func (c *SQLiteCache) Clear() error {
	_ = c.memory.Clear()
	c.hits.Store(0)
	c.misses.Store(0)
	if _, err := c.db.Exec(`DELETE FROM translations`); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheFailed, err)
	}
	return nil
}

// Stats 获取缓存统计信息，Size 为数据库中的条目数
func (c *SQLiteCache) Stats() CacheStats {
	var size int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM translations`).Scan(&size); err != nil {
		size = c.memory.Stats().Size
	}
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   size,
	}
}

// List 按写入时间倒序列出条目
func (c *SQLiteCache) List(limit int) ([]Entry, error) {
	query := `SELECT src, dst, text, translated, created_at FROM translations ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheFailed, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Key.Source, &e.Key.Target, &e.Key.Text, &e.Translated, &created); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheFailed, err)
		}
		e.CreatedAt = time.Unix(created, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close 关闭数据库
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
