// Package stats 统计各翻译后端的请求量、成功率与延迟。
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProviderStats 单个后端的统计
type ProviderStats struct {
	ProviderName       string `json:"provider_name"`
	TotalRequests      int64  `json:"total_requests"`
	SuccessfulRequests int64  `json:"successful_requests"`
	FailedRequests     int64  `json:"failed_requests"`

	// 含方括号注释的请求中，注释丢失的次数
	BracketRequests int64 `json:"bracket_requests"`
	BracketLost     int64 `json:"bracket_lost"`

	MinLatency   time.Duration `json:"min_latency"`
	MaxLatency   time.Duration `json:"max_latency"`
	TotalLatency time.Duration `json:"total_latency"`

	ErrorTypes map[string]int64 `json:"error_types"`

	FirstRequestTime time.Time `json:"first_request_time"`
	LastRequestTime  time.Time `json:"last_request_time"`
}

// Snapshot 统计快照
type Snapshot struct {
	ProviderStats
	SuccessRate    float64       `json:"success_rate"`
	AverageLatency time.Duration `json:"average_latency"`
}

// RequestResult 单次请求结果
type RequestResult struct {
	Success     bool
	Latency     time.Duration
	ErrorType   string
	HasBrackets bool
	BracketLost bool
}

// StatsManager 统计管理器
type StatsManager struct {
	mu     sync.Mutex
	stats  map[string]*ProviderStats
	dbPath string
	logger *zap.Logger
}

// NewStatsManager 创建统计管理器，dbPath 为空时不落盘
func NewStatsManager(dbPath string, logger *zap.Logger) *StatsManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsManager{
		stats:  make(map[string]*ProviderStats),
		dbPath: dbPath,
		logger: logger,
	}
}

// RecordRequest 记录请求结果
func (sm *StatsManager) RecordRequest(provider string, result RequestResult) {
	now := time.Now()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	s, ok := sm.stats[provider]
	if !ok {
		s = &ProviderStats{
			ProviderName:     provider,
			ErrorTypes:       make(map[string]int64),
			FirstRequestTime: now,
		}
		sm.stats[provider] = s
	}

	s.TotalRequests++
	s.LastRequestTime = now
	if result.Success {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
		if result.ErrorType != "" {
			s.ErrorTypes[result.ErrorType]++
		}
	}
	if result.HasBrackets {
		s.BracketRequests++
		if result.BracketLost {
			s.BracketLost++
		}
	}

	s.TotalLatency += result.Latency
	if s.MinLatency == 0 || result.Latency < s.MinLatency {
		s.MinLatency = result.Latency
	}
	if result.Latency > s.MaxLatency {
		s.MaxLatency = result.Latency
	}
}

// GetAllStats 按后端名称排序返回快照
func (sm *StatsManager) GetAllStats() []Snapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := make([]Snapshot, 0, len(sm.stats))
	for _, s := range sm.stats {
		out = append(out, snapshotOf(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderName < out[j].ProviderName })
	return out
}

// GetStats 返回单个后端的快照
func (sm *StatsManager) GetStats(provider string) (Snapshot, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.stats[provider]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(s), true
}

func snapshotOf(s *ProviderStats) Snapshot {
	snap := Snapshot{ProviderStats: *s}
	snap.ErrorTypes = make(map[string]int64, len(s.ErrorTypes))
	for k, v := range s.ErrorTypes {
		snap.ErrorTypes[k] = v
	}
	if s.TotalRequests > 0 {
		snap.SuccessRate = float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
		snap.AverageLatency = s.TotalLatency / time.Duration(s.TotalRequests)
	}
	return snap
}

// SaveToDB 以 JSON 写入统计文件
func (sm *StatsManager) SaveToDB() error {
	if sm.dbPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(sm.dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create stats directory: %w", err)
	}

	sm.mu.Lock()
	data, err := json.MarshalIndent(sm.stats, "", "  ")
	sm.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal stats data: %w", err)
	}

	tempPath := sm.dbPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	if err := os.Rename(tempPath, sm.dbPath); err != nil {
		return fmt.Errorf("failed to rename stats file: %w", err)
	}
	sm.logger.Debug("统计已保存", zap.String("path", sm.dbPath))
	return nil
}

// LoadFromDB 读取统计文件，文件不存在时从零开始
func (sm *StatsManager) LoadFromDB() error {
	if sm.dbPath == "" {
		return nil
	}
	data, err := os.ReadFile(sm.dbPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	var loaded map[string]*ProviderStats
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to unmarshal stats data: %w", err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for key, s := range loaded {
		if s.ErrorTypes == nil {
			s.ErrorTypes = make(map[string]int64)
		}
		sm.stats[key] = s
	}
	sm.logger.Debug("统计已加载", zap.String("path", sm.dbPath), zap.Int("providers", len(loaded)))
	return nil
}

// AutoSaveRoutine 定期保存，ctx 结束时再保存一次
func (sm *StatsManager) AutoSaveRoutine(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := sm.SaveToDB(); err != nil {
				sm.logger.Error("退出时保存统计失败", zap.Error(err))
			}
			return
		case <-ticker.C:
			if err := sm.SaveToDB(); err != nil {
				sm.logger.Error("自动保存统计失败", zap.Error(err))
			}
		}
	}
}
