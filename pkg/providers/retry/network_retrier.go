package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// RetryConfig 重试配置
type RetryConfig struct {
	// 最大尝试次数（含首次）
	MaxAttempts int `json:"max_attempts"`

	// 初始延迟时间
	InitialDelay time.Duration `json:"initial_delay"`

	// 最大延迟时间
	MaxDelay time.Duration `json:"max_delay"`

	// 退避因子（指数退避）
	BackoffFactor float64 `json:"backoff_factor"`
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// ErrorType 错误类型枚举
type ErrorType int

const (
	ErrorTypeNone      ErrorType = iota
	ErrorTypeNetwork             // 网络瞬时错误
	ErrorTypeRetryable           // 后端声明可重试
	ErrorTypePermanent           // 永久性错误
)

// retryable 由后端错误类型实现
type retryable interface {
	IsRetryable() bool
}

// NetworkRetrier 网络重试器
type NetworkRetrier struct {
	config RetryConfig
	logger *zap.Logger
}

// NewNetworkRetrier 创建网络重试器
func NewNetworkRetrier(config RetryConfig, logger *zap.Logger) *NetworkRetrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NetworkRetrier{config: config, logger: logger}
}

// Do 执行 fn，遇到可重试错误时按指数退避重试。attempt 从 0 开始。
func (nr *NetworkRetrier) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < nr.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if Classify(err) == ErrorTypePermanent || attempt == nr.config.MaxAttempts-1 {
			break
		}

		delay := nr.calculateDelay(attempt)
		nr.logger.Debug("请求失败，准备重试",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
	}
	return lastErr
}

// Classify 分类错误
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeNone
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypePermanent
	}
	var r retryable
	if errors.As(err, &r) {
		if r.IsRetryable() {
			return ErrorTypeRetryable
		}
		return ErrorTypePermanent
	}
	if IsNetworkError(err) {
		return ErrorTypeNetwork
	}
	return ErrorTypePermanent
}

// IsNetworkError 判断是否为网络错误
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			return true
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"no such host",
		"broken pipe",
		"eof",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// calculateDelay 计算第 attempt 次失败后的等待时间
func (nr *NetworkRetrier) calculateDelay(attempt int) time.Duration {
	delay := float64(nr.config.InitialDelay) * math.Pow(nr.config.BackoffFactor, float64(attempt))
	if nr.config.MaxDelay > 0 && delay > float64(nr.config.MaxDelay) {
		return nr.config.MaxDelay
	}
	return time.Duration(delay)
}
