package translation

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

var (
	// ErrNoProvider 未配置翻译后端
	ErrNoProvider = errors.New("translation provider not configured")
	// ErrEmptyResult 后端返回空结果
	ErrEmptyResult = errors.New("empty translation result")
	// ErrPlaceholderLost 后端改写或丢失了保护占位符
	ErrPlaceholderLost = errors.New("preserve placeholder lost")
	// ErrCacheFailed 缓存操作失败
	ErrCacheFailed = errors.New("cache operation failed")
)

// 错误代码
const (
	ErrCodeBackend = "BACKEND_ERROR"
	ErrCodeCache   = "CACHE_ERROR"
)

// TranslationError 带错误代码的翻译错误
type TranslationError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// Retryable 由底层原因决定
func (e *TranslationError) Retryable() bool {
	return IsRetryableError(e.Cause)
}

// WrapError 包装错误，已是 TranslationError 时只追加说明
func WrapError(err error, code, message string) error {
	if err == nil {
		return nil
	}
	var te *TranslationError
	if errors.As(err, &te) {
		return &TranslationError{Code: te.Code, Message: message + ": " + te.Message, Cause: te.Cause}
	}
	return &TranslationError{Code: code, Message: message, Cause: err}
}

// IsRetryableError 后端错误按错误代码判断，其余只把超时视为可重试
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *providers.Error
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
