package translation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, ErrCodeBackend, "x"))

	cause := providers.NewError(providers.ErrCodeRateLimit, "slow down")
	err := WrapError(cause, ErrCodeBackend, "microsoft 翻译失败")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "[BACKEND_ERROR]")

	again := WrapError(err, ErrCodeCache, "外层")
	var te *TranslationError
	assert.True(t, errors.As(again, &te))
	assert.Equal(t, ErrCodeBackend, te.Code)
	assert.Equal(t, "外层: microsoft 翻译失败", te.Message)
	assert.True(t, te.Retryable())
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", providers.StatusError(503, nil))))
	assert.False(t, IsRetryableError(providers.StatusError(400, nil)))
	assert.False(t, IsRetryableError(ErrEmptyResult))
}
