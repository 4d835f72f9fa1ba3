package stats

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/internal/test"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

func TestMiddlewareRecords(t *testing.T) {
	sm := NewStatsManager("", nil)

	calls := 0
	backend := test.NewFuncProvider(func(text, _, _ string) (string, error) {
		calls++
		switch calls {
		case 1:
			return "好 [icon]", nil
		case 2:
			return "好", nil
		default:
			return "", providers.NewError(providers.ErrCodeRateLimit, "slow")
		}
	})
	mw := NewStatisticsMiddleware(backend, sm)
	assert.Equal(t, "func", mw.GetName())

	ctx := context.Background()
	_, err := mw.Translate(ctx, &providers.ProviderRequest{Text: "Good [icon]"})
	require.NoError(t, err)
	_, err = mw.Translate(ctx, &providers.ProviderRequest{Text: "Good [icon]"})
	require.NoError(t, err)
	_, err = mw.Translate(ctx, &providers.ProviderRequest{Text: "Good"})
	require.Error(t, err)

	snap, ok := sm.GetStats("func")
	require.True(t, ok)
	assert.EqualValues(t, 3, snap.TotalRequests)
	assert.EqualValues(t, 2, snap.SuccessfulRequests)
	assert.EqualValues(t, 1, snap.FailedRequests)
	assert.EqualValues(t, 2, snap.BracketRequests)
	assert.EqualValues(t, 1, snap.BracketLost)
	assert.EqualValues(t, 1, snap.ErrorTypes[providers.ErrCodeRateLimit])
	assert.InDelta(t, 66.6, snap.SuccessRate, 0.1)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats", "providers.json")
	sm := NewStatsManager(path, nil)
	sm.RecordRequest("microsoft", RequestResult{Success: true})
	sm.RecordRequest("microsoft", RequestResult{ErrorType: "timeout"})
	require.NoError(t, sm.SaveToDB())

	loaded := NewStatsManager(path, nil)
	require.NoError(t, loaded.LoadFromDB())
	all := loaded.GetAllStats()
	require.Len(t, all, 1)
	assert.Equal(t, "microsoft", all[0].ProviderName)
	assert.EqualValues(t, 2, all[0].TotalRequests)
	assert.EqualValues(t, 1, all[0].ErrorTypes["timeout"])

	missing := NewStatsManager(filepath.Join(t.TempDir(), "none.json"), nil)
	assert.NoError(t, missing.LoadFromDB())
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "canceled", classifyError(context.Canceled))
	assert.Equal(t, "unknown", classifyError(errors.New("x")))
}
