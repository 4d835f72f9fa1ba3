package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/internal/config"
	"github.com/nerdneilsfield/xptranslate/internal/test"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/chain"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/stats"
)

func TestCreateProviderCached(t *testing.T) {
	f := New(config.NewDefaultConfig(), nil)

	first, err := f.CreateProvider("microsoft")
	require.NoError(t, err)
	second, err := f.CreateProvider("microsoft")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, []string{"microsoft"}, f.Created())

	_, err = f.CreateProvider("babelfish")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPrimarySingle(t *testing.T) {
	f := New(config.NewDefaultConfig(), nil)
	p, err := f.Primary()
	require.NoError(t, err)
	assert.Equal(t, "microsoft", p.GetName())

	_, ok := f.Quick()
	assert.False(t, ok)
}

func TestPrimaryChainOrder(t *testing.T) {
	material, err := test.NewTLSMaterial()
	require.NoError(t, err)
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	require.NoError(t, material.WriteTo(dir, cfg.Server.KeyFile, cfg.Server.CertFile))

	cfg.UseLocalService = true
	cfg.FallbackGemini = true
	cfg.FallbackFreeGAPI = true
	cfg.Server.AssetsDir = dir
	cfg.Providers["gemini"] = config.ProviderConfig{APIKey: "k"}

	f := New(cfg, nil)
	p, err := f.Primary()
	require.NoError(t, err)
	c, ok := p.(*chain.Provider)
	require.True(t, ok)
	assert.Equal(t, "chain(local,microsoft,gemini,googlefree)", c.GetName())

	quick, ok := f.Quick()
	require.True(t, ok)
	assert.Equal(t, "local", quick.GetName())
}

func TestPrimarySkipsUnbuildable(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg := config.NewDefaultConfig()
	cfg.FallbackGemini = true
	cfg.UseLocalService = true
	cfg.Server.AssetsDir = filepath.Join(os.TempDir(), "missing-assets")

	p, err := New(cfg, nil).Primary()
	require.NoError(t, err)
	assert.Equal(t, "microsoft", p.GetName())
}

func TestWithStats(t *testing.T) {
	sm := stats.NewStatsManager("", nil)
	f := New(config.NewDefaultConfig(), nil, WithStats(sm))
	p, err := f.CreateProvider("raw")
	require.NoError(t, err)
	_, ok := p.(*stats.StatisticsMiddleware)
	assert.True(t, ok)
}
