package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/internal/test"
	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

func newProvider(t *testing.T, server *test.MockOpenAIServer) *Provider {
	cfg := GeminiConfig()
	cfg.APIKey = "test-key"
	cfg.APIEndpoint = server.URL
	cfg.MaxRetries = 0
	p, err := New(cfg, nil)
	require.NoError(t, err)
	return p
}

func TestTranslate(t *testing.T) {
	server := test.NewMockOpenAIServer()
	defer server.Close()
	server.AddResponse("Settings", "  設定\n")

	p := newProvider(t, server)
	assert.Equal(t, "gemini", p.GetName())

	resp, err := p.Translate(context.Background(), &providers.ProviderRequest{
		Text:           "Settings",
		SourceLanguage: "en",
		TargetLanguage: "zh-TW",
	})
	require.NoError(t, err)
	assert.Equal(t, "設定", resp.Text)
	assert.EqualValues(t, 1, server.Requests())
}

func TestServerErrorMapped(t *testing.T) {
	server := test.NewMockOpenAIServer()
	defer server.Close()
	server.FailNext(1)

	_, err := newProvider(t, server).Translate(context.Background(), &providers.ProviderRequest{
		Text:           "Settings",
		TargetLanguage: "zh",
	})
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.ErrCodeServer, perr.Code)
	assert.True(t, perr.IsRetryable())
}

func TestRequiresAPIKey(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "Traditional Chinese", languageName("zh-HK"))
	assert.Equal(t, "Simplified Chinese", languageName("zh"))
	assert.Equal(t, "the detected language", languageName("auto"))
	assert.Equal(t, "ja", languageName("ja"))
}
