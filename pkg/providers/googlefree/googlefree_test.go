package googlefree

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

func TestTranslate(t *testing.T) {
	var query url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`[[["你好，","Hello, ",null,null,10],["世界","world",null,null,10]],null,"en",null,null,null,1]`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIEndpoint = server.URL
	p, err := New(cfg, nil)
	require.NoError(t, err)

	resp, err := p.Translate(context.Background(), &providers.ProviderRequest{
		Text:           "Hello, world",
		TargetLanguage: "zh-HK",
	})
	require.NoError(t, err)
	assert.Equal(t, "你好，世界", resp.Text)
	assert.Equal(t, "en", resp.SourceLang)
	assert.Equal(t, "gtx", query.Get("client"))
	assert.Equal(t, "auto", query.Get("sl"))
	assert.Equal(t, "zh-TW", query.Get("tl"))
	assert.Equal(t, "t", query.Get("dt"))
	assert.Equal(t, "Hello, world", query.Get("q"))
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     string
		detected string
		wantErr  bool
	}{
		{"single", `[[["Hallo","Hello"]],null,"en"]`, "Hallo", "en", false},
		{"no detected", `[[["Hallo","Hello"]]]`, "Hallo", "", false},
		{"not array", `{"error":1}`, "", "", true},
		{"empty", `[]`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detected, err := parseResponse([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.detected, detected)
		})
	}
}

func TestRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.APIEndpoint = server.URL
	cfg.MaxRetries = 0
	p, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = p.Translate(context.Background(), &providers.ProviderRequest{Text: "x", TargetLanguage: "de"})
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.IsRetryable())
}
