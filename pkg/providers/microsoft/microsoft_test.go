package microsoft

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
)

type fakeEdge struct {
	server     *httptest.Server
	authCalls  atomic.Int32
	transCalls atomic.Int32
	rejectOnce atomic.Bool
	lastQuery  atomic.Value
}

func newFakeEdge(t *testing.T) *fakeEdge {
	f := &fakeEdge{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		n := f.authCalls.Add(1)
		w.Write([]byte("token-" + string(rune('0'+n))))
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		f.transCalls.Add(1)
		f.lastQuery.Store(r.URL.RawQuery)
		if f.rejectOnce.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer token-") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var items []translateItem
		require.NoError(t, json.NewDecoder(r.Body).Decode(&items))
		out := make([]map[string]any, len(items))
		for i, it := range items {
			out[i] = map[string]any{
				"detectedLanguage": map[string]any{"language": "en", "score": 1.0},
				"translations": []map[string]any{
					{"text": "[" + it.Text + "]", "to": r.URL.Query().Get("to")},
				},
			}
		}
		json.NewEncoder(w).Encode(out)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEdge) provider(t *testing.T) *Provider {
	cfg := DefaultConfig()
	cfg.AuthURL = f.server.URL + "/auth"
	cfg.APIEndpoint = f.server.URL + "/translate"
	cfg.RetryDelay = time.Millisecond
	p, err := New(cfg, nil)
	require.NoError(t, err)
	return p
}

func TestTranslateLines(t *testing.T) {
	f := newFakeEdge(t)
	p := f.provider(t)

	resp, err := p.Translate(context.Background(), &providers.ProviderRequest{
		Text:           "Hello\nWorld",
		SourceLanguage: "auto",
		TargetLanguage: "zh-TW",
	})
	require.NoError(t, err)
	assert.Equal(t, "[Hello]\n[World]", resp.Text)
	assert.Equal(t, "en", resp.SourceLang)
	assert.Equal(t, "zh-Hant", resp.TargetLang)

	q := f.lastQuery.Load().(string)
	assert.Contains(t, q, "api-version=3.0")
	assert.Contains(t, q, "to=zh-Hant")
	assert.NotContains(t, q, "from=")

	// 令牌被缓存
	_, err = p.Translate(context.Background(), &providers.ProviderRequest{Text: "x", TargetLanguage: "zh"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.authCalls.Load())
}

func TestTokenRefreshAfterRejection(t *testing.T) {
	f := newFakeEdge(t)
	p := f.provider(t)
	f.rejectOnce.Store(true)

	resp, err := p.Translate(context.Background(), &providers.ProviderRequest{
		Text:           "Hi",
		SourceLanguage: "en",
		TargetLanguage: "zh-CN",
	})
	require.NoError(t, err)
	assert.Equal(t, "[Hi]", resp.Text)
	assert.EqualValues(t, 2, f.authCalls.Load())
	assert.EqualValues(t, 2, f.transCalls.Load())
	assert.Contains(t, f.lastQuery.Load().(string), "from=en")
}

func TestPermanentFailureNotRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth" {
			w.Write([]byte("tok"))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.AuthURL = server.URL + "/auth"
	cfg.APIEndpoint = server.URL + "/translate"
	p, err := New(cfg, nil)
	require.NoError(t, err)

	_, err = p.Translate(context.Background(), &providers.ProviderRequest{Text: "Hi", TargetLanguage: "fr"})
	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.ErrCodeBadRequest, perr.Code)
}

func TestLanguageCode(t *testing.T) {
	for in, want := range map[string]string{
		"zh":      "zh-Hans",
		"zh-CN":   "zh-Hans",
		"zh-HK":   "zh-Hant",
		"zh_TW":   "zh-Hant",
		"en-US":   "en",
		"ja":      "ja",
	} {
		got, err := languageCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := languageCode("??")
	assert.Error(t, err)
}
