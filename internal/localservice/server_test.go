package localservice

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/xptranslate/internal/config"
	"github.com/nerdneilsfield/xptranslate/internal/test"
)

func startServer(t *testing.T, engine Engine, tune func(*Options)) (*Server, *x509.CertPool) {
	t.Helper()
	material, err := test.NewTLSMaterial()
	require.NoError(t, err)
	cert, err := ParseKeyPair(material.KeyPEM, material.CertPEM)
	require.NoError(t, err)

	opts := Options{
		Addr:        "127.0.0.1:0",
		TLS:         &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
		MaxWorkers:  4,
		ReadTimeout: 2 * time.Second,
	}
	if tune != nil {
		tune(&opts)
	}
	handler := NewHandler(HandlerConfig{ConfidenceThreshold: 0.5}, engine, fakeIdentifier{code: "en", confidence: 1}, nil)
	srv, err := New(opts, handler, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})
	return srv, material.CertPool()
}

func dial(t *testing.T, srv *Server, pool *x509.CertPool) *tls.Conn {
	t.Helper()
	conn, err := tls.Dial("tcp", srv.Addr().String(), &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, target string) (*http.Response, string) {
	t.Helper()
	_, err := io.WriteString(conn, "GET "+target+" HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n")
	require.NoError(t, err)
	return readResponse(t, conn)
}

func readResponse(t *testing.T, conn net.Conn) (*http.Response, string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServerTranslate(t *testing.T) {
	engine := NewProviderEngine(test.NewFuncProvider(func(text, src, dst string) (string, error) {
		return "汉语", nil
	}))
	srv, pool := startServer(t, engine, nil)

	resp, body := roundTrip(t, dial(t, srv, pool), "/translate?q=Chinese&src=en&dst=zh-TW")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"code":0,"text":"漢語"}`, body)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.True(t, resp.Close)
}

func TestServerErrors(t *testing.T) {
	srv, pool := startServer(t, NewProviderEngine(test.UpperProvider()), nil)

	resp, body := roundTrip(t, dial(t, srv, pool), "/translate?dst=en")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"q required"}`, body)

	resp, _ = roundTrip(t, dial(t, srv, pool), "/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = roundTrip(t, dial(t, srv, pool), "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)

	conn := dial(t, srv, pool)
	_, err := io.WriteString(conn, "NONSENSE\r\n\r\n")
	require.NoError(t, err)
	resp, body = readResponse(t, conn)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"bad request"}`, body)
}

func TestServerBusy(t *testing.T) {
	backend := test.NewBlockingProvider(func(text, _, _ string) (string, error) { return text, nil })
	srv, pool := startServer(t, NewProviderEngine(backend), func(o *Options) {
		o.MaxWorkers = 1
	})

	first := dial(t, srv, pool)
	_, err := io.WriteString(first, "GET /translate?q=slow&src=en&dst=ja HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	select {
	case <-backend.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("backend never started")
	}

	resp, body := roundTrip(t, dial(t, srv, pool), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"error":"server busy"}`, body)
	assert.GreaterOrEqual(t, srv.Rejected(), int64(1))

	backend.Release("slow")
	resp, body = readResponse(t, first)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"code":0,"text":"slow"}`, body)

	// 名额释放后新连接恢复正常
	assert.Eventually(t, func() bool {
		resp, _ := roundTrip(t, dial(t, srv, pool), "/health")
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

func TestDefaultMaxWorkers(t *testing.T) {
	n := DefaultMaxWorkers()
	assert.GreaterOrEqual(t, n, 16)
	assert.LessOrEqual(t, n, 64)
}

func TestServerRecoversHandlerPanic(t *testing.T) {
	srv, pool := startServer(t, panicEngine{}, func(o *Options) {
		o.MaxWorkers = 1
	})

	conn := dial(t, srv, pool)
	_, err := io.WriteString(conn, "GET /translate?q=boom&src=en&dst=ja HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	// 连接被直接关闭，没有响应
	data, _ := io.ReadAll(conn)
	assert.Empty(t, data)

	// 唯一的名额随后归还
	assert.Eventually(t, func() bool {
		resp, _ := roundTrip(t, dial(t, srv, pool), "/health")
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
}

type panicEngine struct{}

func (panicEngine) Translate(context.Context, string, string, string) (string, error) {
	panic("boom")
}

func TestServerRejectsPlaintext(t *testing.T) {
	srv, _ := startServer(t, NewProviderEngine(test.UpperProvider()), nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "GET /health HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	data, _ := io.ReadAll(conn)
	assert.NotContains(t, string(data), "HTTP/1.1")
}

func TestServerRejectsUntrustedClientView(t *testing.T) {
	srv, _ := startServer(t, NewProviderEngine(test.UpperProvider()), nil)
	other, err := test.NewTLSMaterial()
	require.NoError(t, err)

	_, err = tls.Dial("tcp", srv.Addr().String(), &tls.Config{RootCAs: other.CertPool()})
	assert.Error(t, err)
}

func TestNewFailsClosed(t *testing.T) {
	handler := NewHandler(HandlerConfig{}, NewProviderEngine(test.UpperProvider()), nil, nil)

	_, err := New(Options{Addr: "127.0.0.1:0"}, handler, nil)
	assert.ErrorIs(t, err, ErrMissingMaterial)

	material, err := test.NewTLSMaterial()
	require.NoError(t, err)
	cert, err := ParseKeyPair(material.KeyPEM, material.CertPEM)
	require.NoError(t, err)
	_, err = New(Options{Addr: "0.0.0.0:0", TLS: &tls.Config{Certificates: []tls.Certificate{cert}}}, handler, nil)
	assert.ErrorIs(t, err, ErrNotLoopback)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.NewDefaultConfig().Server
	cfg.AssetsDir = t.TempDir()
	cfg.Port = 0
	engine := NewProviderEngine(test.UpperProvider())

	_, err := NewFromConfig(cfg, engine, nil, nil)
	assert.ErrorIs(t, err, ErrMissingMaterial)

	material, err := test.NewTLSMaterial()
	require.NoError(t, err)
	require.NoError(t, material.WriteTo(cfg.AssetsDir, cfg.KeyFile, cfg.CertFile))
	srv, err := NewFromConfig(cfg, engine, nil, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	assert.NotNil(t, srv.Addr())
	require.NoError(t, srv.Close())

	// 配置允许的 localhost 监听在 127.0.0.1
	cfg.Host = "localhost"
	srv, err = NewFromConfig(cfg, engine, nil, nil)
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	assert.Equal(t, "127.0.0.1", srv.Addr().(*net.TCPAddr).IP.String())
	require.NoError(t, srv.Close())
}
