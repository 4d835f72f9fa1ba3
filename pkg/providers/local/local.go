// Package local 是本机 TLS 翻译服务的客户端，只信任配置中固定的证书。
package local

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/providers"
	"github.com/nerdneilsfield/xptranslate/pkg/providers/retry"
)

const defaultEndpoint = "https://127.0.0.1:18181/translate"

// ErrNoCertificate 未提供可信证书
var ErrNoCertificate = errors.New("local service certificate required")

// Config 本地服务客户端配置
type Config struct {
	providers.BaseConfig
	CertFile string `json:"cert_file"`
	// CertPEM 优先于 CertFile
	CertPEM []byte `json:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	cfg := Config{BaseConfig: providers.DefaultConfig()}
	cfg.APIEndpoint = defaultEndpoint
	cfg.Timeout = 5 * time.Second
	cfg.MaxRetries = 0
	return cfg
}

// Provider 本地服务客户端
type Provider struct {
	config     Config
	httpClient *http.Client
	retrier    *retry.NetworkRetrier
}

var _ providers.Provider = (*Provider)(nil)

// New 创建客户端。没有证书时拒绝创建，不会退回到不校验证书的连接。
func New(config Config, logger *zap.Logger) (*Provider, error) {
	if config.APIEndpoint == "" {
		config.APIEndpoint = defaultEndpoint
	}
	pemData := config.CertPEM
	if len(pemData) == 0 {
		if config.CertFile == "" {
			return nil, ErrNoCertificate
		}
		data, err := os.ReadFile(config.CertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate: %w", err)
		}
		pemData = data
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("%w: no certificate in PEM data", ErrNoCertificate)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.TLSClientConfig = &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	transport.DisableKeepAlives = true

	rc := retry.DefaultRetryConfig()
	rc.MaxAttempts = config.MaxRetries + 1
	rc.InitialDelay = config.RetryDelay
	return &Provider{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout, Transport: transport},
		retrier:    retry.NewNetworkRetrier(rc, logger),
	}, nil
}

type response struct {
	Code  int    `json:"code"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Translate 调用 GET /translate?q=&src=&dst=
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	q := url.Values{}
	q.Set("q", req.Text)
	src := req.SourceLanguage
	if providers.IsAutoSource(src) {
		src = "auto"
	}
	q.Set("src", src)
	if req.TargetLanguage != "" {
		q.Set("dst", req.TargetLanguage)
	}
	endpoint := p.config.APIEndpoint + "?" + q.Encode()

	var out response
	err := p.retrier.Do(ctx, "local.translate", func(ctx context.Context, _ int) error {
		var err error
		out, err = p.get(ctx, endpoint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &providers.ProviderResponse{
		Text:       out.Text,
		SourceLang: src,
		TargetLang: req.TargetLanguage,
	}, nil
}

func (p *Provider) get(ctx context.Context, endpoint string) (response, error) {
	var out response
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, providers.NewError(providers.ErrCodeBadResponse, "failed to decode response: "+err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return out, providers.StatusError(resp.StatusCode, []byte(out.Error))
	}
	if out.Code != 0 {
		return out, providers.NewError(providers.ErrCodeBadResponse, fmt.Sprintf("unexpected code %d", out.Code))
	}
	return out, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "local"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength: 5000,
		Local:         true,
	}
}

// HealthCheck 请求 /health
func (p *Provider) HealthCheck(ctx context.Context) error {
	u, err := url.Parse(p.config.APIEndpoint)
	if err != nil {
		return err
	}
	u.Path = "/health"
	u.RawQuery = ""
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return providers.StatusError(resp.StatusCode, nil)
	}
	return nil
}
