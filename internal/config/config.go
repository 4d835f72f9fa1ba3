package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// CacheConfig 翻译缓存配置
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 是否持久化到 SQLite
	Path    string `mapstructure:"path"`
}

// OrchestratorConfig 异步调度配置
type OrchestratorConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	QuickTimeout time.Duration `mapstructure:"quick_timeout"` // 同步快速路径的预算
}

// ServerConfig 本地翻译服务配置
type ServerConfig struct {
	Host                string        `mapstructure:"host"`
	Port                int           `mapstructure:"port"`
	AssetsDir           string        `mapstructure:"assets_dir"`
	KeyFile             string        `mapstructure:"key_file"`
	CertFile            string        `mapstructure:"cert_file"`
	MaxWorkers          int           `mapstructure:"max_workers"` // 0 表示按 CPU 数计算
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	FallbackLang        string        `mapstructure:"fallback_lang"`
	DefaultSrc          string        `mapstructure:"default_src"`
	DefaultDst          string        `mapstructure:"default_dst"`
	Engine              string        `mapstructure:"engine"` // 服务内部使用的翻译后端
	DetectLanguages     []string      `mapstructure:"detect_languages"`
}

// Addr 监听地址，localhost 解析为 127.0.0.1
func (s ServerConfig) Addr() string {
	host := s.Host
	if strings.EqualFold(host, "localhost") {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, fmt.Sprint(s.Port))
}

// LocalClientConfig 访问本地服务的客户端配置
type LocalClientConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	CertFile string        `mapstructure:"cert_file"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ProviderConfig 单个翻译后端的配置
type ProviderConfig struct {
	APIKey     string            `mapstructure:"api_key"`
	BaseURL    string            `mapstructure:"base_url"`
	AuthURL    string            `mapstructure:"auth_url"`
	Model      string            `mapstructure:"model"`
	Timeout    time.Duration     `mapstructure:"timeout"`
	MaxRetries int               `mapstructure:"max_retries"`
	ProxyURL   string            `mapstructure:"proxy_url"`
	Headers    map[string]string `mapstructure:"headers"`
}

// Config 保存所有配置
type Config struct {
	SourceLang       string                    `mapstructure:"source_lang"`
	TargetLang       string                    `mapstructure:"target_lang"`
	Debug            bool                      `mapstructure:"debug"`
	Verbose          bool                      `mapstructure:"verbose"`
	Provider         string                    `mapstructure:"provider"`
	FallbackGemini   bool                      `mapstructure:"fallback_gemini"`
	FallbackFreeGAPI bool                      `mapstructure:"fallback_free_gapi"`
	UseLocalService  bool                      `mapstructure:"use_local_service"`
	ProtectBrackets  bool                      `mapstructure:"protect_brackets"`
	RulesFile        string                    `mapstructure:"rules_file"`
	HostPackage      string                    `mapstructure:"host_package"`
	Cache            CacheConfig               `mapstructure:"cache"`
	Orchestrator     OrchestratorConfig        `mapstructure:"orchestrator"`
	Server           ServerConfig              `mapstructure:"server"`
	LocalClient      LocalClientConfig         `mapstructure:"local_client"`
	Providers        map[string]ProviderConfig `mapstructure:"providers"`
}

// LoadConfig 从文件和环境变量加载配置，找不到配置文件时使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".xptranslate")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("XPTRANSLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(getDefaultCacheDir(), "translations.db")
	}
	return &cfg, nil
}

// SaveConfig 将配置写入文件
func SaveConfig(cfg *Config, configPath string) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		configPath = filepath.Join(home, ".xptranslate.yaml")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.MergeConfigMap(structToMap(cfg)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return err
	}
	return v.WriteConfig()
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// 默认值都是合法类型，解码不会失败
	_ = v.Unmarshal(&cfg)
	cfg.Providers = make(map[string]ProviderConfig)
	cfg.Cache.Path = filepath.Join(getDefaultCacheDir(), "translations.db")
	return &cfg
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TargetLang) == "" {
		return fmt.Errorf("%w: target_lang is empty", ErrInvalidConfig)
	}
	if !isLoopback(c.Server.Host) {
		return fmt.Errorf("%w: server.host %q is not a loopback address", ErrInvalidConfig, c.Server.Host)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ConfidenceThreshold < 0 || c.Server.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: server.confidence_threshold must be within [0,1]", ErrInvalidConfig)
	}
	if c.Server.Engine == "local" {
		return fmt.Errorf("%w: server.engine cannot be the local service itself", ErrInvalidConfig)
	}
	if c.Orchestrator.Workers <= 0 {
		return fmt.Errorf("%w: orchestrator.workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// ProviderSettings 返回某个后端的配置，没有配置时返回零值
func (c *Config) ProviderSettings(name string) ProviderConfig {
	return c.Providers[name]
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func getDefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "xptranslate")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".xptranslate", "cache")
	}
	return "./xptranslate-cache"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source_lang", "auto")
	v.SetDefault("target_lang", "zh-TW")
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("provider", "microsoft")
	v.SetDefault("fallback_gemini", false)
	v.SetDefault("fallback_free_gapi", false)
	v.SetDefault("use_local_service", false)
	v.SetDefault("protect_brackets", true)
	v.SetDefault("rules_file", "")
	v.SetDefault("host_package", "")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", "")

	v.SetDefault("orchestrator.workers", 20)
	v.SetDefault("orchestrator.queue_size", 1024)
	v.SetDefault("orchestrator.quick_timeout", time.Second)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 18181)
	v.SetDefault("server.assets_dir", "assets")
	v.SetDefault("server.key_file", "local_https_server.key")
	v.SetDefault("server.cert_file", "local_https_server.crt")
	v.SetDefault("server.max_workers", 0)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.confidence_threshold", 0.5)
	v.SetDefault("server.fallback_lang", "en")
	v.SetDefault("server.default_src", "auto")
	v.SetDefault("server.default_dst", "zh-TW")
	v.SetDefault("server.engine", "microsoft")
	v.SetDefault("server.detect_languages", []string{"en", "zh", "ja", "ko", "fr", "de", "es", "ru", "pt", "it", "vi", "th", "id", "ar"})

	v.SetDefault("local_client.endpoint", "https://127.0.0.1:18181/translate")
	v.SetDefault("local_client.cert_file", "")
	v.SetDefault("local_client.timeout", time.Second)
}

func structToMap(cfg *Config) map[string]any {
	return map[string]any{
		"source_lang":        cfg.SourceLang,
		"target_lang":        cfg.TargetLang,
		"debug":              cfg.Debug,
		"verbose":            cfg.Verbose,
		"provider":           cfg.Provider,
		"fallback_gemini":    cfg.FallbackGemini,
		"fallback_free_gapi": cfg.FallbackFreeGAPI,
		"use_local_service":  cfg.UseLocalService,
		"protect_brackets":   cfg.ProtectBrackets,
		"rules_file":         cfg.RulesFile,
		"host_package":       cfg.HostPackage,
		"cache": map[string]any{
			"enabled": cfg.Cache.Enabled,
			"path":    cfg.Cache.Path,
		},
		"orchestrator": map[string]any{
			"workers":       cfg.Orchestrator.Workers,
			"queue_size":    cfg.Orchestrator.QueueSize,
			"quick_timeout": cfg.Orchestrator.QuickTimeout.String(),
		},
		"server": map[string]any{
			"host":                 cfg.Server.Host,
			"port":                 cfg.Server.Port,
			"assets_dir":           cfg.Server.AssetsDir,
			"key_file":             cfg.Server.KeyFile,
			"cert_file":            cfg.Server.CertFile,
			"max_workers":          cfg.Server.MaxWorkers,
			"read_timeout":         cfg.Server.ReadTimeout.String(),
			"request_timeout":      cfg.Server.RequestTimeout.String(),
			"confidence_threshold": cfg.Server.ConfidenceThreshold,
			"fallback_lang":        cfg.Server.FallbackLang,
			"default_src":          cfg.Server.DefaultSrc,
			"default_dst":          cfg.Server.DefaultDst,
			"engine":               cfg.Server.Engine,
			"detect_languages":     cfg.Server.DetectLanguages,
		},
		"local_client": map[string]any{
			"endpoint":  cfg.LocalClient.Endpoint,
			"cert_file": cfg.LocalClient.CertFile,
			"timeout":   cfg.LocalClient.Timeout.String(),
		},
		"providers": providersToMap(cfg.Providers),
	}
}

func providersToMap(ps map[string]ProviderConfig) map[string]any {
	out := make(map[string]any, len(ps))
	for name, p := range ps {
		out[name] = map[string]any{
			"api_key":     p.APIKey,
			"base_url":    p.BaseURL,
			"auth_url":    p.AuthURL,
			"model":       p.Model,
			"timeout":     p.Timeout.String(),
			"max_retries": p.MaxRetries,
			"proxy_url":   p.ProxyURL,
			"headers":     p.Headers,
		}
	}
	return out
}
