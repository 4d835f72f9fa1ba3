package localservice

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/xptranslate/pkg/langtag"
)

// HandlerConfig 请求处理配置
type HandlerConfig struct {
	DefaultSrc          string
	DefaultDst          string
	ConfidenceThreshold float64
	FallbackLang        string
}

// Handler 处理单个已解析的请求，不关心连接与 TLS
type Handler struct {
	cfg        HandlerConfig
	engine     Engine
	identifier Identifier
	script     *ScriptConverter
	logger     *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(cfg HandlerConfig, engine Engine, identifier Identifier, logger *zap.Logger) *Handler {
	if cfg.DefaultSrc == "" {
		cfg.DefaultSrc = langtag.Auto
	}
	if cfg.DefaultDst == "" {
		cfg.DefaultDst = "zh-TW"
	}
	if cfg.FallbackLang == "" {
		cfg.FallbackLang = "en"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:        cfg,
		engine:     engine,
		identifier: identifier,
		script:     NewScriptConverter(),
		logger:     logger,
	}
}

// Serve 返回状态码与 JSON 响应体
func (h *Handler) Serve(ctx context.Context, req *request) (int, []byte) {
	if req.Method != http.MethodGet {
		return http.StatusNotFound, errorBody("not found")
	}
	switch req.Path {
	case "/health":
		return http.StatusOK, jsonBody(map[string]string{"status": "ok"})
	case "/translate":
		text, err := h.translate(ctx, req)
		if err != nil {
			var perr *protocolError
			if errors.As(err, &perr) {
				return perr.status, errorBody(perr.message)
			}
			h.logger.Warn("翻译请求失败", zap.Error(err))
			return http.StatusInternalServerError, errorBody(err.Error())
		}
		return http.StatusOK, jsonBody(translateResult{Code: 0, Text: text})
	default:
		return http.StatusNotFound, errorBody("not found")
	}
}

func (h *Handler) translate(ctx context.Context, req *request) (string, error) {
	text := req.Query.Get("q")
	if text == "" {
		return "", badRequest("q required")
	}
	src := strings.TrimSpace(req.Query.Get("src"))
	if src == "" {
		src = h.cfg.DefaultSrc
	}
	dst := strings.TrimSpace(req.Query.Get("dst"))
	if dst == "" {
		dst = h.cfg.DefaultDst
	}
	if langtag.IsAuto(src) {
		src = resolveSource(h.identifier, text, h.cfg.ConfidenceThreshold, h.cfg.FallbackLang)
	}

	srcCode, err := NormalizeCode(src)
	if err != nil {
		return "", badRequest("unsupported language")
	}
	dstCode, err := NormalizeCode(dst)
	if err != nil {
		return "", badRequest("unsupported language")
	}

	translated := text
	if srcCode != dstCode {
		translated, err = h.engine.Translate(ctx, text, srcCode, dstCode)
		if err != nil {
			return "", err
		}
	}

	converted, err := h.script.ConvertFor(dst, translated)
	if err != nil {
		h.logger.Warn("繁体转换失败，返回原始译文", zap.String("dst", dst), zap.Error(err))
		return translated, nil
	}

	h.logger.Debug("翻译完成",
		zap.String("src", srcCode),
		zap.String("dst", dst),
		zap.Int("length", len([]rune(text))))
	return converted, nil
}
