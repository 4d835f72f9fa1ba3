// Package localservice 实现只监听回环地址、只接受 TLS 的本地翻译服务。
package localservice

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nerdneilsfield/xptranslate/internal/config"
)

// DefaultPort 固定的服务端口
const DefaultPort = 18181

// busyWriters 同时写 503 响应的连接上限，超出时直接断开
const busyWriters = 8

var (
	// ErrNotLoopback 监听地址不是回环地址
	ErrNotLoopback = errors.New("listen address must be loopback")
	// ErrServerClosed 服务已关闭
	ErrServerClosed = errors.New("server closed")
)

// Options 服务参数
type Options struct {
	Addr           string
	TLS            *tls.Config
	MaxWorkers     int
	ReadTimeout    time.Duration
	RequestTimeout time.Duration
}

// Server 本地翻译服务
type Server struct {
	opts    Options
	handler *Handler
	workers *semaphore.Weighted
	busy    *semaphore.Weighted
	logger  *zap.Logger

	rejected atomic.Int64

	mu     sync.Mutex
	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// DefaultMaxWorkers 按 CPU 数计算的并发连接上限：min(64, max(16, 8n))
func DefaultMaxWorkers() int {
	return min(64, max(16, runtime.NumCPU()*8))
}

// New 创建服务。没有 TLS 配置或地址不是回环地址时拒绝创建。
func New(opts Options, handler *Handler, logger *zap.Logger) (*Server, error) {
	if opts.TLS == nil || len(opts.TLS.Certificates) == 0 {
		return nil, ErrMissingMaterial
	}
	host, _, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", opts.Addr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return nil, fmt.Errorf("%w: %s", ErrNotLoopback, opts.Addr)
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:    opts,
		handler: handler,
		workers: semaphore.NewWeighted(int64(opts.MaxWorkers)),
		busy:    semaphore.NewWeighted(busyWriters),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// NewFromConfig 从配置加载 TLS 材料并创建服务
func NewFromConfig(cfg config.ServerConfig, engine Engine, identifier Identifier, logger *zap.Logger) (*Server, error) {
	tlsConfig, err := LoadTLSConfig(cfg.AssetsDir, cfg.KeyFile, cfg.CertFile)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewHandler(HandlerConfig{
		DefaultSrc:          cfg.DefaultSrc,
		DefaultDst:          cfg.DefaultDst,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		FallbackLang:        cfg.FallbackLang,
	}, engine, identifier, logger)
	return New(Options{
		Addr:           cfg.Addr(),
		TLS:            tlsConfig,
		MaxWorkers:     cfg.MaxWorkers,
		ReadTimeout:    cfg.ReadTimeout,
		RequestTimeout: cfg.RequestTimeout,
	}, handler, logger)
}

// Listen 绑定端口，只创建 TLS 监听
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	s.ln = tls.NewListener(ln, s.opts.TLS)
	s.logger.Info("本地翻译服务已启动", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr 实际监听地址，未监听时为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ListenAndServe 监听并服务，直到 ctx 结束或 Close
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve 运行接收循环
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server not listening")
	}

	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				backoff = min(max(backoff*2, 5*time.Millisecond), time.Second)
				s.logger.Warn("接受连接失败，稍后重试", zap.Error(err), zap.Duration("backoff", backoff))
				time.Sleep(backoff)
				continue
			}
			return err
		}
		backoff = 0

		id := uuid.NewString()
		if !s.workers.TryAcquire(1) {
			s.rejected.Add(1)
			s.rejectBusy(conn, id)
			continue
		}
		if !s.track() {
			s.workers.Release(1)
			conn.Close()
			return nil
		}
		go func() {
			defer s.wg.Done()
			defer s.workers.Release(1)
			defer func() {
				if r := recover(); r != nil {
					conn.Close()
					s.logger.Error("连接处理发生 panic", zap.String("conn_id", id), zap.Any("panic", r))
				}
			}()
			s.serveConn(conn, id)
		}()
	}
}

// track 登记一个处理中的连接，服务已关闭时返回 false
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) serveConn(conn net.Conn, id string) {
	defer conn.Close()
	start := time.Now()
	logger := s.logger.With(zap.String("conn_id", id))

	conn.SetDeadline(start.Add(s.opts.ReadTimeout))
	if tc, ok := conn.(*tls.Conn); ok {
		if err := tc.HandshakeContext(s.ctx); err != nil {
			logger.Debug("TLS 握手失败", zap.Error(err))
			return
		}
	}

	req, err := readRequest(bufio.NewReader(conn))
	if err != nil {
		logger.Debug("请求解析失败", zap.Error(err))
		writeResponse(conn, http.StatusBadRequest, errorBody("bad request"))
		return
	}

	// 后端耗时不受读超时约束
	conn.SetDeadline(time.Time{})
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
	status, body := s.handler.Serve(ctx, req)
	cancel()

	conn.SetWriteDeadline(time.Now().Add(s.opts.ReadTimeout))
	if err := writeResponse(conn, status, body); err != nil {
		logger.Debug("写响应失败", zap.Error(err))
		return
	}
	logger.Debug("请求完成",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", status),
		zap.Duration("duration", time.Since(start)))
}

// rejectBusy 并发连接已满时回复 503，写 503 的协程数也有上限
func (s *Server) rejectBusy(conn net.Conn, id string) {
	if !s.busy.TryAcquire(1) {
		conn.Close()
		return
	}
	if !s.track() {
		s.busy.Release(1)
		conn.Close()
		return
	}
	go func() {
		defer s.wg.Done()
		defer s.busy.Release(1)
		defer conn.Close()

		conn.SetDeadline(time.Now().Add(s.opts.ReadTimeout))
		// 先读完请求再回复，避免未读数据导致连接被重置
		readRequest(bufio.NewReader(conn))
		writeResponse(conn, http.StatusServiceUnavailable, errorBody("server busy"))
		s.logger.Debug("服务繁忙，拒绝连接", zap.String("conn_id", id))
	}()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Rejected 因饱和被拒绝的连接数
func (s *Server) Rejected() int64 {
	return s.rejected.Load()
}

// Close 关闭监听并等待处理中的连接结束
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.cancel()
	s.wg.Wait()
	s.logger.Info("本地翻译服务已停止")
	return err
}
