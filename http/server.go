// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"downtime/monitoring"
	"downtime/service"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8000,
		Timeout:        120 * time.Second,
		MaxUploadBytes: 64 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, svc *service.Service, hub *monitoring.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	mux := http.NewServeMux()
	h := &handlers{svc: svc, hub: hub, logger: logger, port: config.Port}
	h.register(mux)

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),                   // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(logger),                     // 2. 日志中间件
		SecurityHeadersMiddleware,                    // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),        // 4. CORS中间件
		RequestSizeMiddleware(config.MaxUploadBytes), // 5. 请求大小限制
	)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      chain(mux),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	s.logger.Info("event stream endpoint", zap.String("url", fmt.Sprintf("ws://localhost%s/ws/events", s.server.Addr)))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Handler 返回带中间件的处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
