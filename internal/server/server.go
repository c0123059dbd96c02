package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shashin/api"
	"shashin/internal/camera"
	"shashin/internal/compose"
	"shashin/internal/config"
	"shashin/internal/generated"
	"shashin/internal/session"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	controller *session.Controller
	discovery  camera.Discovery
	logger     *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New は新しいServerインスタンスを作成する
//
// リクエストは埋め込みのOpenAPI定義で検証してからハンドラに渡す。
func New(cfg *config.Config, controller *session.Controller, discovery camera.Discovery, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	doc, err := api.Load(context.Background())
	if err != nil {
		return nil, err
	}
	validator, err := requestValidator(doc)
	if err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), validator)

	s := &Server{
		config:     cfg,
		controller: controller,
		discovery:  discovery,
		logger:     logger,
		engine:     engine,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
	s.setupRoutes(newHandler(cfg, controller, discovery, logger))
	return s, nil
}

// NewFromConfig は設定からデバイスとセッションを組み立ててServerを作成する
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	device, discovery := newDevice(cfg, logger)
	streams := camera.NewStreamManager(device, logger.Named("camera"))
	compositor := compose.NewCompositor(logger.Named("compose"))
	controller := session.NewController(streams, compositor, logger.Named("session"))

	capture := cfg.Capture
	if cfg.Camera.Device != "" {
		if _, ok := capture.VideoConstraints[session.ConstraintDeviceID]; !ok {
			capture = capture.WithVideoConstraint(session.ConstraintDeviceID, cfg.Camera.Device)
		}
	}

	// idle のうちに初期設定を反映する
	if err := controller.UpdateConfig(context.Background(), capture); err != nil {
		return nil, fmt.Errorf("撮影設定の反映に失敗: %w", err)
	}

	return New(cfg, controller, discovery, logger)
}

// newDevice は設定に応じてカメラデバイスとデバイス検出を作成する
func newDevice(cfg *config.Config, logger *zap.Logger) (camera.Device, camera.Discovery) {
	if cfg.Camera.Mock {
		logger.Info("モックカメラを使用します", zap.Int("width", cfg.Camera.Width), zap.Int("height", cfg.Camera.Height))
		return camera.NewMockDevice(cfg.Camera.Width, cfg.Camera.Height), camera.NewMockDiscovery([]string{"/dev/video0"})
	}
	discovery := camera.NewLinuxDiscovery()
	return camera.NewFFmpegDevice(discovery, camera.FFmpegDeviceConfig{
		FFmpegPath: cfg.Camera.FFmpegPath,
		Width:      cfg.Camera.Width,
		Height:     cfg.Camera.Height,
		FPS:        cfg.Camera.FPS,
	}, logger.Named("device")), discovery
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(h *Handler) {
	s.engine.GET("/", h.handleRoot)

	generated.RegisterHandlersWithOptions(s.engine, h, generated.GinServerOptions{
		ErrorHandler: func(c *gin.Context, err error, _ int) {
			respondBadRequest(c, err)
		},
	})
}

// Handler はルーティング済みのHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Controller はセッションコントローラを返す
func (s *Server) Controller() *session.Controller {
	return s.controller
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	if s.config.Server.AutoStart {
		if err := s.controller.Start(ctx, s.controller.Config()); err != nil {
			s.logger.Warn("セッションの自動開始に失敗", zap.Error(err))
		}
	}

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", zap.String("addr", s.config.ServerAddress()))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", zap.String("signal", sig.String()))
	case err := <-shutdownCh:
		_, _ = s.controller.Stop(context.Background())
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はカメラを解放してからサーバーをグレースフルにシャットダウンする
//
// 先にセッションを止めてプレビューの購読を閉じ、配信中のハンドラを終わらせる。
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	artifact, err := s.controller.Stop(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("セッションの終了に失敗: %w", err))
	}
	if artifact != nil {
		s.logger.Warn("録画中の動画を破棄しました", zap.String("recording", artifact.ID), zap.Int("bytes", len(artifact.EncodedVideo)))
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("サーバーのシャットダウンに失敗: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
