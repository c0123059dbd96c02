package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shashin/internal/camera"
	"shashin/internal/config"
	"shashin/internal/generated"
	"shashin/internal/session"
)

var _ generated.ServerInterface = (*Handler)(nil)

// Handler は生成されたServerInterfaceを実装する
type Handler struct {
	config       *config.Config
	controller   *session.Controller
	discovery    camera.Discovery
	logger       *zap.Logger
	readyTimeout time.Duration
	upgrader     websocket.Upgrader
}

// newHandler は新しいHandlerを作成する
func newHandler(cfg *config.Config, controller *session.Controller, discovery camera.Discovery, logger *zap.Logger) *Handler {
	return &Handler{
		config:       cfg,
		controller:   controller,
		discovery:    discovery,
		logger:       logger,
		readyTimeout: 3 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, generated.StatusResponse{
		Status: generated.Running,
		Server: generated.ServerInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Session:   convertStatus(h.controller.Status()),
		Timestamp: time.Now(),
	})
}

// ListDevices は利用可能なカメラデバイス一覧エンドポイントの実装
func (h *Handler) ListDevices(c *gin.Context) {
	devices := []generated.DeviceInfo{}
	if h.discovery == nil {
		c.JSON(http.StatusOK, generated.DevicesResponse{Devices: devices, Timestamp: time.Now()})
		return
	}

	paths, err := h.discovery.ScanDevices(c.Request.Context())
	if err != nil {
		respondError(c, fmt.Errorf("%w: %w", camera.ErrDeviceUnavailable, err))
		return
	}

	for _, path := range paths {
		info, err := h.discovery.GetDeviceInfo(c.Request.Context(), path)
		if err != nil {
			h.logger.Debug("デバイス情報の取得に失敗", zap.String("device", path), zap.Error(err))
			continue
		}
		devices = append(devices, convertDevice(info))
	}

	c.JSON(http.StatusOK, generated.DevicesResponse{Devices: devices, Timestamp: time.Now()})
}

// StartSession はセッション開始エンドポイントの実装
//
// ボディが空なら現在の設定で開始し、JSONがあれば指定した項目だけを現在の設定に重ねる。
func (h *Handler) StartSession(c *gin.Context) {
	cfg, ok := h.bindConfig(c)
	if !ok {
		return
	}

	if err := h.controller.Start(c.Request.Context(), cfg); err != nil {
		h.logger.Warn("セッションの開始に失敗", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sessionResponse(nil))
}

// StopSession はセッション停止エンドポイントの実装
func (h *Handler) StopSession(c *gin.Context) {
	artifact, err := h.controller.Stop(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sessionResponse(artifact))
}

// UpdateConfig は設定変更エンドポイントの実装
func (h *Handler) UpdateConfig(c *gin.Context) {
	cfg, ok := h.bindConfig(c)
	if !ok {
		return
	}

	if err := h.controller.UpdateConfig(c.Request.Context(), cfg); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sessionResponse(nil))
}

// SetPreviewVisibility はプレビュー表示切り替えエンドポイントの実装
func (h *Handler) SetPreviewVisibility(c *gin.Context) {
	var req generated.SetPreviewVisibilityJSONRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	h.controller.SetPreviewVisible(req.Visible)
	c.JSON(http.StatusOK, h.sessionResponse(nil))
}

// TakePhoto は写真撮影エンドポイントの実装
//
// format=jpeg ならJPEGをそのまま返し、それ以外はdata URIを含むJSONを返す。
func (h *Handler) TakePhoto(c *gin.Context, params generated.TakePhotoParams) {
	h.waitReady(c.Request.Context())

	artifact, err := h.controller.TakePhoto(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	if params.Format != nil && *params.Format == generated.TakePhotoParamsFormatJpeg {
		c.Header("X-Captured-At", artifact.CapturedAt.Format(time.RFC3339Nano))
		c.Data(http.StatusOK, artifact.MIMEType, artifact.CaptureData().Blob)
		return
	}

	c.JSON(http.StatusOK, generated.PhotoResponse{
		DataUrl:    artifact.CaptureData().DataURL,
		MimeType:   artifact.MIMEType,
		Size:       len(artifact.EncodedImage),
		Width:      artifact.Width,
		Height:     artifact.Height,
		CapturedAt: artifact.CapturedAt,
	})
}

// StartRecording は録画開始エンドポイントの実装
func (h *Handler) StartRecording(c *gin.Context) {
	h.waitReady(c.Request.Context())

	if err := h.controller.StartRecording(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sessionResponse(nil))
}

// StopRecording は録画停止エンドポイントの実装。動画データをそのまま返す
func (h *Handler) StopRecording(c *gin.Context) {
	artifact, err := h.controller.StopRecording(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("X-Recording-Id", artifact.ID)
	c.Header("X-Chunk-Count", strconv.Itoa(artifact.ChunkCount))
	c.Header("X-Duration-Ms", strconv.FormatInt(artifact.Duration().Milliseconds(), 10))
	c.Data(http.StatusOK, artifact.MIMEType, artifact.CaptureData().Blob)
}

// handleRoot はルートパスのハンドラ
func (h *Handler) handleRoot(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>Shashin - カメラ撮影サーバー</title>
</head>
<body>
    <h1>Shashin カメラ撮影サーバー</h1>
    <p>サーバーが正常に起動しています。</p>
    <p>ステータス: <a href="/api/status">/api/status</a></p>
    <p>ヘルスチェック: <a href="/health">/health</a></p>
    <p>プレビュー: <a href="/api/preview">/api/preview</a></p>
</body>
</html>`)
}

// bindConfig は現在の設定にリクエストボディのJSONを重ねる
func (h *Handler) bindConfig(c *gin.Context) (session.CaptureConfig, bool) {
	cfg := h.controller.Config()
	if c.Request.ContentLength == 0 {
		return cfg, true
	}
	var req generated.CaptureConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return cfg, false
	}
	return applyConfig(cfg, req), true
}

// waitReady はセッション中ならプレビューの準備完了を少しだけ待つ
func (h *Handler) waitReady(ctx context.Context) {
	if h.controller.State() == session.StateIdle {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, h.readyTimeout)
	defer cancel()
	_ = h.controller.WaitReady(waitCtx)
}

// sessionResponse は現在の状態から応答を作る
func (h *Handler) sessionResponse(video *session.VideoArtifact) generated.SessionResponse {
	return generated.SessionResponse{
		State:     generated.SessionState(h.controller.State()),
		Config:    convertCaptureConfig(h.controller.Config()),
		Video:     convertVideo(video),
		Timestamp: time.Now(),
	}
}
