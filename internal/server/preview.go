package server

import (
	"image"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shashin/internal/compose"
	"shashin/internal/generated"
	"shashin/internal/session"
)

const (
	previewQuality = 0.8
	wsWriteTimeout = 5 * time.Second
)

// StreamPreview はMJPEGプレビューエンドポイントの実装
//
// セッションが終了して購読が閉じられると応答を終える。
func (h *Handler) StreamPreview(c *gin.Context) {
	if !h.requireSession(c) {
		return
	}

	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	// レスポンスライターを取得
	writer := c.Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	frames, cancel := h.controller.SubscribePreview()
	defer cancel()

	// クライアント切断を検知するためのコンテキスト
	clientGone := c.Request.Context().Done()

	// ストリーミングループ
	for {
		select {
		case <-clientGone:
			return

		case img, ok := <-frames:
			if !ok {
				return
			}

			frame, err := h.encodePreview(img)
			if err != nil {
				h.logger.Debug("プレビューのエンコードに失敗", zap.Error(err))
				continue
			}

			// MJPEGフレームを書き込み
			if _, err := writer.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
				return
			}
			if _, err := writer.Write(frame); err != nil {
				return
			}
			if _, err := writer.Write([]byte("\r\n")); err != nil {
				return
			}

			// バッファをフラッシュ
			flusher.Flush()
		}
	}
}

// PreviewWebSocket はWebSocketプレビューエンドポイントの実装
//
// 各フレームをJPEGのバイナリメッセージとして送る。セッションが終了するとクローズフレームを送って切断する。
func (h *Handler) PreviewWebSocket(c *gin.Context) {
	if !h.requireSession(c) {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket接続のアップグレードに失敗", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	h.logger.Info("WebSocket接続を確立しました", zap.String("remote", c.Request.RemoteAddr))

	frames, cancel := h.controller.SubscribePreview()
	defer cancel()

	// クライアントからのクローズを検知する
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return

		case img, ok := <-frames:
			if !ok {
				// セッションが終了した
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "session stopped")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
				return
			}

			frame, err := h.encodePreview(img)
			if err != nil {
				h.logger.Debug("プレビューのエンコードに失敗", zap.Error(err))
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				h.logger.Debug("WebSocketへの書き込みに失敗", zap.Error(err))
				return
			}
		}
	}
}

// encodePreview はプレビュー用の合成を適用してJPEGにする
func (h *Handler) encodePreview(img image.Image) ([]byte, error) {
	frame, err := h.controller.ComposePreview(img)
	if err != nil {
		return nil, err
	}
	return compose.EncodeJPEG(frame, previewQuality)
}

// requireSession はセッションが開始されていなければ503を返す
func (h *Handler) requireSession(c *gin.Context) bool {
	if h.controller.State() != session.StateIdle {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, generated.ErrorResponse{
		Error:     "session_not_active",
		Message:   "セッションが開始されていません",
		Timestamp: time.Now(),
	})
	return false
}
