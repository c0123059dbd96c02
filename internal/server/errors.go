package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"shashin/internal/camera"
	"shashin/internal/generated"
	"shashin/internal/session"
)

// errorMapping はエラーとHTTPステータスの対応
var errorMapping = []struct {
	target  error
	status  int
	code    string
	message string
}{
	{session.ErrInvalidConfig, http.StatusBadRequest, "invalid_config", "設定が不正です"},
	{session.ErrAlreadyRecording, http.StatusConflict, "already_recording", "既に録画中です"},
	{session.ErrNotRecording, http.StatusConflict, "not_recording", "録画していません"},
	{session.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition", "現在の状態ではこの操作を実行できません"},
	{camera.ErrPermissionDenied, http.StatusForbidden, "permission_denied", "カメラへのアクセスが拒否されました"},
	{camera.ErrDeviceUnavailable, http.StatusServiceUnavailable, "device_unavailable", "カメラデバイスが利用できません"},
	{camera.ErrStreamNotReady, http.StatusTooEarly, "stream_not_ready", "プレビューの準備ができていません"},
	{camera.ErrNoActiveStream, http.StatusConflict, "no_active_stream", "アクティブなストリームがありません"},
	{session.ErrCaptureFailed, http.StatusInternalServerError, "capture_failed", "キャプチャに失敗しました"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout", "処理がタイムアウトしました"},
}

// respondError はエラーに応じたステータスでErrorResponseを返す
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "内部エラーが発生しました"

	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			status, code, message = m.status, m.code, m.message
			break
		}
	}

	details := err.Error()
	c.JSON(status, generated.ErrorResponse{
		Error:     code,
		Message:   message,
		Details:   &details,
		Timestamp: time.Now(),
	})
}

// respondBadRequest はリクエスト不正の応答を返す
func respondBadRequest(c *gin.Context, err error) {
	details := err.Error()
	c.JSON(http.StatusBadRequest, generated.ErrorResponse{
		Error:     "invalid_request",
		Message:   "リクエストが不正です",
		Details:   &details,
		Timestamp: time.Now(),
	})
}
