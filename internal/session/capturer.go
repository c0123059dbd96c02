package session

import (
	"context"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"shashin/internal/camera"
	"shashin/internal/compose"
)

// FrameCapturer はストリームから1フレームを取り出す
type FrameCapturer struct {
	device camera.Device
	logger *zap.Logger
}

// NewFrameCapturer は新しいFrameCapturerを作成する
func NewFrameCapturer(device camera.Device, logger *zap.Logger) *FrameCapturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameCapturer{
		device: device,
		logger: logger,
	}
}

// CaptureFrame は現在のフレームを width×height のRasterFrameにする
//
// 比率が異なる場合は中央を切り抜いてから縮小し、引き伸ばさない。
// width か height が0なら元の解像度のまま返す。
func (c *FrameCapturer) CaptureFrame(ctx context.Context, handle *camera.StreamHandle, width, height int) (*compose.RasterFrame, error) {
	if !handle.Active() {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, camera.ErrNoActiveStream)
	}

	img, err := c.device.ReadFrame(ctx, handle.Raw())
	if err != nil {
		return nil, fmt.Errorf("%w: フレームの読み取りに失敗: %w", ErrCaptureFailed, err)
	}
	capturedAt := time.Now()

	bounds := img.Bounds()
	if width <= 0 || height <= 0 || (bounds.Dx() == width && bounds.Dy() == height) {
		return compose.NewRasterFrame(img, capturedAt), nil
	}

	filled := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	c.logger.Debug("フレームを取得しました",
		zap.String("handle", handle.ID()),
		zap.Int("source_width", bounds.Dx()),
		zap.Int("source_height", bounds.Dy()),
		zap.Int("width", width),
		zap.Int("height", height))

	return &compose.RasterFrame{Image: filled, CapturedAt: capturedAt}, nil
}
