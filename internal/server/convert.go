package server

import (
	"fmt"
	"maps"

	"shashin/internal/camera"
	"shashin/internal/compose"
	"shashin/internal/generated"
	"shashin/internal/session"
)

// applyConfig は base にリクエストで指定された項目だけを重ねる
//
// videoConstraints は指定されると丸ごと置き換わるので、{} で空にできる。
func applyConfig(base session.CaptureConfig, req generated.CaptureConfig) session.CaptureConfig {
	cfg := base.Clone()

	if req.Width != nil {
		cfg.Width = *req.Width
	}
	if req.Height != nil {
		cfg.Height = *req.Height
	}
	if req.FacingMode != nil {
		cfg.FacingMode = camera.FacingMode(*req.FacingMode)
	}
	if req.PhotoQuality != nil {
		cfg.PhotoQuality = *req.PhotoQuality
	}
	if req.VideoConstraints != nil {
		cfg.VideoConstraints = maps.Clone(*req.VideoConstraints)
		if cfg.VideoConstraints == nil {
			cfg.VideoConstraints = map[string]string{}
		}
	}
	if req.ShowPreviewByDefault != nil {
		cfg.ShowPreviewByDefault = *req.ShowPreviewByDefault
	}
	if req.ShowGrid != nil {
		cfg.ShowGrid = *req.ShowGrid
	}
	if req.GridType != nil {
		cfg.GridType = compose.GridType(*req.GridType)
	}
	if req.GridInCapture != nil {
		cfg.GridInCapture = *req.GridInCapture
	}
	if req.AspectRatio != nil {
		cfg.AspectRatio = compose.AspectRatio(*req.AspectRatio)
	}
	if req.Watermark != nil {
		cfg.Watermark = *req.Watermark
	}
	if req.WatermarkAlt != nil {
		cfg.WatermarkAlt = *req.WatermarkAlt
	}
	if req.WatermarkPosition != nil {
		cfg.WatermarkPosition = compose.WatermarkPosition(*req.WatermarkPosition)
	}
	if req.WatermarkSize != nil {
		cfg.WatermarkSize = *req.WatermarkSize
	}
	if req.Filters != nil {
		cfg.Filters = applyFilters(cfg.Filters, *req.Filters)
	}
	if req.TeardownPolicy != nil {
		cfg.TeardownPolicy = session.TeardownPolicy(*req.TeardownPolicy)
	}
	return cfg
}

// applyFilters は base にリクエストで指定されたフィルタ値だけを重ねる
func applyFilters(base compose.FilterOptions, req generated.FilterOptions) compose.FilterOptions {
	if base == (compose.FilterOptions{}) {
		base = compose.DefaultFilterOptions()
	}
	if req.Brightness != nil {
		base.Brightness = *req.Brightness
	}
	if req.Contrast != nil {
		base.Contrast = *req.Contrast
	}
	if req.Saturate != nil {
		base.Saturate = *req.Saturate
	}
	if req.Grayscale != nil {
		base.Grayscale = *req.Grayscale
	}
	if req.Sepia != nil {
		base.Sepia = *req.Sepia
	}
	if req.Blur != nil {
		base.Blur = *req.Blur
	}
	return base
}

// convertCaptureConfig は設定を応答の形式に変換する
func convertCaptureConfig(cfg session.CaptureConfig) generated.CaptureConfig {
	out := generated.CaptureConfig{
		Width:                &cfg.Width,
		Height:               &cfg.Height,
		FacingMode:           ptr(generated.CaptureConfigFacingMode(cfg.FacingMode)),
		PhotoQuality:         &cfg.PhotoQuality,
		ShowPreviewByDefault: &cfg.ShowPreviewByDefault,
		ShowGrid:             &cfg.ShowGrid,
		GridType:             ptr(generated.CaptureConfigGridType(cfg.GridType)),
		GridInCapture:        &cfg.GridInCapture,
		AspectRatio:          ptr(generated.CaptureConfigAspectRatio(cfg.AspectRatio)),
		WatermarkPosition:    ptr(generated.CaptureConfigWatermarkPosition(cfg.WatermarkPosition)),
		WatermarkSize:        &cfg.WatermarkSize,
		Filters: &generated.FilterOptions{
			Brightness: &cfg.Filters.Brightness,
			Contrast:   &cfg.Filters.Contrast,
			Saturate:   &cfg.Filters.Saturate,
			Grayscale:  &cfg.Filters.Grayscale,
			Sepia:      &cfg.Filters.Sepia,
			Blur:       &cfg.Filters.Blur,
		},
		TeardownPolicy: ptr(generated.CaptureConfigTeardownPolicy(cfg.TeardownPolicy)),
	}
	if len(cfg.VideoConstraints) > 0 {
		out.VideoConstraints = ptr(maps.Clone(cfg.VideoConstraints))
	}
	if cfg.Watermark != "" {
		out.Watermark = &cfg.Watermark
	}
	if cfg.WatermarkAlt != "" {
		out.WatermarkAlt = &cfg.WatermarkAlt
	}
	return out
}

// convertStatus はセッション状態を応答の形式に変換する
func convertStatus(status session.Status) generated.SessionStatus {
	out := generated.SessionStatus{
		State:          generated.SessionState(status.State),
		PreviewReady:   status.PreviewReady,
		PreviewVisible: status.PreviewVisible,
		Recording:      status.Recording,
		RecordedBytes:  status.RecordedBytes,
		OpenHandles:    status.OpenHandles,
		Config:         convertCaptureConfig(status.Config),
	}
	if status.InFlight != "" {
		out.InFlight = &status.InFlight
	}
	if status.HandleID != "" {
		out.HandleId = &status.HandleID
	}
	return out
}

// convertVideo は録画結果を応答の形式に変換する
func convertVideo(v *session.VideoArtifact) *generated.VideoInfo {
	if v == nil {
		return nil
	}
	return &generated.VideoInfo{
		Id:         v.ID,
		MimeType:   v.MIMEType,
		Size:       len(v.EncodedVideo),
		ChunkCount: v.ChunkCount,
		DurationMs: v.Duration().Milliseconds(),
		Data:       v.CaptureData().Blob,
	}
}

// convertDevice はデバイス情報を応答の形式に変換する
func convertDevice(info *camera.DeviceInfo) generated.DeviceInfo {
	out := generated.DeviceInfo{
		Device: info.Device,
		Name:   info.Name,
	}
	if info.Driver != "" {
		out.Driver = &info.Driver
	}
	if len(info.Resolutions) > 0 {
		resolutions := make([]string, 0, len(info.Resolutions))
		for _, r := range info.Resolutions {
			resolutions = append(resolutions, fmt.Sprintf("%dx%d", r.Width, r.Height))
		}
		out.Resolutions = &resolutions
	}
	if len(info.Formats) > 0 {
		out.Formats = ptr(info.Formats)
	}
	return out
}

// ptr は値のポインタを返すヘルパー関数
func ptr[T any](v T) *T {
	return &v
}
