package session

import (
	"fmt"
	"maps"
	"strconv"

	"shashin/internal/camera"
	"shashin/internal/compose"
)

// TeardownPolicy は録画中に Stop したときの扱い
type TeardownPolicy string

const (
	TeardownFinalize TeardownPolicy = "finalize"
	TeardownDiscard  TeardownPolicy = "discard"
)

// VideoConstraints のうち特別に解釈するキー
const (
	ConstraintDeviceID  = "deviceId"
	ConstraintFrameRate = "frameRate"
)

// CaptureConfig はセッションの設定
//
// 値として扱い、変更は With* で新しい設定を作る。
type CaptureConfig struct {
	Width                int                       `yaml:"width"                   json:"width"`
	Height               int                       `yaml:"height"                  json:"height"`
	FacingMode           camera.FacingMode         `yaml:"facing_mode"             json:"facingMode"`
	PhotoQuality         float64                   `yaml:"photo_quality"           json:"photoQuality"`
	VideoConstraints     map[string]string         `yaml:"video_constraints"       json:"videoConstraints,omitempty"`
	ShowPreviewByDefault bool                      `yaml:"show_preview_by_default" json:"showPreviewByDefault"`
	ShowGrid             bool                      `yaml:"show_grid"               json:"showGrid"`
	GridType             compose.GridType          `yaml:"grid_type"               json:"gridType"`
	GridInCapture        bool                      `yaml:"grid_in_capture"         json:"gridInCapture"`
	AspectRatio          compose.AspectRatio       `yaml:"aspect_ratio"            json:"aspectRatio"`
	Watermark            string                    `yaml:"watermark"               json:"watermark,omitempty"`
	WatermarkAlt         string                    `yaml:"watermark_alt"           json:"watermarkAlt,omitempty"`
	WatermarkPosition    compose.WatermarkPosition `yaml:"watermark_position"      json:"watermarkPosition"`
	WatermarkSize        int                       `yaml:"watermark_size"          json:"watermarkSize"`
	Filters              compose.FilterOptions     `yaml:"filters"                 json:"filters"`
	TeardownPolicy       TeardownPolicy            `yaml:"teardown_policy"         json:"teardownPolicy"`
}

// DefaultCaptureConfig はデフォルト設定を返す
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Width:                1280,
		Height:               720,
		FacingMode:           camera.FacingUser,
		PhotoQuality:         0.92,
		ShowPreviewByDefault: true,
		GridType:             compose.GridRuleOfThirds,
		AspectRatio:          compose.AspectOriginal,
		WatermarkPosition:    compose.PositionBottomRight,
		WatermarkSize:        24,
		Filters:              compose.DefaultFilterOptions(),
		TeardownPolicy:       TeardownFinalize,
	}
}

// Normalize は未指定の列挙値をデフォルトで埋めた設定を返す
func (c CaptureConfig) Normalize() CaptureConfig {
	d := DefaultCaptureConfig()
	n := c.Clone()
	if n.FacingMode == "" {
		n.FacingMode = d.FacingMode
	}
	if n.GridType == compose.GridNone {
		n.GridType = d.GridType
	}
	if n.AspectRatio == "" {
		n.AspectRatio = d.AspectRatio
	}
	if n.WatermarkPosition == "" {
		n.WatermarkPosition = d.WatermarkPosition
	}
	if n.WatermarkSize == 0 {
		n.WatermarkSize = d.WatermarkSize
	}
	if n.Filters == (compose.FilterOptions{}) {
		n.Filters = d.Filters
	}
	if n.TeardownPolicy == "" {
		n.TeardownPolicy = d.TeardownPolicy
	}
	return n
}

// Validate は設定値を検証する
func (c CaptureConfig) Validate() error {
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("解像度は0以上で指定してください: %dx%d", c.Width, c.Height)
	}
	if c.FacingMode != "" && !c.FacingMode.Valid() {
		return fmt.Errorf("無効なfacingMode: %s", c.FacingMode)
	}
	if c.PhotoQuality < 0 || c.PhotoQuality > 1 {
		return fmt.Errorf("photoQualityは0〜1の範囲で指定してください: %v", c.PhotoQuality)
	}
	if v, ok := c.VideoConstraints[ConstraintFrameRate]; ok {
		if n, err := strconv.Atoi(v); err != nil || n <= 0 {
			return fmt.Errorf("無効なframeRate: %s", v)
		}
	}
	if !c.GridType.Valid() {
		return fmt.Errorf("無効なグリッド種類: %s", c.GridType)
	}
	if c.AspectRatio != "" && !c.AspectRatio.Valid() {
		return fmt.Errorf("無効なアスペクト比: %s", c.AspectRatio)
	}
	if c.WatermarkPosition != "" && !c.WatermarkPosition.Valid() {
		return fmt.Errorf("無効なウォーターマーク位置: %s", c.WatermarkPosition)
	}
	if c.WatermarkSize < 0 {
		return fmt.Errorf("ウォーターマークのサイズは0以上で指定してください: %d", c.WatermarkSize)
	}
	if c.Filters != (compose.FilterOptions{}) {
		if err := c.Filters.Validate(); err != nil {
			return err
		}
	}
	switch c.TeardownPolicy {
	case "", TeardownFinalize, TeardownDiscard:
	default:
		return fmt.Errorf("無効なteardownPolicy: %s", c.TeardownPolicy)
	}
	return nil
}

// Clone は設定の複製を返す
func (c CaptureConfig) Clone() CaptureConfig {
	out := c
	out.VideoConstraints = maps.Clone(c.VideoConstraints)
	return out
}

// Constraints はデバイスに渡す取得条件を作る
func (c CaptureConfig) Constraints() camera.Constraints {
	constraints := camera.Constraints{
		FacingMode: c.FacingMode,
		Extra:      make(map[string]string),
	}
	for k, v := range c.VideoConstraints {
		switch k {
		case ConstraintDeviceID:
			constraints.Device = v
		case ConstraintFrameRate:
			if n, err := strconv.Atoi(v); err == nil {
				constraints.FrameRate = n
			}
		default:
			constraints.Extra[k] = v
		}
	}
	return constraints
}

// ComposeOptions は写真用の合成設定を作る。グリッドは GridInCapture のときだけ含める
func (c CaptureConfig) ComposeOptions() compose.Options {
	opts := c.baseOptions()
	if c.GridInCapture {
		opts.Grid = c.gridType()
	}
	opts.Watermark = compose.Watermark{
		Text:     c.Watermark,
		Alt:      c.WatermarkAlt,
		Position: c.WatermarkPosition,
		Size:     c.WatermarkSize,
	}
	if opts.Watermark.Position == "" {
		opts.Watermark.Position = compose.PositionBottomRight
	}
	if opts.Watermark.Size == 0 {
		opts.Watermark.Size = DefaultCaptureConfig().WatermarkSize
	}
	return opts
}

// PreviewOptions はライブプレビュー用の合成設定を作る。ShowGrid ならグリッドを描く
func (c CaptureConfig) PreviewOptions() compose.Options {
	opts := c.baseOptions()
	if c.ShowGrid {
		opts.Grid = c.gridType()
	}
	return opts
}

func (c CaptureConfig) baseOptions() compose.Options {
	return compose.Options{
		AspectRatio: c.AspectRatio,
		Filters:     c.Filters,
	}
}

func (c CaptureConfig) gridType() compose.GridType {
	if c.GridType == compose.GridNone {
		return compose.GridRuleOfThirds
	}
	return c.GridType
}

// WithSize は解像度を変えた設定を返す
func (c CaptureConfig) WithSize(width, height int) CaptureConfig {
	out := c.Clone()
	out.Width = width
	out.Height = height
	return out
}

// WithFacingMode はカメラの向きを変えた設定を返す
func (c CaptureConfig) WithFacingMode(mode camera.FacingMode) CaptureConfig {
	out := c.Clone()
	out.FacingMode = mode
	return out
}

// WithPhotoQuality は写真の画質を変えた設定を返す
func (c CaptureConfig) WithPhotoQuality(quality float64) CaptureConfig {
	out := c.Clone()
	out.PhotoQuality = quality
	return out
}

// WithVideoConstraint はデバイス条件を1つ追加した設定を返す
func (c CaptureConfig) WithVideoConstraint(key, value string) CaptureConfig {
	out := c.Clone()
	if out.VideoConstraints == nil {
		out.VideoConstraints = make(map[string]string)
	}
	out.VideoConstraints[key] = value
	return out
}

// WithAspectRatio はアスペクト比を変えた設定を返す
func (c CaptureConfig) WithAspectRatio(aspect compose.AspectRatio) CaptureConfig {
	out := c.Clone()
	out.AspectRatio = aspect
	return out
}

// WithGrid はグリッドの表示を変えた設定を返す
func (c CaptureConfig) WithGrid(show bool, grid compose.GridType) CaptureConfig {
	out := c.Clone()
	out.ShowGrid = show
	out.GridType = grid
	return out
}

// WithWatermark はウォーターマークを変えた設定を返す
func (c CaptureConfig) WithWatermark(text string, position compose.WatermarkPosition, size int) CaptureConfig {
	out := c.Clone()
	out.Watermark = text
	out.WatermarkPosition = position
	out.WatermarkSize = size
	return out
}

// WithFilters はフィルタを変えた設定を返す
func (c CaptureConfig) WithFilters(filters compose.FilterOptions) CaptureConfig {
	out := c.Clone()
	out.Filters = filters
	return out
}

// WithTeardownPolicy は停止時の録画の扱いを変えた設定を返す
func (c CaptureConfig) WithTeardownPolicy(policy TeardownPolicy) CaptureConfig {
	out := c.Clone()
	out.TeardownPolicy = policy
	return out
}
