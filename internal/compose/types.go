package compose

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"gopkg.in/yaml.v3"
)

// RasterFrame はある時点のピクセルバッファ
type RasterFrame struct {
	Image      *image.NRGBA
	CapturedAt time.Time
}

// NewRasterFrame は画像をコピーしてRasterFrameを作成する
func NewRasterFrame(img image.Image, capturedAt time.Time) *RasterFrame {
	return &RasterFrame{
		Image:      imaging.Clone(img),
		CapturedAt: capturedAt,
	}
}

// Width はフレームの幅を返す
func (f *RasterFrame) Width() int {
	return f.Image.Bounds().Dx()
}

// Height はフレームの高さを返す
func (f *RasterFrame) Height() int {
	return f.Image.Bounds().Dy()
}

// Clone はフレームの複製を返す
func (f *RasterFrame) Clone() *RasterFrame {
	return &RasterFrame{
		Image:      imaging.Clone(f.Image),
		CapturedAt: f.CapturedAt,
	}
}

// AspectRatio は切り抜き後のアスペクト比
type AspectRatio string

const (
	AspectOriginal AspectRatio = "original"
	Aspect1x1      AspectRatio = "1:1"
	Aspect16x9     AspectRatio = "16:9"
	Aspect4x3      AspectRatio = "4:3"
	Aspect3x2      AspectRatio = "3:2"
)

// legacyAspectRatios は旧表記からの対応表
var legacyAspectRatios = map[string]AspectRatio{
	"aspect-1-1":  Aspect1x1,
	"aspect-16-9": Aspect16x9,
	"aspect-4-3":  Aspect4x3,
	"aspect-3-2":  Aspect3x2,
}

// ParseAspectRatio は文字列をAspectRatioに変換する。旧表記(aspect-16-9など)も受け付ける
func ParseAspectRatio(s string) (AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AspectOriginal, nil
	}
	if legacy, ok := legacyAspectRatios[s]; ok {
		return legacy, nil
	}
	ar := AspectRatio(s)
	if !ar.Valid() {
		return "", fmt.Errorf("無効なアスペクト比: %s", s)
	}
	return ar, nil
}

// Valid は既知のアスペクト比かを返す
func (a AspectRatio) Valid() bool {
	switch a {
	case AspectOriginal, Aspect1x1, Aspect16x9, Aspect4x3, Aspect3x2:
		return true
	}
	return false
}

// Ratio は幅と高さの比を返す。original の場合は ok=false
func (a AspectRatio) Ratio() (w, h int, ok bool) {
	switch a {
	case Aspect1x1:
		return 1, 1, true
	case Aspect16x9:
		return 16, 9, true
	case Aspect4x3:
		return 4, 3, true
	case Aspect3x2:
		return 3, 2, true
	}
	return 0, 0, false
}

// UnmarshalText はJSON/YAMLから旧表記を含めて読み込む
func (a *AspectRatio) UnmarshalText(text []byte) error {
	parsed, err := ParseAspectRatio(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// GridType はグリッド線の種類
type GridType string

const (
	GridNone         GridType = ""
	GridRuleOfThirds GridType = "rule-of-thirds"
	GridGoldenRatio  GridType = "golden-ratio"
	GridCenter       GridType = "center"
)

// Valid は既知のグリッド種類かを返す
func (g GridType) Valid() bool {
	switch g {
	case GridNone, GridRuleOfThirds, GridGoldenRatio, GridCenter:
		return true
	}
	return false
}

// WatermarkPosition はウォーターマークの配置位置
type WatermarkPosition string

const (
	PositionTopLeft     WatermarkPosition = "top-left"
	PositionTopRight    WatermarkPosition = "top-right"
	PositionBottomLeft  WatermarkPosition = "bottom-left"
	PositionBottomRight WatermarkPosition = "bottom-right"
	PositionCenter      WatermarkPosition = "center"
)

// Valid は既知の配置位置かを返す
func (p WatermarkPosition) Valid() bool {
	switch p {
	case PositionTopLeft, PositionTopRight, PositionBottomLeft, PositionBottomRight, PositionCenter:
		return true
	}
	return false
}

// FilterOptions は色フィルタの値
//
// Brightness, Contrast, Saturate はパーセント (100 で変化なし)、
// Grayscale, Sepia は 0〜100 の混合率、Blur はピクセル半径。
//
// 全項目が0のゼロ値は「未設定」を表し、DefaultFilterOptions として扱う。
// 画像を黒くしたい場合は Brightness だけを0にする。
// JSON/YAML から読み込むときは、省略した項目が変化なしの値で埋まる。
type FilterOptions struct {
	Brightness float64 `yaml:"brightness" json:"brightness"`
	Contrast   float64 `yaml:"contrast"   json:"contrast"`
	Saturate   float64 `yaml:"saturate"   json:"saturate"`
	Grayscale  float64 `yaml:"grayscale"  json:"grayscale"`
	Sepia      float64 `yaml:"sepia"      json:"sepia"`
	Blur       float64 `yaml:"blur"       json:"blur"`
}

// DefaultFilterOptions は何も変化させないフィルタ値を返す
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		Brightness: 100,
		Contrast:   100,
		Saturate:   100,
	}
}

// UnmarshalJSON は省略された項目を変化なしの値で埋めて読み込む
func (f *FilterOptions) UnmarshalJSON(data []byte) error {
	type plain FilterOptions
	v := plain(DefaultFilterOptions())
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FilterOptions(v)
	return nil
}

// UnmarshalYAML は省略された項目を変化なしの値で埋めて読み込む
func (f *FilterOptions) UnmarshalYAML(node *yaml.Node) error {
	type plain FilterOptions
	v := plain(DefaultFilterOptions())
	if err := node.Decode(&v); err != nil {
		return err
	}
	*f = FilterOptions(v)
	return nil
}

// IsIdentity はフィルタが画像を変化させないかを返す
func (f FilterOptions) IsIdentity() bool {
	return f == DefaultFilterOptions()
}

// Validate はフィルタ値の範囲を検証する
func (f FilterOptions) Validate() error {
	if f.Brightness < 0 || f.Brightness > 300 {
		return fmt.Errorf("brightnessは0〜300の範囲で指定してください: %v", f.Brightness)
	}
	if f.Contrast < 0 || f.Contrast > 200 {
		return fmt.Errorf("contrastは0〜200の範囲で指定してください: %v", f.Contrast)
	}
	if f.Saturate < 0 || f.Saturate > 200 {
		return fmt.Errorf("saturateは0〜200の範囲で指定してください: %v", f.Saturate)
	}
	if f.Grayscale < 0 || f.Grayscale > 100 {
		return fmt.Errorf("grayscaleは0〜100の範囲で指定してください: %v", f.Grayscale)
	}
	if f.Sepia < 0 || f.Sepia > 100 {
		return fmt.Errorf("sepiaは0〜100の範囲で指定してください: %v", f.Sepia)
	}
	if f.Blur < 0 || f.Blur > 50 {
		return fmt.Errorf("blurは0〜50の範囲で指定してください: %v", f.Blur)
	}
	return nil
}

// Watermark はウォーターマークの指定
//
// Text が "data:" で始まる場合は画像として扱い、デコードできなければ Alt を文字として描く。
type Watermark struct {
	Text     string
	Alt      string
	Position WatermarkPosition
	Size     int // 描画後の高さ (px)
}

// Enabled は描画対象があるかを返す
func (w Watermark) Enabled() bool {
	return w.Text != "" || w.Alt != ""
}

// Options は1回の合成に使う設定
type Options struct {
	AspectRatio AspectRatio
	Filters     FilterOptions
	Grid        GridType // GridNone なら描画しない
	Watermark   Watermark
}

// Validate は合成設定を検証する
func (o Options) Validate() error {
	if o.AspectRatio != "" && !o.AspectRatio.Valid() {
		return fmt.Errorf("無効なアスペクト比: %s", o.AspectRatio)
	}
	if !o.Grid.Valid() {
		return fmt.Errorf("無効なグリッド種類: %s", o.Grid)
	}
	if o.Watermark.Enabled() {
		if !o.Watermark.Position.Valid() {
			return fmt.Errorf("無効なウォーターマーク位置: %s", o.Watermark.Position)
		}
		if o.Watermark.Size <= 0 {
			return fmt.Errorf("ウォーターマークのサイズは正の値で指定してください: %d", o.Watermark.Size)
		}
	}
	return o.Filters.Validate()
}
