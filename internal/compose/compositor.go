package compose

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Compositor はフレームに切り抜き・フィルタ・グリッド・ウォーターマークを適用する
type Compositor struct {
	logger *zap.Logger

	mu         sync.Mutex
	watermarks map[string]image.Image // data URI ごとのデコード結果
}

// NewCompositor は新しいCompositorを作成する
func NewCompositor(logger *zap.Logger) *Compositor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compositor{
		logger:     logger,
		watermarks: make(map[string]image.Image),
	}
}

// Compose は固定順のパイプラインを適用した新しいフレームを返す
//
// 入力フレームは変更しない。同じ入力からは同じ出力が得られる。
// Filters がゼロ値の場合は DefaultFilterOptions として扱う。
func (c *Compositor) Compose(frame *RasterFrame, opts Options) (*RasterFrame, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("合成するフレームがありません")
	}
	if opts.Filters == (FilterOptions{}) {
		opts.Filters = DefaultFilterOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("合成設定が不正です: %w", err)
	}

	// 1. 切り抜き
	img := cropToAspect(frame.Image, opts.AspectRatio)

	// 2. フィルタ
	img = applyFilters(img, opts.Filters)

	// 3. グリッド
	if opts.Grid != GridNone {
		drawGrid(img, opts.Grid)
	}

	// 4. ウォーターマーク
	if opts.Watermark.Enabled() {
		mark := c.renderWatermark(opts.Watermark)
		if mark != nil {
			img = imaging.Overlay(img, mark, watermarkOrigin(img.Bounds(), mark.Bounds(), opts.Watermark.Position), 1.0)
		}
	}

	return &RasterFrame{
		Image:      img,
		CapturedAt: frame.CapturedAt,
	}, nil
}

// cropToAspect は中央を基準に指定比率へ切り抜く。常に新しい画像を返す
func cropToAspect(src *image.NRGBA, aspect AspectRatio) *image.NRGBA {
	rw, rh, ok := aspect.Ratio()
	if !ok {
		return imaging.Clone(src)
	}

	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	newW, newH := w, h
	if w*rh > h*rw {
		// 横長すぎるので左右を削る
		newW = h * rw / rh
	} else {
		newH = w * rh / rw
	}
	if newW == w && newH == h {
		return imaging.Clone(src)
	}
	return imaging.CropCenter(src, max(newW, 1), max(newH, 1))
}
