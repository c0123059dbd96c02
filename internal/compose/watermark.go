package compose

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// watermarkMargin は画像の縁からの余白 (px)
const watermarkMargin = 10

// renderWatermark はウォーターマーク画像を生成する。描くものがなければ nil
func (c *Compositor) renderWatermark(w Watermark) image.Image {
	if strings.HasPrefix(w.Text, "data:") {
		img, err := c.decodeWatermark(w.Text)
		if err == nil {
			return imaging.Resize(img, 0, w.Size, imaging.Lanczos)
		}
		c.logger.Debug("ウォーターマーク画像のデコードに失敗、代替テキストを使用", zap.Error(err))
		if w.Alt == "" {
			return nil
		}
		return renderText(w.Alt, w.Size)
	}

	text := w.Text
	if text == "" {
		text = w.Alt
	}
	return renderText(text, w.Size)
}

// decodeWatermark はdata URIをデコードし、結果をキャッシュする
func (c *Compositor) decodeWatermark(uri string) (image.Image, error) {
	c.mu.Lock()
	cached, ok := c.watermarks[uri]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	img, err := decodeDataURI(uri)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.watermarks[uri] = img
	c.mu.Unlock()
	return img, nil
}

// decodeDataURI は base64 形式のdata URIを画像に変換する
func decodeDataURI(uri string) (image.Image, error) {
	header, payload, found := strings.Cut(uri, ",")
	if !found {
		return nil, fmt.Errorf("data URIの形式が不正です")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("base64以外のdata URIには対応していません: %s", header)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("base64のデコードに失敗: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗: %w", err)
	}
	return img, nil
}

// renderText は文字列を影付きで描き、高さ size に拡大する
func renderText(text string, size int) image.Image {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 1
	height := face.Metrics().Height.Ceil() + 1

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	ascent := face.Metrics().Ascent.Ceil()

	// 影
	shadow := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{A: 160}),
		Face: face,
		Dot:  fixed.P(1, ascent+1),
	}
	shadow.DrawString(text)

	front := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 230}),
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	front.DrawString(text)

	if size == height {
		return img
	}
	// ビットマップフォントなので最近傍で拡大する
	return imaging.Resize(img, 0, size, imaging.NearestNeighbor)
}

// watermarkOrigin は配置位置からウォーターマークの左上座標を求める
func watermarkOrigin(canvas, mark image.Rectangle, pos WatermarkPosition) image.Point {
	cw, ch := canvas.Dx(), canvas.Dy()
	mw, mh := mark.Dx(), mark.Dy()

	switch pos {
	case PositionTopLeft:
		return image.Pt(watermarkMargin, watermarkMargin)
	case PositionTopRight:
		return image.Pt(cw-mw-watermarkMargin, watermarkMargin)
	case PositionBottomLeft:
		return image.Pt(watermarkMargin, ch-mh-watermarkMargin)
	case PositionCenter:
		return image.Pt((cw-mw)/2, (ch-mh)/2)
	default:
		return image.Pt(cw-mw-watermarkMargin, ch-mh-watermarkMargin)
	}
}
