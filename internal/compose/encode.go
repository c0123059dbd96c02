package compose

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"math"
)

// JPEGMIMEType は写真のMIMEタイプ
const JPEGMIMEType = "image/jpeg"

// JPEGQuality は 0〜1 の画質を image/jpeg の 1〜100 に変換する
func JPEGQuality(q float64) int {
	quality := int(math.Round(q * 100))
	return min(max(quality, 1), 100)
}

// EncodeJPEG はフレームをJPEGにエンコードする
func EncodeJPEG(frame *RasterFrame, quality float64) ([]byte, error) {
	if frame == nil || frame.Image == nil {
		return nil, fmt.Errorf("エンコードするフレームがありません")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image, &jpeg.Options{Quality: JPEGQuality(quality)}); err != nil {
		return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI はバイト列をbase64形式のdata URIにする
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
