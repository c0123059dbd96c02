package compose

import (
	"image"
	"image/color"
	"image/draw"
)

// gridColor は半透明の白
var gridColor = color.NRGBA{R: 255, G: 255, B: 255, A: 160}

// drawGrid は画像にグリッド線を直接描く
func drawGrid(img *image.NRGBA, grid GridType) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	thickness := max(1, min(w, h)/300)

	switch grid {
	case GridRuleOfThirds:
		for _, r := range []float64{1.0 / 3, 2.0 / 3} {
			drawVertical(img, b.Min.X+int(float64(w)*r), thickness)
			drawHorizontal(img, b.Min.Y+int(float64(h)*r), thickness)
		}
	case GridGoldenRatio:
		for _, r := range []float64{0.382, 0.618} {
			drawVertical(img, b.Min.X+int(float64(w)*r), thickness)
			drawHorizontal(img, b.Min.Y+int(float64(h)*r), thickness)
		}
	case GridCenter:
		cx := b.Min.X + w/2
		cy := b.Min.Y + h/2
		arm := max(min(w, h)/8, 1)
		fillRect(img, image.Rect(cx-arm, cy-thickness/2, cx+arm, cy-thickness/2+thickness))
		fillRect(img, image.Rect(cx-thickness/2, cy-arm, cx-thickness/2+thickness, cy+arm))
	}
}

// drawVertical は x を中心に縦線を引く
func drawVertical(img *image.NRGBA, x, thickness int) {
	b := img.Bounds()
	fillRect(img, image.Rect(x-thickness/2, b.Min.Y, x-thickness/2+thickness, b.Max.Y))
}

// drawHorizontal は y を中心に横線を引く
func drawHorizontal(img *image.NRGBA, y, thickness int) {
	b := img.Bounds()
	fillRect(img, image.Rect(b.Min.X, y-thickness/2, b.Max.X, y-thickness/2+thickness))
}

// fillRect は矩形をグリッド色で重ね塗りする
func fillRect(img *image.NRGBA, r image.Rectangle) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(gridColor), image.Point{}, draw.Over)
}
