package compose

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// applyFilters はフィルタを brightness, contrast, saturate, grayscale, sepia, blur の順に適用する
func applyFilters(img *image.NRGBA, f FilterOptions) *image.NRGBA {
	if f.IsIdentity() {
		return img
	}

	if f.Brightness != 100 {
		factor := f.Brightness / 100
		img = imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
			return color.NRGBA{
				R: clampChannel(float64(c.R) * factor),
				G: clampChannel(float64(c.G) * factor),
				B: clampChannel(float64(c.B) * factor),
				A: c.A,
			}
		})
	}
	if f.Contrast != 100 {
		img = imaging.AdjustContrast(img, f.Contrast-100)
	}
	if f.Saturate != 100 {
		img = imaging.AdjustSaturation(img, f.Saturate-100)
	}
	if f.Grayscale > 0 {
		gray := imaging.Grayscale(img)
		img = imaging.Overlay(img, gray, image.Pt(0, 0), f.Grayscale/100)
	}
	if f.Sepia > 0 {
		img = sepia(img, f.Sepia/100)
	}
	if f.Blur > 0 {
		img = imaging.Blur(img, f.Blur)
	}
	return img
}

// sepia はセピア変換を amount (0〜1) の割合で混ぜる
func sepia(img *image.NRGBA, amount float64) *image.NRGBA {
	a := 1 - amount
	// 係数は amount=1 で標準的なセピア行列、amount=0 で単位行列になる
	m := [3][3]float64{
		{0.393 + 0.607*a, 0.769 - 0.769*a, 0.189 - 0.189*a},
		{0.349 - 0.349*a, 0.686 + 0.314*a, 0.168 - 0.168*a},
		{0.272 - 0.272*a, 0.534 - 0.534*a, 0.131 + 0.869*a},
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clampChannel(m[0][0]*r + m[0][1]*g + m[0][2]*b),
			G: clampChannel(m[1][0]*r + m[1][1]*g + m[1][2]*b),
			B: clampChannel(m[2][0]*r + m[2][1]*g + m[2][2]*b),
			A: c.A,
		}
	})
}

// clampChannel は値を0〜255に丸める
func clampChannel(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 255)))
}
