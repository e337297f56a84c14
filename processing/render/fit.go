package render

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Margin is kept free on the constraining side of the canvas.
const Margin = 10

var Background = color.RGBA{A: 255}

// FitSize sizes a srcW×srcH frame for a canvasW×canvasH canvas. A landscape
// or square canvas constrains the height, a portrait canvas the width; the
// other side follows the frame's aspect ratio and is not checked against the
// canvas.
func FitSize(canvasW, canvasH, srcW, srcH int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return 1, 1
	}
	ratio := float64(srcW) / float64(srcH)

	var w, h int
	if canvasW >= canvasH {
		h = canvasH - Margin
		w = int(math.Round(float64(h) * ratio))
	} else {
		w = canvasW - Margin
		h = int(math.Round(float64(w) / ratio))
	}

	return max(w, 1), max(h, 1)
}

// Scale resizes src to w×h with a Catmull-Rom filter.
func Scale(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

// Fit scales src for the canvas using FitSize.
func Fit(src image.Image, canvasW, canvasH int) *image.RGBA {
	b := src.Bounds()
	w, h := FitSize(canvasW, canvasH, b.Dx(), b.Dy())
	return Scale(src, w, h)
}

// Compose fits src and centres it on a canvasW×canvasH image, so the margin
// survives display and an overflowing side is cropped.
func Compose(src image.Image, canvasW, canvasH int) *image.RGBA {
	canvasW, canvasH = max(canvasW, 1), max(canvasH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(Background), image.Point{}, xdraw.Src)

	fitted := Fit(src, canvasW, canvasH)
	fb := fitted.Bounds()
	off := image.Pt((canvasW-fb.Dx())/2, (canvasH-fb.Dy())/2)
	xdraw.Draw(dst, fb.Add(off), fitted, image.Point{}, xdraw.Src)

	return dst
}
