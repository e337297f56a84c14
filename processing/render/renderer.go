// Package render draws recognition results onto frames and fits frames to
// the video canvas.
package render

import (
	"image"
	"image/color"
	"image/draw"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	BoxColor  = color.RGBA{R: 255, A: 255}
	TextColor = color.RGBA{G: 255, A: 255}
)

const BoxWidth = 6

// Renderer draws a box outline and a label per face. Labels use an OpenType
// face so any script the font covers can be shown.
type Renderer struct {
	face   font.Face
	ascent int
}

// NewRenderer loads a TTF/OTF file or the first font of a TTC collection.
func NewRenderer(path string, size float64) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read font")
	}

	r, err := NewRendererFromBytes(data, size)
	if err != nil {
		return nil, errors.Wrapf(err, "font %s", path)
	}
	return r, nil
}

func NewRendererFromBytes(data []byte, size float64) (*Renderer, error) {
	coll, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse font")
	}
	if coll.NumFonts() == 0 {
		return nil, errors.New("font collection is empty")
	}

	f, err := coll.Font(0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load font")
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create font face")
	}

	return &Renderer{
		face:   face,
		ascent: face.Metrics().Ascent.Ceil(),
	}, nil
}

// Draw outlines box and writes label with its top-left corner at the box's
// top-left corner. Everything outside img is clipped.
func (r *Renderer) Draw(img *image.RGBA, box image.Rectangle, label string) {
	drawRect(img, box, BoxWidth, BoxColor)

	if label == "" {
		return
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(TextColor),
		Face: r.face,
		Dot:  fixed.P(box.Min.X, box.Min.Y+r.ascent),
	}
	d.DrawString(label)
}

func (r *Renderer) TextWidth(label string) int {
	return font.MeasureString(r.face, label).Ceil()
}

func (r *Renderer) Close() error {
	return r.face.Close()
}

// drawRect strokes the rectangle edges with a line of the given width
// centered on each edge.
func drawRect(img *image.RGBA, box image.Rectangle, width int, col color.RGBA) {
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.SetRGBA(x, y, col)
		}
	}

	x1, y1, x2, y2 := box.Min.X, box.Min.Y, box.Max.X, box.Max.Y
	half := width / 2

	for t := -half; t < width-half; t++ {
		for x := x1 - half; x <= x2+half; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2+t)
		}
		for y := y1 - half; y <= y2+half; y++ {
			setPixel(x1+t, y)
			setPixel(x2+t, y)
		}
	}
}

func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
