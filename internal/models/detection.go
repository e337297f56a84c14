package models

import (
	"image"
	"time"
)

const Unknown = "unknown"

type FaceResult struct {
	Box       []float32 `json:"box"`
	Embedding []float32 `json:"embedding"`
}

type Face struct {
	Box       Box
	Score     float32
	Embedding []float32
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func (b Box) Grow(n int) Box {
	return Box{X1: b.X1 - n, Y1: b.Y1 - n, X2: b.X2 + n, Y2: b.Y2 + n}
}

func (b Box) Area() int {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Detection is a face box with its gallery decision. Identity is -1 when the
// face matched nothing.
type Detection struct {
	Box      Box
	Identity int
	Name     string
	Score    float32
}

func (d Detection) Known() bool {
	return d.Identity >= 0
}

type OutcomeKind int

const (
	OutcomeNoFaces OutcomeKind = iota
	OutcomeFaces
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFaces:
		return "faces"
	case OutcomeNoFaces:
		return "no-faces"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Kind       OutcomeKind
	Detections []Detection
	Err        error
	Latency    time.Duration
}

func Faces(dets []Detection) Outcome {
	if len(dets) == 0 {
		return Outcome{Kind: OutcomeNoFaces}
	}
	return Outcome{Kind: OutcomeFaces, Detections: dets}
}

func NoFaces() Outcome {
	return Outcome{Kind: OutcomeNoFaces}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}
