package detector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/gallery"
	"github.com/facegate/facegate/internal/models"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	ErrInferenceTimeout = errors.New("inference timed out")
	ErrAnalyzerBusy     = errors.New("analyzer is still busy with an earlier frame")
)

// Recognizer matches analyzed faces against the gallery. It never fails the
// caller: every problem comes back as an OutcomeError.
type Recognizer struct {
	analyzer Analyzer
	gallery  *gallery.Gallery
	cfg      *config.Config

	// Set while an analyze call runs, including one abandoned on timeout.
	inflight atomic.Bool
}

func NewRecognizer(a Analyzer, g *gallery.Gallery, cfg *config.Config) *Recognizer {
	return &Recognizer{analyzer: a, gallery: g, cfg: cfg}
}

type analyzeResult struct {
	faces []models.Face
	err   error
}

// Recognize analyzes a private copy of frame so that a call abandoned on
// timeout cannot touch a Mat the caller has already closed. Until such a call
// returns, later frames fail fast with ErrAnalyzerBusy.
func (r *Recognizer) Recognize(ctx context.Context, frame gocv.Mat) models.Outcome {
	start := time.Now()

	if !r.inflight.CompareAndSwap(false, true) {
		out := models.Failed(ErrAnalyzerBusy)
		out.Latency = time.Since(start)
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.InferenceTimeout)
	defer cancel()

	img := frame.Clone()
	tta := r.cfg.GetTTA()
	done := make(chan analyzeResult, 1)

	go func() {
		res := r.analyze(ctx, img, tta)
		r.inflight.Store(false)
		done <- res
	}()

	var out models.Outcome
	select {
	case res := <-done:
		out = r.match(res)
	case <-ctx.Done():
		out = models.Failed(ctx.Err())
	}

	if out.Kind == models.OutcomeError && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.Err = ErrInferenceTimeout
	}
	out.Latency = time.Since(start)
	return out
}

func (r *Recognizer) analyze(ctx context.Context, img gocv.Mat, tta bool) (res analyzeResult) {
	defer img.Close()
	defer func() {
		if p := recover(); p != nil {
			res = analyzeResult{err: errors.Errorf("analyzer panic: %v", p)}
		}
	}()

	faces, err := r.analyzer.Analyze(ctx, img, tta)
	return analyzeResult{faces: faces, err: err}
}

func (r *Recognizer) match(res analyzeResult) models.Outcome {
	if res.err != nil {
		return models.Failed(res.err)
	}

	threshold := r.cfg.GetThreshold()
	dets := make([]models.Detection, 0, len(res.faces))
	for _, f := range res.faces {
		idx, dist := r.gallery.Match(f.Embedding, threshold)
		dets = append(dets, models.Detection{
			Box:      f.Box,
			Identity: idx,
			Name:     r.gallery.Name(idx),
			Score:    dist,
		})
	}
	return models.Faces(dets)
}

func (r *Recognizer) Close() error {
	return r.analyzer.Close()
}
