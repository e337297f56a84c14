package detector

import (
	"context"
	"image"
	"os"
	"sort"
	"sync"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/gallery"
	"github.com/facegate/facegate/internal/models"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const (
	detectorInput = 300
	embedderInput = 112

	// SSD output rows are [image_id, label, confidence, x1, y1, x2, y2].
	ssdRowLen = 7
)

// DNNAnalyzer runs an SSD face detector and an embedding network with the
// OpenCV dnn module. gocv.Net is not safe for concurrent use, so calls are
// serialized.
type DNNAnalyzer struct {
	mu sync.Mutex

	detector gocv.Net
	embedder gocv.Net

	faceLimit   int
	minFaceSize int
	confidence  float32
}

func NewDNNAnalyzer(cfg config.ModelConfig) (*DNNAnalyzer, error) {
	for _, p := range []string{cfg.DetectorModel, cfg.DetectorConfig, cfg.EmbedderModel} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return nil, errors.Wrap(err, "model file missing")
		}
	}

	det := gocv.ReadNet(cfg.DetectorModel, cfg.DetectorConfig)
	if det.Empty() {
		det.Close()
		return nil, errors.Errorf("failed to load detector model %s", cfg.DetectorModel)
	}

	emb := gocv.ReadNet(cfg.EmbedderModel, "")
	if emb.Empty() {
		det.Close()
		emb.Close()
		return nil, errors.Errorf("failed to load embedder model %s", cfg.EmbedderModel)
	}

	return &DNNAnalyzer{
		detector:    det,
		embedder:    emb,
		faceLimit:   cfg.FaceLimit,
		minFaceSize: cfg.MinFaceSize,
		confidence:  float32(cfg.DetectConfidence),
	}, nil
}

func (a *DNNAnalyzer) Analyze(ctx context.Context, img gocv.Mat, tta bool) ([]models.Face, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// A call that waited out its deadline on the lock is not worth a pass.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found, err := a.detect(ctx, img)
	if err != nil {
		return nil, err
	}

	faces := make([]models.Face, 0, len(found))
	for _, f := range found {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chip := img.Region(f.Box.Rect())
		emb, err := a.embed(ctx, chip, tta)
		chip.Close()
		if err != nil {
			return nil, err
		}

		f.Embedding = emb
		faces = append(faces, f)
	}
	return faces, nil
}

func (a *DNNAnalyzer) detect(ctx context.Context, img gocv.Mat) ([]models.Face, error) {
	blob := gocv.BlobFromImage(img, 1.0, image.Pt(detectorInput, detectorInput),
		gocv.NewScalar(104, 177, 123, 0), false, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.detector.SetInput(blob, "")
	out := a.detector.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read detector output")
	}

	return parseDetections(data, img.Cols(), img.Rows(), a.confidence, a.minFaceSize, a.faceLimit), nil
}

func parseDetections(data []float32, width, height int, minConf float32, minSize, limit int) []models.Face {
	bounds := image.Rect(0, 0, width, height)

	var faces []models.Face
	for i := 0; i+ssdRowLen <= len(data); i += ssdRowLen {
		conf := data[i+2]
		if conf < minConf {
			continue
		}

		r := image.Rect(
			int(data[i+3]*float32(width)),
			int(data[i+4]*float32(height)),
			int(data[i+5]*float32(width)),
			int(data[i+6]*float32(height)),
		).Intersect(bounds)

		if r.Dx() < minSize || r.Dy() < minSize || r.Empty() {
			continue
		}
		faces = append(faces, models.Face{Box: models.BoxFromRect(r), Score: conf})
	}

	sort.SliceStable(faces, func(i, j int) bool { return faces[i].Score > faces[j].Score })
	if limit > 0 && len(faces) > limit {
		faces = faces[:limit]
	}
	return faces
}

// embed returns the normalized embedding of chip. With tta the embedding of
// the mirrored chip is added before normalizing.
func (a *DNNAnalyzer) embed(ctx context.Context, chip gocv.Mat, tta bool) ([]float32, error) {
	v, err := a.forwardEmbedding(ctx, chip)
	if err != nil {
		return nil, err
	}

	if tta {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(chip, &flipped, 1)

		fv, err := a.forwardEmbedding(ctx, flipped)
		if err != nil {
			return nil, err
		}
		for i := range v {
			v[i] += fv[i]
		}
	}

	return gallery.Normalize(v), nil
}

func (a *DNNAnalyzer) forwardEmbedding(ctx context.Context, chip gocv.Mat) ([]float32, error) {
	blob := gocv.BlobFromImage(chip, 1.0/127.5, image.Pt(embedderInput, embedderInput),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.embedder.SetInput(blob, "")
	out := a.embedder.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read embedder output")
	}

	v := make([]float32, len(data))
	copy(v, data)
	return v, nil
}

func (a *DNNAnalyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.detector.Close()
	a.embedder.Close()
	return nil
}
