package gallery

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facegate/facegate/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

type FaceAnalyzer interface {
	Analyze(ctx context.Context, img gocv.Mat, tta bool) ([]models.Face, error)
}

type Progress func(done, total int)

// Builder computes a gallery from a folder laid out as <dir>/<name>/<image>.
// Each person's embedding is the normalized mean over their images.
type Builder struct {
	analyzer FaceAnalyzer
	tta      bool
	log      *slog.Logger
}

func NewBuilder(a FaceAnalyzer, tta bool, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{analyzer: a, tta: tta, log: log.With("component", "gallery")}
}

type person struct {
	name   string
	images []string
}

func scan(dir string) ([]person, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read gallery directory")
	}

	var people []person
	total := 0
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "failed to read %s", e.Name())
		}

		p := person{name: e.Name()}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name(), f.Name())
			mt, err := mimetype.DetectFile(path)
			if err != nil || !strings.HasPrefix(mt.String(), "image/") {
				continue
			}
			p.images = append(p.images, path)
		}
		if len(p.images) == 0 {
			continue
		}

		sort.Strings(p.images)
		total += len(p.images)
		people = append(people, p)
	}

	sort.Slice(people, func(i, j int) bool { return people[i].name < people[j].name })
	return people, total, nil
}

// Build leaves out people without a single usable image.
func (b *Builder) Build(ctx context.Context, dir string, progress Progress) (*Gallery, error) {
	people, total, err := scan(dir)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, errors.Wrapf(ErrEmptyGallery, "no reference images in %s", dir)
	}

	done := 0
	var entries []Entry
	for _, p := range people {
		var embs [][]float32
		for _, path := range p.images {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			emb, err := b.embedFile(ctx, path)
			done++
			if progress != nil {
				progress(done, total)
			}
			if err != nil {
				b.log.Warn("skipping reference image", "path", path, "error", err)
				continue
			}
			embs = append(embs, emb)
		}

		if len(embs) == 0 {
			b.log.Warn("no usable face for person", "name", p.name)
			continue
		}
		entries = append(entries, Entry{Name: p.name, Embedding: Normalize(Mean(embs))})
	}

	g, err := New(entries)
	if err != nil {
		return nil, err
	}
	b.log.Info("gallery built", "people", g.Len(), "images", total)
	return g, nil
}

func (b *Builder) embedFile(ctx context.Context, path string) ([]float32, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return nil, errors.New("failed to decode image")
	}
	defer img.Close()

	faces, err := b.analyzer.Analyze(ctx, img, b.tta)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, errors.New("no face found")
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Box.Area() > best.Box.Area() {
			best = f
		}
	}
	return best.Embedding, nil
}
