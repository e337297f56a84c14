package gallery

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/facegate/facegate/internal/models"
	"gocv.io/x/gocv"
)

// fakeAnalyzer embeds every image as the vector registered for its width.
type fakeAnalyzer struct {
	byWidth map[int][]float32
	calls   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, img gocv.Mat, tta bool) ([]models.Face, error) {
	f.calls++
	emb, ok := f.byWidth[img.Cols()]
	if !ok {
		return nil, nil
	}
	return []models.Face{
		{Box: models.Box{X1: 0, Y1: 0, X2: 2, Y2: 2}, Embedding: []float32{9, 9}},
		{Box: models.Box{X1: 0, Y1: 0, X2: img.Cols(), Y2: img.Rows()}, Embedding: emb},
	}, nil
}

func writePNG(t *testing.T, path string, width int) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestBuilder_Build(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "Alice", "1.png"), 20)
	writePNG(t, filepath.Join(dir, "Alice", "2.png"), 22)
	writePNG(t, filepath.Join(dir, "Bob", "1.png"), 24)
	writePNG(t, filepath.Join(dir, "Carol", "noface.png"), 30)

	if err := os.WriteFile(filepath.Join(dir, "Bob", "notes.txt"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	fa := &fakeAnalyzer{byWidth: map[int][]float32{
		20: {1, 0},
		22: {0, 1},
		24: {0, 2},
	}}

	var lastDone, lastTotal int
	g, err := NewBuilder(fa, false, nil).Build(context.Background(), dir, func(done, total int) {
		lastDone, lastTotal = done, total
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if lastDone != 4 || lastTotal != 4 {
		t.Errorf("progress ended at %d/%d, want 4/4", lastDone, lastTotal)
	}
	if fa.calls != 4 {
		t.Errorf("analyzer called %d times, want 4", fa.calls)
	}

	names := g.Names()
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Fatalf("Names() = %v, want [Alice Bob]", names)
	}

	// Alice is the normalized mean of (1,0) and (0,1); the small decoy face is ignored.
	alice := g.Entries()[0].Embedding
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(alice[0]-want)) > epsilon || math.Abs(float64(alice[1]-want)) > epsilon {
		t.Errorf("Alice embedding = %v, want [%v %v]", alice, want, want)
	}

	bob := g.Entries()[1].Embedding
	if bob[0] != 0 || bob[1] != 1 {
		t.Errorf("Bob embedding = %v, want [0 1]", bob)
	}
}

func TestBuilder_EmptyDir(t *testing.T) {
	_, err := NewBuilder(&fakeAnalyzer{}, false, nil).Build(context.Background(), t.TempDir(), nil)
	if !errors.Is(err, ErrEmptyGallery) {
		t.Errorf("Build() error = %v, want ErrEmptyGallery", err)
	}
}

func TestBuilder_MissingDir(t *testing.T) {
	_, err := NewBuilder(&fakeAnalyzer{}, false, nil).Build(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	if err == nil {
		t.Error("Build() on a missing directory should fail")
	}
}
