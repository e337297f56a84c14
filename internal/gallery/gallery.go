package gallery

import (
	"math"

	"github.com/facegate/facegate/internal/models"
	"github.com/pkg/errors"
)

const NoMatch = -1

var ErrEmptyGallery = errors.New("gallery is empty")

type Entry struct {
	Name      string
	Embedding []float32
}

// Gallery is immutable once built; it is safe for concurrent readers.
type Gallery struct {
	entries []Entry
	dim     int
}

func New(entries []Entry) (*Gallery, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyGallery
	}

	dim := len(entries[0].Embedding)
	cp := make([]Entry, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, errors.Errorf("entry %d has no name", i)
		}
		if len(e.Embedding) == 0 || len(e.Embedding) != dim {
			return nil, errors.Errorf("entry %q has embedding length %d, want %d", e.Name, len(e.Embedding), dim)
		}
		emb := make([]float32, dim)
		copy(emb, e.Embedding)
		cp[i] = Entry{Name: e.Name, Embedding: emb}
	}

	return &Gallery{entries: cp, dim: dim}, nil
}

func (g *Gallery) Len() int { return len(g.entries) }

func (g *Gallery) Dim() int { return g.dim }

func (g *Gallery) Entries() []Entry {
	out := make([]Entry, len(g.entries))
	copy(out, g.entries)
	return out
}

func (g *Gallery) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.Name
	}
	return names
}

func (g *Gallery) Name(idx int) string {
	if idx < 0 || idx >= len(g.entries) {
		return models.Unknown
	}
	return g.entries[idx].Name
}

// Match returns the index of the closest entry and its squared L2 distance.
// When the distance exceeds threshold the index is NoMatch.
func (g *Gallery) Match(emb []float32, threshold float64) (int, float32) {
	if len(emb) != g.dim {
		return NoMatch, float32(math.Inf(1))
	}

	best := NoMatch
	bestDist := math.Inf(1)
	for i, e := range g.entries {
		d := SquaredDistance(emb, e.Embedding)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if bestDist > threshold {
		return NoMatch, float32(bestDist)
	}
	return best, float32(bestDist)
}
