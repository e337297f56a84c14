// Package detector turns frames into recognized faces. Analyzers locate and
// embed faces; the Recognizer matches their embeddings against the gallery.
package detector

import (
	"context"

	"github.com/facegate/facegate/internal/models"
	"gocv.io/x/gocv"
)

// Analyzer finds faces in a BGR image and embeds each of them. Implementations
// must not retain img after returning.
type Analyzer interface {
	Analyze(ctx context.Context, img gocv.Mat, tta bool) ([]models.Face, error)
	Close() error
}
