package gallery

import (
	"context"
	"log/slog"

	"github.com/facegate/facegate/internal/config"
	"github.com/pkg/errors"
)

// Provide returns the session gallery: rebuilt from cfg.Dir when cfg.Update is
// set (and saved when cfg.Save is set), otherwise loaded from the cache.
func Provide(ctx context.Context, cfg config.GalleryConfig, b *Builder, st *Store, progress Progress, log *slog.Logger) (*Gallery, error) {
	if log == nil {
		log = slog.Default()
	}

	if !cfg.Update {
		g, err := st.Load(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load gallery from %s", st.Path())
		}
		log.Info("gallery loaded", "path", st.Path(), "people", g.Len())
		return g, nil
	}

	g, err := b.Build(ctx, cfg.Dir, progress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build gallery from %s", cfg.Dir)
	}

	if cfg.Save {
		id, err := st.Save(ctx, g)
		if err != nil {
			return nil, errors.Wrap(err, "failed to save gallery")
		}
		log.Info("gallery saved", "path", st.Path(), "snapshot", id)
	}
	return g, nil
}
