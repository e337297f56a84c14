package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/gallery"
	"github.com/facegate/facegate/processing/detector"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newGalleryCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Manage the reference face gallery",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Rebuild the gallery from reference images and save it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			cfg.Gallery.Update = true
			cfg.Gallery.Save = true
			return runGalleryBuild(cmd, cfg)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the people in the cached gallery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGalleryList(cmd, o.cfg.Gallery.Cache)
		},
	})

	return cmd
}

func newProgress(description string) gallery.Progress {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
	}
}

// loadGallery opens the cache and provides the session gallery.
func loadGallery(ctx context.Context, cfg *config.Config, analyzer detector.Analyzer, log *slog.Logger) (*gallery.Gallery, error) {
	st, err := gallery.OpenStore(cfg.Gallery.Cache)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var progress gallery.Progress
	if cfg.Gallery.Update {
		progress = newProgress("Embedding reference faces")
	}

	b := gallery.NewBuilder(analyzer, cfg.GetTTA(), log)
	return gallery.Provide(ctx, cfg.Gallery, b, st, progress, log)
}

func runGalleryBuild(cmd *cobra.Command, cfg *config.Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	analyzer, err := newAnalyzer(cfg, log)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	g, err := loadGallery(cmd.Context(), cfg, analyzer, log)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %d people to %s\n", g.Len(), cfg.Gallery.Cache)
	return nil
}

func runGalleryList(cmd *cobra.Command, path string) error {
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "gallery cache %s", path)
	}

	st, err := gallery.OpenStore(path)
	if err != nil {
		return err
	}
	defer st.Close()

	g, err := st.Load(cmd.Context())
	if err != nil {
		return errors.Wrapf(err, "failed to load gallery from %s", path)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDIM")
	fmt.Fprintln(w, "--\t----\t---")
	for i, name := range g.Names() {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i, name, g.Dim())
	}
	return w.Flush()
}
