package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/ui"
	"github.com/facegate/facegate/processing/capture"
	"github.com/facegate/facegate/processing/detector"
	"github.com/facegate/facegate/processing/pipeline"
	"github.com/facegate/facegate/processing/render"

	"fyne.io/fyne/v2/app"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

type options struct {
	cfg *config.Config

	layout    string
	source    string
	backend   string
	fps       uint
	threshold float64
	tta       bool
	showScore bool
}

func newOptions() *options {
	cfg := config.NewDefaultConfig()
	return &options{
		cfg:       cfg,
		layout:    string(cfg.Layout),
		source:    string(cfg.ActiveSource),
		backend:   string(cfg.Backend),
		fps:       cfg.TargetFPS,
		threshold: cfg.GetThreshold(),
		tta:       cfg.GetTTA(),
		showScore: cfg.GetShowScore(),
	}
}

// bind registers every flag as persistent so subcommands share them.
func (o *options) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	cfg := o.cfg

	f.BoolVarP(&cfg.Gallery.Save, "save", "s", cfg.Gallery.Save, "save the rebuilt gallery to the cache")
	f.Float64VarP(&o.threshold, "threshold", "t", o.threshold, "recognition distance threshold")
	f.BoolVarP(&cfg.Gallery.Update, "update", "u", cfg.Gallery.Update, "rebuild the gallery from reference images (false loads the cache)")
	f.BoolVar(&o.tta, "tta", o.tta, "test-time augmentation: add the embedding of the flipped face")
	f.BoolVarP(&o.showScore, "score", "c", o.showScore, "show the match score next to names")

	f.StringVar(&o.layout, "layout", o.layout, "result surface: log or panel")
	f.StringVar(&o.source, "source", o.source, "frame source: Web-Camera or Local")
	f.IntVar(&cfg.Webcam.DeviceID, "camera", cfg.Webcam.DeviceID, "camera device id")
	f.StringVar(&cfg.Local.Path, "video", cfg.Local.Path, "video file for the Local source")
	f.UintVar(&o.fps, "fps", o.fps, "display refresh cap")

	f.StringVar(&cfg.FontPath, "font", cfg.FontPath, "label font (TTF, OTF or TTC)")
	f.Float64Var(&cfg.FontSize, "font-size", cfg.FontSize, "label font size in points")

	f.StringVar(&o.backend, "backend", o.backend, "face analyzer: local or remote")
	f.StringVar(&cfg.RemoteHost, "remote", cfg.RemoteHost, "remote analyzer host")
	f.StringVar(&cfg.Models.DetectorModel, "detector-model", cfg.Models.DetectorModel, "face detector weights")
	f.StringVar(&cfg.Models.DetectorConfig, "detector-config", cfg.Models.DetectorConfig, "face detector network description")
	f.StringVar(&cfg.Models.EmbedderModel, "embedder-model", cfg.Models.EmbedderModel, "face embedding network")
	f.IntVar(&cfg.Models.FaceLimit, "face-limit", cfg.Models.FaceLimit, "maximum faces per frame")
	f.IntVar(&cfg.Models.MinFaceSize, "min-face-size", cfg.Models.MinFaceSize, "minimum face side in pixels")
	f.Float64Var(&cfg.Models.DetectConfidence, "detect-confidence", cfg.Models.DetectConfidence, "minimum detector confidence")

	f.StringVar(&cfg.Gallery.Dir, "gallery-dir", cfg.Gallery.Dir, "reference images, one folder per person")
	f.StringVar(&cfg.Gallery.Cache, "gallery-cache", cfg.Gallery.Cache, "gallery cache database")

	f.DurationVar(&cfg.InferenceTimeout, "inference-timeout", cfg.InferenceTimeout, "per-frame inference timeout")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
}

func (o *options) config() (*config.Config, error) {
	cfg := o.cfg
	cfg.Layout = config.Layout(o.layout)
	cfg.ActiveSource = config.SourceType(o.source)
	cfg.Backend = config.Backend(o.backend)
	cfg.SetFPS(o.fps)
	cfg.SetThreshold(o.threshold)
	cfg.SetTTA(o.tta)
	cfg.SetShowScore(o.showScore)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid flags")
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	o := newOptions()

	cmd := &cobra.Command{
		Use:           "facegate",
		Short:         "Face recognition access control demo",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			return runApp(cmd.Context(), cfg)
		},
	}
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	o.bind(cmd)
	cmd.AddCommand(newGalleryCmd(o))

	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log, nil
}

func newAnalyzer(cfg *config.Config, log *slog.Logger) (detector.Analyzer, error) {
	switch cfg.Backend {
	case config.BackendRemote:
		return detector.NewRemoteAnalyzer(cfg.RemoteHost, log), nil
	default:
		a, err := detector.NewDNNAnalyzer(cfg.Models)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load face models")
		}
		return a, nil
	}
}

// runApp loads every resource up front and exits with a diagnostic when one
// is missing; only then is the window shown.
func runApp(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	renderer, err := render.NewRenderer(cfg.FontPath, cfg.FontSize)
	if err != nil {
		return errors.Wrap(err, "failed to load label font")
	}
	defer renderer.Close()

	analyzer, err := newAnalyzer(cfg, log)
	if err != nil {
		return err
	}
	defer analyzer.Close()

	start := time.Now()
	g, err := loadGallery(ctx, cfg, analyzer, log)
	if err != nil {
		return err
	}
	log.Info("gallery ready", "people", g.Len(), "took", time.Since(start))

	rec := detector.NewRecognizer(analyzer, g, cfg)
	newCamera := func() (capture.Camera, error) {
		return capture.NewCamera(cfg)
	}
	proc := pipeline.NewProcessor(cfg, newCamera, rec, renderer, log)

	fa := ui.NewFaceApp(app.New(), cfg, proc, log)
	fa.SetNews(fmt.Sprintf("%d people enrolled: %s", g.Len(), strings.Join(g.Names(), ", ")))
	fa.Run()

	<-proc.Stop()
	return nil
}
