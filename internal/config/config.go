package config

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"
)

var SourcesList = [...]string{
	string(SourceLocal),
	string(SourceWebcam),
}

type Layout string

const (
	LayoutLog   Layout = "log"
	LayoutPanel Layout = "panel"
)

type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

const (
	CameraWidth  = 640
	CameraHeight = 480

	DefaultRemoteHost = "localhost:8080"
	DefaultTitle      = "Face recognize for access control"
)

type LocalConfig struct {
	Path string
}

type WebcamConfig struct {
	DeviceID int
}

type ModelConfig struct {
	DetectorModel    string
	DetectorConfig   string
	EmbedderModel    string
	FaceLimit        int
	MinFaceSize      int
	DetectConfidence float64
}

type GalleryConfig struct {
	Dir   string
	Cache string

	// Update rebuilds the gallery from Dir instead of reading Cache.
	Update bool
	// Save persists a rebuilt gallery to Cache.
	Save bool
}

// Config is filled from command-line flags only. Fields read by the capture
// worker while the UI may change them go through the guarded accessors.
type Config struct {
	mu sync.RWMutex

	Title  string
	Layout Layout

	ActiveSource SourceType
	TargetFPS    uint

	Local  LocalConfig
	Webcam WebcamConfig

	Backend    Backend
	RemoteHost string
	Models     ModelConfig
	Gallery    GalleryConfig

	FontPath string
	FontSize float64

	InferenceTimeout time.Duration
	LogLevel         string

	threshold float64
	tta       bool
	showScore bool
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetThreshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

func (c *Config) SetThreshold(th float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = th
}

func (c *Config) GetTTA() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tta
}

func (c *Config) SetTTA(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tta = v
}

func (c *Config) GetShowScore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.showScore
}

func (c *Config) SetShowScore(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.showScore = v
}

func (c *Config) Validate() error {
	switch c.Layout {
	case LayoutLog, LayoutPanel:
	default:
		return errors.Errorf("unknown layout %q", c.Layout)
	}

	switch c.ActiveSource {
	case SourceWebcam:
		if c.Webcam.DeviceID < 0 {
			return errors.Errorf("invalid camera id %d", c.Webcam.DeviceID)
		}
	case SourceLocal:
		if c.Local.Path == "" {
			return errors.New("local source requires a video path")
		}
	default:
		return errors.Errorf("unknown source: %s", c.ActiveSource)
	}

	switch c.Backend {
	case BackendLocal:
		if c.Models.DetectorModel == "" || c.Models.EmbedderModel == "" {
			return errors.New("local backend requires detector and embedder models")
		}
	case BackendRemote:
		if c.RemoteHost == "" {
			return errors.New("remote backend requires a host")
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	if c.GetThreshold() <= 0 {
		return errors.Errorf("threshold must be positive, got %v", c.GetThreshold())
	}
	if c.GetFPS() == 0 {
		return errors.New("fps must be positive")
	}
	if c.FontSize <= 0 {
		return errors.Errorf("font size must be positive, got %v", c.FontSize)
	}
	if c.InferenceTimeout <= 0 {
		return errors.New("inference timeout must be positive")
	}
	if c.Gallery.Cache == "" {
		return errors.New("gallery cache path is empty")
	}
	if c.Gallery.Update && c.Gallery.Dir == "" {
		return errors.New("gallery rebuild requires a source directory")
	}

	return nil
}

func NewDefaultConfig() *Config {
	return &Config{
		Title:        DefaultTitle,
		Layout:       LayoutLog,
		ActiveSource: SourceWebcam,
		TargetFPS:    24,
		Local:        LocalConfig{Path: ""},
		Webcam:       WebcamConfig{DeviceID: 0},
		Backend:      BackendLocal,
		RemoteHost:   DefaultRemoteHost,
		Models: ModelConfig{
			DetectorModel:    "models/res10_300x300_ssd_iter_140000.caffemodel",
			DetectorConfig:   "models/deploy.prototxt",
			EmbedderModel:    "models/arcface.onnx",
			FaceLimit:        10,
			MinFaceSize:      30,
			DetectConfidence: 0.5,
		},
		Gallery: GalleryConfig{
			Dir:    "data/facebank",
			Cache:  "data/facebank.db",
			Update: true,
		},
		FontPath:         "font/simsun.ttc",
		FontSize:         20,
		InferenceTimeout: 2 * time.Second,
		LogLevel:         "info",
		threshold:        1.54,
	}
}
