package capture

import (
	"github.com/pkg/errors"

	"github.com/facegate/facegate/internal/config"
)

func NewCamera(cfg *config.Config) (Camera, error) {
	switch cfg.ActiveSource {
	case config.SourceWebcam:
		return NewWebcam(cfg.Webcam.DeviceID, config.CameraWidth, config.CameraHeight), nil
	case config.SourceLocal:
		return NewFileCamera(cfg.Local.Path, true), nil
	default:
		return nil, errors.Errorf("unknown source: %s", cfg.ActiveSource)
	}
}
