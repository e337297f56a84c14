package capture

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FileCamera plays a video file as if it were a camera. With loop set it
// rewinds at the end instead of reporting itself closed.
type FileCamera struct {
	mu sync.Mutex

	path string
	loop bool

	capture *gocv.VideoCapture
}

func NewFileCamera(path string, loop bool) *FileCamera {
	return &FileCamera{path: path, loop: loop}
}

func (c *FileCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	if _, err := os.Stat(c.path); err != nil {
		return errors.Wrap(err, "failed to probe video")
	}

	vc, err := gocv.VideoCaptureFile(c.path)
	if err != nil {
		return errors.Wrapf(err, "failed to open video %s", c.path)
	}

	c.capture = vc
	return nil
}

func (c *FileCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return closeCapture(&c.capture)
}

func (c *FileCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, err := readFrame(c.capture)
	if err == nil || !c.loop || c.capture == nil {
		return frame, err
	}

	c.capture.Set(gocv.VideoCapturePosFrames, 0)
	return readFrame(c.capture)
}

func (c *FileCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil && c.capture.IsOpened()
}
