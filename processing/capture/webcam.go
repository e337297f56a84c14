package capture

import (
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	ErrCameraNotOpen = errors.New("camera is not open")
	ErrFrameEmpty    = errors.New("captured frame is empty")
)

// Camera is a source of BGR frames. ReadFrame hands ownership of the Mat to
// the caller.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	IsOpen() bool
}

type WebcamCamera struct {
	mu sync.Mutex

	deviceID int
	width    int
	height   int

	capture *gocv.VideoCapture
}

func NewWebcam(deviceID, width, height int) *WebcamCamera {
	return &WebcamCamera{
		deviceID: deviceID,
		width:    width,
		height:   height,
	}
}

// Open requests the configured resolution; devices may still deliver another.
func (c *WebcamCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(c.deviceID)
	if err != nil {
		return errors.Wrapf(err, "failed to open camera %d", c.deviceID)
	}
	if !vc.IsOpened() {
		vc.Close()
		return errors.Errorf("camera %d did not open", c.deviceID)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))

	c.capture = vc
	return nil
}

func (c *WebcamCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return closeCapture(&c.capture)
}

func (c *WebcamCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return readFrame(c.capture)
}

func (c *WebcamCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil && c.capture.IsOpened()
}

func readFrame(vc *gocv.VideoCapture) (*gocv.Mat, error) {
	if vc == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := vc.Read(&mat); !ok {
		mat.Close()
		if !vc.IsOpened() {
			return nil, ErrCameraNotOpen
		}
		return nil, errors.New("failed to read frame")
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrFrameEmpty
	}

	return &mat, nil
}

func closeCapture(vc **gocv.VideoCapture) error {
	if *vc == nil {
		return nil
	}
	err := (*vc).Close()
	*vc = nil
	return err
}
