package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/models"
	"github.com/facegate/facegate/processing/capture"
	"github.com/facegate/facegate/processing/render"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

const readBackoff = 10 * time.Millisecond

var ErrAlreadyRunning = errors.New("processor is already running")

type Recognizer interface {
	Recognize(ctx context.Context, frame gocv.Mat) models.Outcome
}

type CameraFactory func() (capture.Camera, error)

type Frame struct {
	Image  *image.RGBA
	Labels []string
	Kind   models.OutcomeKind
	Err    error
	At     time.Time
}

func (f Frame) HasFaces() bool {
	return len(f.Labels) > 0
}

type Stats struct {
	Latency  time.Duration
	FPS      uint
	Failures uint
}

type Processor struct {
	cfg        *config.Config
	newCamera  CameraFactory
	recognizer Recognizer
	renderer   *render.Renderer
	log        *slog.Logger

	mu      sync.RWMutex
	active  bool
	session uint64
	cancel  context.CancelFunc
	done    chan struct{}
	stats   Stats
}

func NewProcessor(cfg *config.Config, newCamera CameraFactory, rec Recognizer, r *render.Renderer, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:        cfg,
		newCamera:  newCamera,
		recognizer: rec,
		renderer:   r,
		log:        log.With("component", "processor"),
	}
}

// Start waits for the previous session to release its device first.
func (p *Processor) Start(ctx context.Context) (<-chan Frame, error) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	p.active = true
	p.session++
	session := p.session
	prev := p.done
	p.mu.Unlock()

	if prev != nil {
		<-prev
	}

	cam, err := p.open()
	if err != nil {
		p.mu.Lock()
		if p.session == session {
			p.active = false
		}
		p.mu.Unlock()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Frame, 1)
	done := make(chan struct{})

	p.mu.Lock()
	if p.session != session || !p.active {
		// Stopped while the camera was opening.
		p.mu.Unlock()
		cancel()
		cam.Close()
		return nil, context.Canceled
	}
	p.cancel = cancel
	p.done = done
	p.stats = Stats{}
	p.mu.Unlock()

	go p.run(ctx, cancel, session, cam, out, done)

	p.log.Info("capture started")
	return out, nil
}

func (p *Processor) open() (capture.Camera, error) {
	cam, err := p.newCamera()
	if err != nil {
		return nil, err
	}
	if err := cam.Open(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "failed to open camera")
	}
	return cam, nil
}

func (p *Processor) Stop() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.active = false
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

func (p *Processor) IsActive() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

func (p *Processor) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *Processor) run(ctx context.Context, cancel context.CancelFunc, session uint64, cam capture.Camera, out chan<- Frame, done chan<- struct{}) {
	defer func() {
		if err := cam.Close(); err != nil {
			p.log.Warn("error closing camera", "error", err)
		}
		close(out)
		cancel()

		p.mu.Lock()
		if p.session == session {
			p.active = false
		}
		p.mu.Unlock()

		close(done)
		p.log.Info("capture stopped")
	}()

	var frameCount uint
	lastFpsUpdate := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}
		if !cam.IsOpen() {
			p.log.Info("camera reports closed")
			return
		}

		mat, err := cam.ReadFrame()
		if err != nil {
			if errors.Is(err, capture.ErrCameraNotOpen) {
				return
			}
			p.log.Debug("frame skipped", "error", err)
			select {
			case <-time.After(readBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		frame, ok := p.process(ctx, *mat)
		mat.Close()
		if !ok {
			continue
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return
		}

		frameCount++
		if time.Since(lastFpsUpdate) >= time.Second {
			p.mu.Lock()
			p.stats.FPS = frameCount
			p.mu.Unlock()
			frameCount = 0
			lastFpsUpdate = time.Now()
		}
	}
}

func (p *Processor) process(ctx context.Context, raw gocv.Mat) (Frame, bool) {
	start := time.Now()

	mirrored := gocv.NewMat()
	defer mirrored.Close()
	gocv.Flip(raw, &mirrored, 1)

	outcome := p.recognizer.Recognize(ctx, mirrored)

	src, err := mirrored.ToImage()
	if err != nil {
		p.log.Debug("frame conversion failed", "error", err)
		return Frame{}, false
	}
	img := render.ToRGBA(src)

	frame := Frame{
		Image: img,
		Kind:  outcome.Kind,
		Err:   outcome.Err,
		At:    time.Now(),
	}

	switch outcome.Kind {
	case models.OutcomeFaces:
		showScore := p.cfg.GetShowScore()
		for _, d := range outcome.Detections {
			label := FormatLabel(d, showScore)
			p.renderer.Draw(img, d.Box.Grow(1).Rect(), label)
			frame.Labels = append(frame.Labels, label)
		}
	case models.OutcomeError:
		p.log.Debug("recognition failed", "error", outcome.Err)
	}

	p.mu.Lock()
	p.stats.Latency = time.Since(start)
	if outcome.Kind == models.OutcomeError {
		p.stats.Failures++
	}
	p.mu.Unlock()

	return frame, true
}
