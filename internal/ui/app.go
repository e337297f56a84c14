package ui

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/processing/pipeline"
	"github.com/facegate/facegate/processing/render"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const (
	openCameraText  = "Open camera"
	closeCameraText = "Close camera"

	statInterval  = 200 * time.Millisecond
	clockInterval = time.Second
)

type Engine interface {
	Start(ctx context.Context) (<-chan pipeline.Frame, error)
	Stop() <-chan struct{}
	IsActive() bool
	Stats() pipeline.Stats
}

type FaceApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config *config.Config
	engine Engine
	log    *slog.Logger

	videoCanvas   *canvas.Image
	videoSize     *pixelTracker
	toggleBtn     *widget.Button
	fpsLabel      *widget.Label
	latencyLabel  *widget.Label
	failuresLabel *widget.Label
	clockLabel    *widget.Label
	newsLabel     *widget.Label
	sourceSelect  *widget.Select
	sourceDetails *fyne.Container

	results resultView

	// mu guards the fields below and the widgets they drive.
	mu          sync.Mutex
	running     bool
	starting    bool
	closed      bool
	session     uint64
	stopSession context.CancelFunc

	quit chan struct{}
}

func NewFaceApp(a fyne.App, cfg *config.Config, engine Engine, log *slog.Logger) *FaceApp {
	if log == nil {
		log = slog.Default()
	}

	w := a.NewWindow(cfg.Title)
	w.Resize(fyne.NewSize(1280, 700))

	fa := &FaceApp{
		fyneApp: a,
		mainWin: w,
		config:  cfg,
		engine:  engine,
		log:     log.With("component", "ui"),
		quit:    make(chan struct{}),
	}
	fa.build()

	return fa
}

func (a *FaceApp) Window() fyne.Window {
	return a.mainWin
}

// SetNews replaces the text of the news card. Only the panel layout has one.
func (a *FaceApp) SetNews(text string) {
	if a.newsLabel != nil {
		a.newsLabel.SetText(text)
	}
}

func (a *FaceApp) Run() {
	if a.clockLabel != nil {
		go a.runClock()
	}

	a.mainWin.SetCloseIntercept(func() {
		a.shutdown()
		a.mainWin.Close()
	})

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
	close(a.quit)
}

func (a *FaceApp) build() {
	// Frames arrive composed at the canvas' pixel size, so stretching is 1:1.
	a.videoCanvas = canvas.NewImageFromImage(nil)
	a.videoCanvas.FillMode = canvas.ImageFillStretch
	a.videoCanvas.ScaleMode = canvas.ImageScaleSmooth
	a.videoCanvas.SetMinSize(fyne.NewSize(config.CameraWidth/2, config.CameraHeight/2))
	a.videoSize = &pixelTracker{scale: func() float32 { return a.mainWin.Canvas().Scale() }}

	a.fpsLabel = widget.NewLabel(formatFPS(0))
	a.latencyLabel = widget.NewLabel(formatLatency(0))
	a.failuresLabel = widget.NewLabel(formatFailures(0))

	a.toggleBtn = widget.NewButtonWithIcon(openCameraText, theme.MediaPlayIcon(), a.toggleCamera)

	switch a.config.Layout {
	case config.LayoutPanel:
		a.mainWin.SetContent(a.buildPanelLayout())
	default:
		a.mainWin.SetContent(a.buildLogLayout())
	}
}

// do runs fn on the UI goroutine with the app state locked.
func (a *FaceApp) do(fn func()) {
	fyne.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		fn()
	})
}

func (a *FaceApp) toggleCamera() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case a.starting:
	case a.running:
		a.closeCamera()
	default:
		a.openCamera()
	}
}

func (a *FaceApp) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	if a.starting && a.stopSession != nil {
		a.stopSession()
	}
	a.closeCamera()
}

// openCamera starts the engine off the UI goroutine, since Start waits for
// the previous session to wind down.
func (a *FaceApp) openCamera() {
	ctx, cancel := context.WithCancel(context.Background())
	a.starting = true
	a.stopSession = cancel
	a.toggleBtn.Disable()

	go func() {
		frames, err := a.engine.Start(ctx)
		a.do(func() { a.started(ctx, frames, err) })
	}()
}

func (a *FaceApp) started(ctx context.Context, frames <-chan pipeline.Frame, err error) {
	cancel := a.stopSession
	a.starting = false
	a.toggleBtn.Enable()

	if err != nil {
		cancel()
		a.stopSession = nil
		a.log.Error("failed to open camera", "error", err)
		if !a.closed {
			dialog.ShowError(err, a.mainWin)
		}
		return
	}

	if a.closed {
		cancel()
		a.stopSession = nil
		a.engine.Stop()
		return
	}

	a.session++
	a.running = true

	a.toggleBtn.SetText(closeCameraText)
	a.toggleBtn.SetIcon(theme.MediaStopIcon())

	go a.runPlayerLoop(ctx, a.session, frames)
	go a.runStatLoop(ctx)
}

func (a *FaceApp) closeCamera() {
	if !a.running {
		return
	}
	a.engine.Stop()
	a.setStopped()
}

// setStopped returns the window to the closed state. Bumping the session
// drops updates still queued by the old player loop.
func (a *FaceApp) setStopped() {
	a.running = false
	a.session++
	if a.stopSession != nil {
		a.stopSession()
		a.stopSession = nil
	}

	a.toggleBtn.SetText(openCameraText)
	a.toggleBtn.SetIcon(theme.MediaPlayIcon())

	a.videoCanvas.Image = nil
	a.videoCanvas.Refresh()

	a.results.Reset()
}

// runPlayerLoop forwards results for every frame and pushes the newest image
// to the canvas at most TargetFPS times a second.
func (a *FaceApp) runPlayerLoop(ctx context.Context, session uint64, frames <-chan pipeline.Frame) {
	fps := a.config.GetFPS()
	if fps == 0 {
		fps = 1
	}
	displayTicker := time.NewTicker(time.Second / time.Duration(fps))
	defer displayTicker.Stop()

	var lastFrame *image.RGBA

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				a.do(func() {
					if a.session == session {
						a.setStopped()
					}
				})
				return
			}

			if frame.Image != nil {
				lastFrame = frame.Image
			}
			a.do(func() {
				if a.session == session {
					a.results.Show(frame)
				}
			})

		case <-displayTicker.C:
			if lastFrame == nil {
				continue
			}
			img := a.fitFrame(lastFrame)
			lastFrame = nil
			a.do(func() {
				if a.session == session {
					a.videoCanvas.Image = img
					a.videoCanvas.Refresh()
				}
			})

		case <-ctx.Done():
			return
		}
	}
}

func (a *FaceApp) fitFrame(img *image.RGBA) *image.RGBA {
	w, h := a.videoSize.Size()
	if w == 0 || h == 0 {
		b := img.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	return render.Compose(img, w, h)
}

func (a *FaceApp) runStatLoop(ctx context.Context) {
	uiTicker := time.NewTicker(statInterval)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			stats := a.engine.Stats()
			a.do(func() {
				a.fpsLabel.SetText(formatFPS(stats.FPS))
				a.latencyLabel.SetText(formatLatency(stats.Latency))
				a.failuresLabel.SetText(formatFailures(stats.Failures))
			})
		case <-ctx.Done():
			return
		}
	}
}

func formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func formatFailures(v uint) string {
	return fmt.Sprintf("Errors: %d", v)
}
