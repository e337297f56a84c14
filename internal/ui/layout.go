package ui

import (
	"image/color"
	"sync"
	"time"

	"github.com/facegate/facegate/internal/ui/cwidget"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// buildLogLayout: a title bar over a 75/25 split between the video and a
// control column ending in the scrolling log.
func (a *FaceApp) buildLogLayout() fyne.CanvasObject {
	log := newLogView()
	a.results = log

	title := canvas.NewText(a.config.Title, color.White)
	title.TextSize = 20
	title.TextStyle = fyne.TextStyle{Bold: true}
	titleBar := container.NewStack(
		canvas.NewRectangle(color.Black),
		container.NewPadded(title),
	)

	controls := container.NewVBox(
		widget.NewLabelWithStyle("Operation", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		a.toggleBtn,
		widget.NewSeparator(),
		a.settings(),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Log", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
	)
	sidebar := container.NewBorder(controls, nil, nil, nil, log.list)

	split := container.NewHSplit(
		container.NewPadded(a.videoContainer()),
		container.NewPadded(sidebar),
	)
	split.SetOffset(0.75)

	return container.NewBorder(titleBar, nil, nil, nil, split)
}

// buildPanelLayout: camera and result cards split 70/30 above a row with the
// clock, the news card and the operation card.
func (a *FaceApp) buildPanelLayout() fyne.CanvasObject {
	panel := newPanelView()
	a.results = panel

	a.clockLabel = widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	a.updateClock(time.Now())
	a.newsLabel = widget.NewLabel("")
	a.newsLabel.Wrapping = fyne.TextWrapWord

	top := container.NewHSplit(
		widget.NewCard("Camera", "", a.videoContainer()),
		widget.NewCard("Result", "", container.NewVBox(panel.name, panel.at)),
	)
	top.SetOffset(0.7)

	timeNews := container.NewHSplit(
		widget.NewCard("Time", "", container.NewCenter(a.clockLabel)),
		widget.NewCard("News", "", a.newsLabel),
	)
	timeNews.SetOffset(1.0 / 3)

	bottom := container.NewHSplit(
		timeNews,
		widget.NewCard("Operation", "", container.NewVBox(a.toggleBtn, a.settings())),
	)
	bottom.SetOffset(0.7)

	return container.NewBorder(nil, bottom, nil, nil, top)
}

func (a *FaceApp) videoContainer() fyne.CanvasObject {
	return container.NewBorder(
		container.NewHBox(a.fpsLabel, widget.NewSeparator(), a.latencyLabel, widget.NewSeparator(), a.failuresLabel),
		nil, nil, nil,
		container.New(a.videoSize, a.videoCanvas),
	)
}

// settings holds the values that may change while the camera runs.
func (a *FaceApp) settings() fyne.CanvasObject {
	thresholdInput := cwidget.NewFloatInput(
		"Threshold",
		"Enter number",
		a.config.GetThreshold(),
		func(v float64) {
			a.config.SetThreshold(v)
		},
	)

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			if i > 0 {
				a.config.SetFPS(uint(i))
			}
		},
	)

	scoreCheck := widget.NewCheck("Show score", func(v bool) {
		a.config.SetShowScore(v)
	})
	scoreCheck.SetChecked(a.config.GetShowScore())

	ttaCheck := widget.NewCheck("Flip augmentation", func(v bool) {
		a.config.SetTTA(v)
	})
	ttaCheck.SetChecked(a.config.GetTTA())

	return container.NewVBox(a.sourceSettings(), thresholdInput, fpsInput, scoreCheck, ttaCheck)
}

// pixelTracker fills its container with the video canvas and remembers the
// laid out size in device pixels for the player loop.
type pixelTracker struct {
	scale func() float32

	mu   sync.Mutex
	w, h int
}

func (t *pixelTracker) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	for _, o := range objects {
		o.Move(fyne.NewPos(0, 0))
		o.Resize(size)
	}

	s := t.scale()
	t.mu.Lock()
	t.w, t.h = int(size.Width*s), int(size.Height*s)
	t.mu.Unlock()
}

func (t *pixelTracker) MinSize(objects []fyne.CanvasObject) fyne.Size {
	ms := fyne.NewSize(0, 0)
	for _, o := range objects {
		ms = ms.Max(o.MinSize())
	}
	return ms
}

func (t *pixelTracker) Size() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.w, t.h
}
