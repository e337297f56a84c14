package ui

import (
	"strings"

	"github.com/facegate/facegate/processing/pipeline"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const ClockLayout = "2006-01-02\n15:04:05"

const maxLogLines = 1000

type resultView interface {
	Show(f pipeline.Frame)
	Reset()
}

// logView appends one line per frame with at least one face.
type logView struct {
	lines []string
	list  *widget.List
}

func newLogView() *logView {
	v := &logView{}
	v.list = widget.NewList(
		func() int { return len(v.lines) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			o.(*widget.Label).SetText(v.lines[id])
		},
	)
	return v
}

func (v *logView) Show(f pipeline.Frame) {
	if !f.HasFaces() {
		return
	}

	v.lines = append(v.lines, pipeline.LogLine(f.At, f.Labels))
	if len(v.lines) > maxLogLines {
		v.lines = v.lines[len(v.lines)-maxLogLines:]
	}

	v.list.Refresh()
	v.list.ScrollToBottom()
}

// Reset keeps the scrollback; the log spans camera sessions.
func (v *logView) Reset() {}

func (v *logView) Lines() []string {
	return v.lines
}

type panelView struct {
	name *widget.Label
	at   *widget.Label
}

func newPanelView() *panelView {
	name := widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	name.SizeName = theme.SizeNameHeadingText
	name.Wrapping = fyne.TextWrapWord

	at := widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{})

	return &panelView{name: name, at: at}
}

func (v *panelView) Show(f pipeline.Frame) {
	if !f.HasFaces() {
		v.Reset()
		return
	}
	v.name.SetText(strings.Join(f.Labels, ", "))
	v.at.SetText(f.At.Format(ClockLayout))
}

func (v *panelView) Reset() {
	v.name.SetText("")
	v.at.SetText("")
}
