package ui

import (
	"github.com/facegate/facegate/internal/config"
	"github.com/facegate/facegate/internal/ui/cwidget"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// sourceSettings picks the frame source. Changes apply the next time the
// camera is opened.
func (a *FaceApp) sourceSettings() fyne.CanvasObject {
	a.sourceDetails = container.NewVBox()

	a.sourceSelect = widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.ActiveSource = config.SourceType(s)
		a.refreshSourceSettings()
	})
	a.sourceSelect.SetSelected(string(a.config.ActiveSource))

	return container.NewVBox(
		widget.NewLabel("Source:"),
		a.sourceSelect,
		a.sourceDetails,
	)
}

func (a *FaceApp) refreshSourceSettings() {
	if a.sourceDetails == nil {
		return
	}
	a.sourceDetails.Objects = nil

	switch a.config.ActiveSource {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.Local.Path)

		pathEntry.OnChanged = func(s string) {
			a.config.Local.Path = s
		}

		fileBtn := widget.NewButtonWithIcon("", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					pathEntry.SetText(reader.URI().Path())
					reader.Close()
				}
			}, a.mainWin)
		})

		a.sourceDetails.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceInput := cwidget.NewIntInput(
			"Camera",
			"Device id",
			a.config.Webcam.DeviceID,
			func(i int) {
				a.config.Webcam.DeviceID = i
			},
		)
		// Device 0 is valid, unlike the zero rejected by the default validator.
		deviceInput.Validator = cwidget.NonNegativeInt(deviceInput.DefaultValue)

		a.sourceDetails.Add(deviceInput)
	}

	a.sourceDetails.Refresh()
}
