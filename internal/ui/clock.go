package ui

import (
	"time"
)

func (a *FaceApp) updateClock(now time.Time) {
	a.clockLabel.SetText(now.Format(ClockLayout))
}

// runClock ticks independently of the camera until the window closes.
func (a *FaceApp) runClock() {
	ticker := time.NewTicker(clockInterval)
	defer ticker.Stop()

	a.do(func() { a.updateClock(time.Now()) })

	for {
		select {
		case now := <-ticker.C:
			a.do(func() { a.updateClock(now) })
		case <-a.quit:
			return
		}
	}
}
