package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/facegate/facegate/internal/models"
)

const TimestampLayout = "2006-01-02 15:04:05"

// FormatLabel gives the text drawn next to a face: the resolved name, with
// the score appended when showScore is set.
func FormatLabel(d models.Detection, showScore bool) string {
	name := d.Name
	if !d.Known() || name == "" {
		name = models.Unknown
	}
	if !showScore {
		return name
	}
	return fmt.Sprintf("%s_%.2f", name, d.Score)
}

func LogLine(at time.Time, labels []string) string {
	return at.Format(TimestampLayout) + " " + strings.Join(labels, ", ")
}
