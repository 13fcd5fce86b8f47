package fetcher

import (
	"time"

	"github.com/backyonatan-alt/conflictwatch/internal/config"
	"github.com/backyonatan-alt/conflictwatch/internal/model"
)

// DailyWindows returns one single-day window for every calendar day from
// start through end inclusive. It returns nil when end is before start.
func DailyWindows(start, end time.Time) []model.FetchWindow {
	start, end = day(start), day(end)
	if end.Before(start) {
		return nil
	}
	var windows []model.FetchWindow
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		windows = append(windows, model.FetchWindow{Start: d, End: d})
	}
	return windows
}

// Windows plans the windows for one run. Range mode covers the whole span
// with a single window and one continuous offset loop.
func Windows(mode string, start, end time.Time) []model.FetchWindow {
	if mode == config.WindowModeRange {
		start, end = day(start), day(end)
		if end.Before(start) {
			return nil
		}
		return []model.FetchWindow{{Start: start, End: end}}
	}
	return DailyWindows(start, end)
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
