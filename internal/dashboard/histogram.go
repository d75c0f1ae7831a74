package dashboard

import (
	"time"

	"github.com/garnizeh/jobsync/pkg/models"
)

const dateLayout = "2006-01-02"

// Bar is one calendar day of the activity histogram. Ratios are relative to
// the largest count of either series over the whole window.
type Bar struct {
	Date             string
	StageTransitions int64
	TaskCompletions  int64
	TransitionRatio  float64
	CompletionRatio  float64
}

// Histogram lays activity out over exactly days calendar days ending on
// today's date. Days missing from activity are zero.
func Histogram(activity models.Activity, days int, today time.Time) []Bar {
	if days <= 0 {
		return []Bar{}
	}
	byDate := make(map[string]models.ActivityPoint, len(activity.Items))
	for _, p := range activity.Items {
		byDate[p.Date] = p
	}

	y, m, d := today.Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, today.Location())
	bars := make([]Bar, days)
	var peak int64 = 1
	for i := range bars {
		date := end.AddDate(0, 0, i-days+1).Format(dateLayout)
		p := byDate[date]
		bars[i] = Bar{Date: date, StageTransitions: p.StageTransitions, TaskCompletions: p.TaskCompletions}
		peak = max(peak, p.StageTransitions, p.TaskCompletions)
	}
	for i := range bars {
		bars[i].TransitionRatio = float64(bars[i].StageTransitions) / float64(peak)
		bars[i].CompletionRatio = float64(bars[i].TaskCompletions) / float64(peak)
	}
	return bars
}
