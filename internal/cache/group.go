package cache

import (
	"sort"
	"time"

	"github.com/matheus3301/waconsole/internal/domain"
)

// DateGroup is the set of messages sharing a calendar date.
type DateGroup struct {
	Date     time.Time // midnight of the date in the grouping location
	Messages []domain.Message
}

// GroupByDate partitions msgs by calendar date in loc. Groups are in
// ascending date order and messages keep timestamp order within a group.
// msgs is not modified.
func GroupByDate(msgs []domain.Message, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	sorted := make([]domain.Message, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var groups []DateGroup
	for _, m := range sorted {
		day := StartOfDay(m.Timestamp, loc)
		if n := len(groups); n > 0 && groups[n-1].Date.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{Date: day, Messages: []domain.Message{m}})
	}
	return groups
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
