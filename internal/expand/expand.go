// Package expand turns recurring sessions and blocks into absolute interval
// groups that the search can place.
//
// Offsets are seconds since the start (Monday 00:00) of teaching week 1.
// Inputs are expected to be validated (see model.Session.Validate and
// model.Block.Validate); expansion itself never fails.
package expand

import (
	"modschedule/internal/interval"
	"modschedule/internal/model"
)

// Occasions returns the start offset of the day of every occasion of r:
// one per (teaching week, weekday) pair, ordered by week then weekday.
func Occasions(r model.Recurrence) []int64 {
	out := make([]int64, 0, len(r.TeachingWeeks)*len(r.Weekdays))
	for _, week := range r.TeachingWeeks {
		for _, day := range r.Weekdays {
			out = append(out, int64(week-1)*model.WeekSecs+int64(day-1)*model.DaySecs)
		}
	}
	return out
}

// Session expands a class session into one single-choice group per occasion.
func Session(s model.Session) []interval.Group {
	occasions := Occasions(s.Repeats)
	groups := make([]interval.Group, 0, len(occasions))
	for _, offset := range occasions {
		begin := offset + s.BeginSecs
		groups = append(groups, interval.Group{{Begin: begin, End: begin + s.DurationSecs}})
	}
	return groups
}

// Block expands a block into one group per occasion. Each group holds every
// placement of DurationSecs inside the window at one-second resolution, the
// earliest first.
func Block(b model.Block) []interval.Group {
	occasions := Occasions(b.Repeats)
	latest := b.EndSecs - b.DurationSecs
	groups := make([]interval.Group, 0, len(occasions))
	for _, offset := range occasions {
		var group interval.Group
		if latest >= b.BeginSecs {
			group = make(interval.Group, 0, latest-b.BeginSecs+1)
		}
		for pos := b.BeginSecs; pos <= latest; pos++ {
			begin := offset + pos
			group = append(group, interval.Interval{Begin: begin, End: begin + b.DurationSecs})
		}
		groups = append(groups, group)
	}
	return groups
}

// Blocks concatenates the groups of all blocks.
func Blocks(blocks []model.Block) []interval.Group {
	var groups []interval.Group
	for _, b := range blocks {
		groups = append(groups, Block(b)...)
	}
	return groups
}

// Option concatenates the groups of all sessions of an option. Placing the
// option means placing every group.
func Option(o model.Option) []interval.Group {
	var groups []interval.Group
	for _, s := range o.Sessions {
		groups = append(groups, Session(s)...)
	}
	return groups
}
