package export

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "modschedule/internal/log"
	"modschedule/internal/model"
)

var now = time.Now

// Calendar maps teaching weeks onto dates.
type Calendar struct {
	// TermStart is any day in teaching week 1.
	TermStart time.Time
	// RecessAfterWeek is the last teaching week before the recess week.
	// Zero means the term has no recess week.
	RecessAfterWeek int
	// Location is the timezone classes are held in. Nil means TermStart's.
	Location *time.Location
}

func (c Calendar) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return c.TermStart.Location()
}

// firstMonday returns midnight of the Monday of teaching week 1.
func (c Calendar) firstMonday() time.Time {
	t := c.TermStart.In(c.location())
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, c.location())
}

// WeekStart returns midnight of the Monday of teachingWeek.
func (c Calendar) WeekStart(teachingWeek int) (time.Time, error) {
	if teachingWeek < 1 {
		return time.Time{}, fmt.Errorf("calendar: teaching week %d < 1", teachingWeek)
	}
	starts, err := c.WeekStarts(teachingWeek)
	if err != nil {
		return time.Time{}, err
	}
	return starts[teachingWeek-1], nil
}

// WeekStarts returns the Monday of every teaching week from 1 to lastWeek;
// index i holds teaching week i+1. The recess week is skipped.
func (c Calendar) WeekStarts(lastWeek int) ([]time.Time, error) {
	if c.TermStart.IsZero() {
		return nil, errors.New("calendar: term start not set")
	}
	if lastWeek < 1 {
		return nil, nil
	}

	count := lastWeek
	if c.RecessAfterWeek > 0 && lastWeek > c.RecessAfterWeek {
		count++
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: c.firstMonday(),
		Count:   count,
	})
	if err != nil {
		return nil, fmt.Errorf("calendar: weekly rule: %w", err)
	}
	weeks := r.All()
	if len(weeks) < count {
		return nil, fmt.Errorf("calendar: teaching week %d not generated", lastWeek)
	}

	starts := make([]time.Time, 0, lastWeek)
	for i, w := range weeks {
		if c.RecessAfterWeek > 0 && i == c.RecessAfterWeek {
			continue
		}
		starts = append(starts, w)
	}
	return starts[:lastWeek], nil
}

// At returns the start of a class held secs after midnight on weekday
// (1 = Monday) of teachingWeek.
func (c Calendar) At(teachingWeek, weekday int, secs int64) (time.Time, error) {
	monday, err := c.WeekStart(teachingWeek)
	if err != nil {
		return time.Time{}, err
	}
	return c.on(monday, weekday, secs), nil
}

func (c Calendar) on(monday time.Time, weekday int, secs int64) time.Time {
	day := time.Date(monday.Year(), monday.Month(), monday.Day()+weekday-1, 0, 0, 0, 0, c.location())
	return day.Add(time.Duration(secs) * time.Second)
}

// WriteICS writes one VEVENT per occasion of every class in the chosen
// indexes. Courses are written in code order.
func WriteICS(w io.Writer, c Calendar, courses []model.Course, a model.Assignment) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//modschedule//timetable//EN")
	cal.SetXWRCalName("Timetable")

	sorted := slices.Clone(courses)
	slices.SortFunc(sorted, func(x, y model.Course) int {
		switch {
		case x.Code < y.Code:
			return -1
		case x.Code > y.Code:
			return 1
		}
		return 0
	})

	type chosen struct {
		code string
		opt  model.Option
	}
	picks := make([]chosen, 0, len(sorted))
	lastWeek := 0
	for _, course := range sorted {
		id, ok := a[course.Code]
		if !ok {
			return fmt.Errorf("export: no index chosen for %s", course.Code)
		}
		opt, ok := course.Option(id)
		if !ok {
			return fmt.Errorf("export: %s has no index %s", course.Code, id)
		}
		for _, s := range opt.Sessions {
			if len(s.Repeats.TeachingWeeks) > 0 {
				lastWeek = max(lastWeek, slices.Max(s.Repeats.TeachingWeeks))
			}
		}
		picks = append(picks, chosen{code: course.Code, opt: opt})
	}

	mondays, err := c.WeekStarts(lastWeek)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	stamp := now().UTC()
	events := 0
	for _, p := range picks {
		n := 0
		for _, s := range p.opt.Sessions {
			for _, week := range s.Repeats.TeachingWeeks {
				if week < 1 {
					return fmt.Errorf("export: %s index %s: teaching week %d < 1", p.code, p.opt.ID, week)
				}
				for _, day := range s.Repeats.Weekdays {
					start := c.on(mondays[week-1], day, s.BeginSecs)
					n++
					ev := cal.AddEvent(fmt.Sprintf("%s-%s-%d@modschedule", p.code, p.opt.ID, n))
					ev.SetDtStampTime(stamp)
					ev.SetStartAt(start)
					ev.SetEndAt(start.Add(time.Duration(s.DurationSecs) * time.Second))
					ev.SetSummary(fmt.Sprintf("%s %s %s", p.code, s.Type, s.Group))
					if s.Venue != "" {
						ev.SetLocation(s.Venue)
					}
					ev.SetDescription(fmt.Sprintf("Index %s, teaching week %d", p.opt.ID, week))
				}
			}
		}
		events += n
	}

	appLog.Info("ics export", "courses", len(sorted), "events", events)
	return cal.SerializeTo(w)
}
