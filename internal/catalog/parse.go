// Package catalog retrieves course class schedules from the university's
// schedule site and turns them into model.Course values.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	appLog "modschedule/internal/log"
	"modschedule/internal/model"
)

// ErrNotAvailable is returned when the site has no class schedule for a course.
var ErrNotAvailable = errors.New("class schedule is not available")

const (
	unavailableMarker  = "Class schedule is not available."
	teachingWeekPrefix = "Teaching Wk"
)

// DefaultTeachingWeeks returns weeks 1 through 14.
func DefaultTeachingWeeks() []int {
	weeks := make([]int, 0, 14)
	for w := 1; w <= 14; w++ {
		weeks = append(weeks, w)
	}
	return weeks
}

// IsUnavailable reports whether body is the site's "no schedule" page.
func IsUnavailable(body []byte) bool {
	return bytes.Contains(body, []byte(unavailableMarker))
}

// ParseCourse parses a class schedule page. The page carries two tables: the
// first row of the first one holds code, title and AU; every row after the
// header of the second one is a class. The index cell is only filled on the
// first class of an index.
func ParseCourse(body []byte, defaultWeeks []int) (model.Course, error) {
	if len(body) == 0 {
		return model.Course{}, errors.New("empty class schedule body")
	}
	if IsUnavailable(body) {
		return model.Course{}, ErrNotAvailable
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return model.Course{}, err
	}

	tables := findAll(doc, atom.Table)
	if len(tables) != 2 {
		return model.Course{}, fmt.Errorf("expected 2 <table>s in class schedule, got %d", len(tables))
	}

	metaRows := findAll(tables[0], atom.Tr)
	if len(metaRows) == 0 {
		return model.Course{}, errors.New("course table has no rows")
	}
	meta := cells(metaRows[0])
	if len(meta) != 3 {
		return model.Course{}, fmt.Errorf("expected 3 cells in course row, got %d", len(meta))
	}

	course := model.Course{Code: meta[0], Title: meta[1]}

	var current *model.Option
	rows := findAll(tables[1], atom.Tr)
	// skip header row
	for i, row := range rows[min(1, len(rows)):] {
		fields := cells(row)
		if len(fields) < 7 {
			return model.Course{}, fmt.Errorf("row %d: expected 7 cells, got %d", i+2, len(fields))
		}
		if fields[0] != "" {
			course.Options = append(course.Options, model.Option{ID: fields[0]})
			current = &course.Options[len(course.Options)-1]
		}
		if current == nil {
			return model.Course{}, fmt.Errorf("row %d: class listed before any index", i+2)
		}

		if fields[3] == "" || fields[4] == "" {
			// Classes without a fixed slot (e.g. online) cannot clash.
			appLog.Debug("class without time slot skipped", "code", course.Code, "index", current.ID, "type", fields[1])
			continue
		}
		session, err := parseSession(fields, defaultWeeks)
		if err != nil {
			return model.Course{}, fmt.Errorf("%s index %s: %w", course.Code, current.ID, err)
		}
		current.Sessions = append(current.Sessions, session)
	}

	// Drop indexes left without any timed class.
	kept := course.Options[:0]
	for _, o := range course.Options {
		if len(o.Sessions) > 0 {
			kept = append(kept, o)
		}
	}
	course.Options = kept

	if err := course.Validate(); err != nil {
		return model.Course{}, err
	}
	return course, nil
}

// parseSession builds a session from [index, type, group, day, time, venue, remark].
func parseSession(fields []string, defaultWeeks []int) (model.Session, error) {
	weekday, err := ParseWeekday(fields[3])
	if err != nil {
		return model.Session{}, err
	}
	begin, duration, err := parseTimespan(fields[4])
	if err != nil {
		return model.Session{}, err
	}
	weeks, err := ParseTeachingWeeks(fields[6], defaultWeeks)
	if err != nil {
		return model.Session{}, err
	}
	repeats, err := model.NewRecurrence([]int{weekday}, weeks)
	if err != nil {
		return model.Session{}, err
	}
	s := model.Session{
		Type:         model.ClassType(fields[1]),
		Group:        fields[2],
		Venue:        fields[5],
		BeginSecs:    begin,
		DurationSecs: duration,
		Repeats:      repeats,
	}
	return s, s.Validate()
}

// ParseTeachingWeeks parses a remark such as "Teaching Wk2,5-8,13". A remark
// without the teaching week prefix means defaults. Each bound is read from its
// leading digits, so trailing notes like "Teaching Wk1-13 (Online)" parse.
func ParseTeachingWeeks(remark string, defaults []int) ([]int, error) {
	i := strings.Index(remark, teachingWeekPrefix)
	if i < 0 {
		return append([]int(nil), defaults...), nil
	}

	var weeks []int
	for _, span := range strings.Split(remark[i+len(teachingWeekPrefix):], ",") {
		span = strings.TrimSpace(span)
		if lo, hi, ok := strings.Cut(span, "-"); ok {
			begin, err := leadingInt(lo)
			if err != nil {
				return nil, fmt.Errorf("teaching week span %q: %w", span, err)
			}
			end, err := leadingInt(hi)
			if err != nil {
				return nil, fmt.Errorf("teaching week span %q: %w", span, err)
			}
			if end < begin {
				return nil, fmt.Errorf("teaching week span %q is reversed", span)
			}
			for w := begin; w <= end; w++ {
				weeks = append(weeks, w)
			}
			continue
		}
		w, err := leadingInt(span)
		if err != nil {
			return nil, fmt.Errorf("teaching week %q: %w", span, err)
		}
		weeks = append(weeks, w)
	}
	return weeks, nil
}

// leadingInt parses the run of digits at the start of s.
func leadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return 0, fmt.Errorf("no number in %q", s)
	}
	return strconv.Atoi(s[:n])
}

// NormalizeCodes upper-cases and trims course codes, dropping blanks and
// repeats while keeping the first-seen order.
func NormalizeCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

var weekdays = map[string]int{
	"MON": 1, "TUE": 2, "WED": 3, "THU": 4, "FRI": 5, "SAT": 6, "SUN": 7,
}

// ParseWeekday maps a three-letter day name (any case) to an ISO weekday.
func ParseWeekday(s string) (int, error) {
	d, ok := weekdays[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

// ParseClock parses "HHMM" into seconds since midnight.
func ParseClock(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return 0, fmt.Errorf("time %q is not HHMM", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("time %q is not HHMM", s)
	}
	h, m := n/100, n%100
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return int64(h*3600 + m*60), nil
}

func parseTimespan(s string) (begin, duration int64, err error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("timespan %q is not HHMM-HHMM", s)
	}
	if begin, err = ParseClock(lo); err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(hi)
	if err != nil {
		return 0, 0, err
	}
	if end <= begin {
		return 0, 0, fmt.Errorf("timespan %q ends before it begins", s)
	}
	return begin, end - begin, nil
}

func findAll(n *html.Node, a atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == a {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// cells returns the trimmed text of each td/th directly under row.
func cells(row *html.Node) []string {
	var out []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			out = append(out, strings.Join(strings.Fields(text(c)), " "))
		}
	}
	return out
}

func text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
