package model

import (
	"errors"
	"fmt"
	"slices"
)

const (
	DaySecs  = 60 * 60 * 24
	WeekSecs = 7 * DaySecs
)

// Construction errors. They are raised when an entity is built or validated,
// before any search runs.
var (
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrInvalidSession    = errors.New("invalid session")
	ErrInvalidBlock      = errors.New("invalid block")
	ErrInvalidCourse     = errors.New("invalid course")
)

// IsInvalid reports whether err is, or wraps, a construction error.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidCourse) ||
		errors.Is(err, ErrInvalidBlock) ||
		errors.Is(err, ErrInvalidSession) ||
		errors.Is(err, ErrInvalidRecurrence)
}

// ClassType is the kind of a class session as published by the schedule site.
type ClassType string

const (
	ClassLecture  ClassType = "LEC/STUDIO"
	ClassTutorial ClassType = "TUT"
	ClassLab      ClassType = "LAB"
)

// Recurrence describes on which weekdays of which teaching weeks a timed
// event repeats.
type Recurrence struct {
	// Weekdays are ISO 8601 weekdays, 1 = Monday ... 7 = Sunday.
	Weekdays []int `json:"weekdays" yaml:"weekdays"`
	// TeachingWeeks are 1-indexed teaching week numbers.
	TeachingWeeks []int `json:"teaching_weeks" yaml:"teaching_weeks"`
}

// NewRecurrence builds a validated Recurrence. Both sets are sorted and
// de-duplicated so that expansion order is deterministic.
func NewRecurrence(weekdays, teachingWeeks []int) (Recurrence, error) {
	r := Recurrence{
		Weekdays:      normalizeSet(weekdays),
		TeachingWeeks: normalizeSet(teachingWeeks),
	}
	if err := r.Validate(); err != nil {
		return Recurrence{}, err
	}
	return r, nil
}

// Validate checks that both sets are non-empty and in range.
func (r Recurrence) Validate() error {
	if len(r.Weekdays) == 0 {
		return fmt.Errorf("%w: empty weekday set", ErrInvalidRecurrence)
	}
	if len(r.TeachingWeeks) == 0 {
		return fmt.Errorf("%w: empty teaching week set", ErrInvalidRecurrence)
	}
	for _, d := range r.Weekdays {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: weekday %d out of range 1..7", ErrInvalidRecurrence, d)
		}
	}
	for _, w := range r.TeachingWeeks {
		if w < 1 {
			return fmt.Errorf("%w: teaching week %d < 1", ErrInvalidRecurrence, w)
		}
	}
	return nil
}

// Session is one class of a course index: a timed event that repeats
// according to Repeats.
type Session struct {
	Type  ClassType `json:"type"`
	Group string    `json:"group"`
	Venue string    `json:"venue"`

	// BeginSecs is the number of seconds since midnight the class starts.
	BeginSecs int64 `json:"begin_secs"`
	// DurationSecs is the length of the class in seconds.
	DurationSecs int64      `json:"duration_secs"`
	Repeats      Recurrence `json:"repeats"`
}

// Validate checks the session invariants.
func (s Session) Validate() error {
	if s.BeginSecs < 0 || s.BeginSecs >= DaySecs {
		return fmt.Errorf("%w: begin %ds outside of day", ErrInvalidSession, s.BeginSecs)
	}
	if s.DurationSecs <= 0 {
		return fmt.Errorf("%w: non-positive duration %ds", ErrInvalidSession, s.DurationSecs)
	}
	if err := s.Repeats.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	return nil
}

// Block is a recurring window the user wants kept free. Only DurationSecs of
// it must stay unoccupied, anywhere between BeginSecs and EndSecs.
type Block struct {
	BeginSecs int64 `json:"begin_secs"`
	// EndSecs is exclusive.
	EndSecs      int64      `json:"end_secs"`
	DurationSecs int64      `json:"duration_secs"`
	Repeats      Recurrence `json:"repeats"`
}

// NewBlock builds a validated Block.
func NewBlock(beginSecs, endSecs, durationSecs int64, repeats Recurrence) (Block, error) {
	b := Block{
		BeginSecs:    beginSecs,
		EndSecs:      endSecs,
		DurationSecs: durationSecs,
		Repeats:      repeats,
	}
	if err := b.Validate(); err != nil {
		return Block{}, err
	}
	return b, nil
}

// Validate checks the block invariants. A duration that does not fit in the
// window is an error here, never at expansion time.
func (b Block) Validate() error {
	if b.BeginSecs < 0 || b.BeginSecs >= DaySecs {
		return fmt.Errorf("%w: begin %ds outside of day", ErrInvalidBlock, b.BeginSecs)
	}
	if b.EndSecs <= b.BeginSecs {
		return fmt.Errorf("%w: end %ds not after begin %ds", ErrInvalidBlock, b.EndSecs, b.BeginSecs)
	}
	if b.DurationSecs <= 0 {
		return fmt.Errorf("%w: non-positive duration %ds", ErrInvalidBlock, b.DurationSecs)
	}
	if b.DurationSecs > b.EndSecs-b.BeginSecs {
		return fmt.Errorf("%w: duration %ds does not fit within window of %ds",
			ErrInvalidBlock, b.DurationSecs, b.EndSecs-b.BeginSecs)
	}
	if err := b.Repeats.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}
	return nil
}

// Option is one index of a course. All of its sessions are taken together.
type Option struct {
	ID       string    `json:"index"`
	Sessions []Session `json:"classes"`
}

// Course is a module with mutually exclusive options.
type Course struct {
	Code    string   `json:"code"`
	Title   string   `json:"title,omitempty"`
	Options []Option `json:"indexes"`
}

// Validate checks that the course has at least one option, each with at least
// one valid session.
func (c Course) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("%w: empty course code", ErrInvalidCourse)
	}
	if len(c.Options) == 0 {
		return fmt.Errorf("%w: %s has no indexes", ErrInvalidCourse, c.Code)
	}
	for _, o := range c.Options {
		if len(o.Sessions) == 0 {
			return fmt.Errorf("%w: %s index %s has no classes", ErrInvalidCourse, c.Code, o.ID)
		}
		for _, s := range o.Sessions {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%w: %s index %s: %w", ErrInvalidCourse, c.Code, o.ID, err)
			}
		}
	}
	return nil
}

// Option returns the option with the given id.
func (c Course) Option(id string) (Option, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Assignment maps course codes to the chosen option id.
type Assignment map[string]string

// Clone returns a copy that does not alias a.
func (a Assignment) Clone() Assignment {
	out := make(Assignment, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func normalizeSet(xs []int) []int {
	out := slices.Clone(xs)
	slices.Sort(out)
	return slices.Compact(out)
}
