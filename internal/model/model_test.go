package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecurrenceNormalizes(t *testing.T) {
	r, err := NewRecurrence([]int{4, 2, 4}, []int{5, 1, 3, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, r.Weekdays)
	assert.Equal(t, []int{1, 3, 5}, r.TeachingWeeks)
}

func TestNewRecurrenceRejectsEmptyAndOutOfRange(t *testing.T) {
	cases := []struct {
		name     string
		weekdays []int
		weeks    []int
	}{
		{"empty weekdays", nil, []int{1}},
		{"empty weeks", []int{1}, nil},
		{"weekday zero", []int{0}, []int{1}},
		{"weekday eight", []int{8}, []int{1}},
		{"week zero", []int{1}, []int{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRecurrence(tc.weekdays, tc.weeks)
			assert.ErrorIs(t, err, ErrInvalidRecurrence)
		})
	}
}

func TestNewBlockDurationMustFitWindow(t *testing.T) {
	rep, err := NewRecurrence([]int{1}, []int{3})
	require.NoError(t, err)

	b, err := NewBlock(61200, 68400, 3000, rep)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), b.DurationSecs)

	_, err = NewBlock(61200, 68400, 7201, rep)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	_, err = NewBlock(61200, 61200, 1, rep)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	_, err = NewBlock(0, 10, 5, Recurrence{})
	assert.ErrorIs(t, err, ErrInvalidBlock)
	assert.ErrorIs(t, err, ErrInvalidRecurrence)
}

func TestCourseValidate(t *testing.T) {
	rep, err := NewRecurrence([]int{1}, []int{1})
	require.NoError(t, err)
	session := Session{Type: ClassLecture, BeginSecs: 3600, DurationSecs: 3600, Repeats: rep}

	ok := Course{Code: "SC2002", Options: []Option{{ID: "10185", Sessions: []Session{session}}}}
	assert.NoError(t, ok.Validate())

	noOptions := Course{Code: "SC2002"}
	assert.ErrorIs(t, noOptions.Validate(), ErrInvalidCourse)

	noSessions := Course{Code: "SC2002", Options: []Option{{ID: "10185"}}}
	assert.ErrorIs(t, noSessions.Validate(), ErrInvalidCourse)

	bad := session
	bad.DurationSecs = 0
	badSession := Course{Code: "SC2002", Options: []Option{{ID: "10185", Sessions: []Session{bad}}}}
	err = badSession.Validate()
	assert.ErrorIs(t, err, ErrInvalidCourse)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestCourseOptionLookup(t *testing.T) {
	c := Course{Code: "CC0007", Options: []Option{{ID: "83000"}, {ID: "83001"}}}
	o, ok := c.Option("83001")
	require.True(t, ok)
	assert.Equal(t, "83001", o.ID)

	_, ok = c.Option("99999")
	assert.False(t, ok)
}

func TestAssignmentClone(t *testing.T) {
	a := Assignment{"SC2002": "10185"}
	b := a.Clone()
	b["SC2002"] = "10186"
	assert.Equal(t, "10185", a["SC2002"])
}

func TestIsInvalid(t *testing.T) {
	_, err := NewRecurrence(nil, []int{1})
	assert.True(t, IsInvalid(err))
	assert.True(t, IsInvalid(fmt.Errorf("parse SC2002: %w", Course{Code: "SC2002"}.Validate())))
	assert.False(t, IsInvalid(errors.New("connection refused")))
	assert.False(t, IsInvalid(nil))
}
