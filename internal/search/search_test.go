package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modschedule/internal/model"
)

const hour = 3600

func everyWeek(t *testing.T, weekdays ...int) model.Recurrence {
	t.Helper()
	var weeks []int
	for w := 1; w <= 14; w++ {
		weeks = append(weeks, w)
	}
	r, err := model.NewRecurrence(weekdays, weeks)
	require.NoError(t, err)
	return r
}

func session(t *testing.T, weekday int, beginHour, hours float64) model.Session {
	t.Helper()
	return model.Session{
		Type:         model.ClassLecture,
		BeginSecs:    int64(beginHour * hour),
		DurationSecs: int64(hours * hour),
		Repeats:      everyWeek(t, weekday),
	}
}

func option(id string, sessions ...model.Session) model.Option {
	return model.Option{ID: id, Sessions: sessions}
}

func seed(s int64) *int64 {
	return &s
}

func TestFindScheduleDisjointAlwaysSucceeds(t *testing.T) {
	var courses []model.Course
	for i := 0; i < 5; i++ {
		c := model.Course{Code: fmt.Sprintf("SC200%d", i)}
		for j := 0; j < 3; j++ {
			// Each course owns its own weekday, each index its own hour.
			c.Options = append(c.Options, option(fmt.Sprintf("%d%d", i, j), session(t, i+1, float64(8+2*j), 1.5)))
		}
		courses = append(courses, c)
	}

	for s := int64(0); s < 25; s++ {
		res, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(s)})
		require.NoError(t, err)
		require.True(t, ok, "seed %d", s)
		assert.Len(t, res.Assignment, len(courses))
		assert.Equal(t, s, res.Seed)
	}
}

func TestFindScheduleAllCombinationsClash(t *testing.T) {
	courses := []model.Course{
		{Code: "A", Options: []model.Option{
			option("a1", session(t, 1, 9, 2)),
			option("a2", session(t, 1, 10, 2)),
		}},
		{Code: "B", Options: []model.Option{
			option("b1", session(t, 1, 9.5, 2)),
		}},
	}
	for s := int64(0); s < 10; s++ {
		res, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(s)})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, res.Assignment)
		assert.Greater(t, res.Steps, 0)
	}
}

func TestFindScheduleDeterministicForSeed(t *testing.T) {
	var courses []model.Course
	for i := 0; i < 4; i++ {
		c := model.Course{Code: fmt.Sprintf("MH10%d", i)}
		for j := 0; j < 6; j++ {
			c.Options = append(c.Options, option(fmt.Sprintf("%d-%d", i, j), session(t, 1+j%5, float64(8+j), 1)))
		}
		courses = append(courses, c)
	}

	first, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(42)})
	require.NoError(t, err)
	require.True(t, ok)

	for range 5 {
		again, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(42)})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, first.Assignment, again.Assignment)
		assert.Equal(t, first.Steps, again.Steps)
	}
}

func TestFindScheduleBacktracksOutOfDeadEnd(t *testing.T) {
	courses := []model.Course{
		{Code: "X", Options: []model.Option{
			option("x1", session(t, 2, 9, 2)),
			option("x2", session(t, 2, 14, 2)),
		}},
		{Code: "Y", Options: []model.Option{
			option("y1", session(t, 2, 10, 1)),
		}},
	}
	for s := int64(0); s < 10; s++ {
		res, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(s)})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, model.Assignment{"X": "x2", "Y": "y1"}, res.Assignment)
	}
}

func TestFindScheduleRespectsFixedBlock(t *testing.T) {
	courses := []model.Course{
		{Code: "CC0007", Options: []model.Option{
			option("morning", session(t, 1, 9, 2)),
			option("evening", session(t, 1, 17, 2)),
		}},
	}
	block, err := model.NewBlock(17*hour, 19*hour, 2*hour, everyWeek(t, 1))
	require.NoError(t, err)

	for s := int64(0); s < 10; s++ {
		res, ok, err := FindSchedule(context.Background(), courses, []model.Block{block}, Options{Seed: seed(s)})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "morning", res.Assignment["CC0007"])
	}
}

func TestFindScheduleFlexibleBlock(t *testing.T) {
	// An hour has to stay free somewhere between 12:00 and 14:00.
	courses := []model.Course{
		{Code: "SC2005", Options: []model.Option{
			option("long", session(t, 3, 12, 1.5)),
			option("short", session(t, 3, 12, 1)),
		}},
	}
	block, err := model.NewBlock(12*hour, 14*hour, hour, everyWeek(t, 3))
	require.NoError(t, err)

	for s := int64(0); s < 10; s++ {
		res, ok, err := FindSchedule(context.Background(), courses, []model.Block{block}, Options{Seed: seed(s)})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "short", res.Assignment["SC2005"])
	}
}

func TestFindScheduleUnsatisfiableBlock(t *testing.T) {
	courses := []model.Course{
		{Code: "SC2006", Options: []model.Option{option("only", session(t, 4, 12, 2))}},
	}
	block, err := model.NewBlock(12*hour, 14*hour, hour, everyWeek(t, 4))
	require.NoError(t, err)

	_, ok, err := FindSchedule(context.Background(), courses, []model.Block{block}, Options{Seed: seed(1)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindScheduleRejectsInvalidInput(t *testing.T) {
	good := model.Course{Code: "A", Options: []model.Option{option("a1", session(t, 1, 9, 1))}}

	_, _, err := FindSchedule(context.Background(), []model.Course{{Code: "B"}}, nil, Options{})
	assert.ErrorIs(t, err, model.ErrInvalidCourse)

	_, _, err = FindSchedule(context.Background(), []model.Course{good, good}, nil, Options{})
	assert.ErrorIs(t, err, model.ErrInvalidCourse)

	bad := model.Block{BeginSecs: 0, EndSecs: 10, DurationSecs: 11, Repeats: everyWeek(t, 1)}
	_, _, err = FindSchedule(context.Background(), []model.Course{good}, []model.Block{bad}, Options{})
	assert.ErrorIs(t, err, model.ErrInvalidBlock)
}

func TestFindScheduleStepBudget(t *testing.T) {
	courses := []model.Course{
		{Code: "A", Options: []model.Option{
			option("a1", session(t, 1, 9, 2)),
			option("a2", session(t, 1, 9, 2)),
		}},
		{Code: "B", Options: []model.Option{option("b1", session(t, 1, 9, 2))}},
	}
	res, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(3), MaxSteps: 1})
	assert.ErrorIs(t, err, ErrStepBudget)
	assert.False(t, ok)
	assert.Equal(t, 1, res.Steps)
}

func TestFindScheduleCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	courses := []model.Course{{Code: "A", Options: []model.Option{option("a1", session(t, 1, 9, 1))}}}

	_, ok, err := FindSchedule(ctx, courses, nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
}

func TestFindScheduleNoCourses(t *testing.T) {
	res, ok, err := FindSchedule(context.Background(), nil, nil, Options{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, res.Assignment)
}

func TestFindScheduleDoesNotMutateInput(t *testing.T) {
	courses := []model.Course{
		{Code: "A", Options: []model.Option{option("a1", session(t, 1, 9, 1)), option("a2", session(t, 1, 11, 1))}},
		{Code: "B", Options: []model.Option{option("b1", session(t, 2, 9, 1)), option("b2", session(t, 2, 11, 1))}},
	}
	_, ok, err := FindSchedule(context.Background(), courses, nil, Options{Seed: seed(9)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", courses[0].Code)
	assert.Equal(t, "a1", courses[0].Options[0].ID)
	assert.Equal(t, "b2", courses[1].Options[1].ID)
}

func TestShuffledIsPermutation(t *testing.T) {
	r, _ := newRand(seed(5))
	in := []int{1, 2, 3, 4, 5, 6, 7, 8}
	out := shuffled(r, in)
	assert.ElementsMatch(t, in, out)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, in)

	r1, _ := newRand(seed(5))
	r2, _ := newRand(seed(5))
	assert.Equal(t, shuffled(r1, in), shuffled(r2, in))
}
