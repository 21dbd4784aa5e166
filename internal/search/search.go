// Package search finds a clash-free timetable: one index per course such that
// no two chosen classes overlap and every block keeps its free time.
//
// The search is a depth-first backtracking over courses. Course order and
// each course's index order are shuffled with a seeded generator, so a seed
// fully determines the result. The first timetable found is returned.
package search

import (
	"context"
	"errors"
	"fmt"

	"modschedule/internal/expand"
	"modschedule/internal/interval"
	appLog "modschedule/internal/log"
	"modschedule/internal/model"
)

// ErrStepBudget is returned when Options.MaxSteps placements were tried
// without reaching a conclusion.
var ErrStepBudget = errors.New("search: step budget exhausted")

// Options tunes a search.
type Options struct {
	// Seed fixes the exploration order. Nil draws a random seed.
	Seed *int64
	// MaxSteps bounds the number of index placements attempted. Zero means
	// unbounded.
	MaxSteps int
}

// Result describes a successful search.
type Result struct {
	Assignment model.Assignment
	// Seed is the seed actually used; passing it back replays the search.
	Seed int64
	// Steps is the number of index placements attempted.
	Steps int
}

type outcome int

const (
	notFound outcome = iota
	found
	halted
)

type candidate struct {
	index  string
	groups []interval.Group
}

type plan struct {
	code    string
	options []candidate
}

type searcher struct {
	ctx       context.Context
	plans     []plan
	blocks    []interval.Group
	committed *interval.Collection
	// trail holds the intervals committed at each decision level.
	trail      [][]interval.Interval
	assignment model.Assignment

	steps    int
	maxSteps int
	err      error
}

// FindSchedule searches for an assignment of one index per course that is
// free of clashes and leaves every block satisfiable.
//
// Invalid courses or blocks are reported as errors before the search starts.
// A search space without any valid timetable yields ok == false and a nil
// error. A non-nil error after validation means the search was halted by ctx
// or by the step budget.
func FindSchedule(ctx context.Context, courses []model.Course, blocks []model.Block, opts Options) (Result, bool, error) {
	if err := validate(courses, blocks); err != nil {
		return Result{}, false, err
	}

	r, seed := newRand(opts.Seed)
	s := &searcher{
		ctx:        ctx,
		blocks:     expand.Blocks(blocks),
		committed:  interval.New(),
		trail:      make([][]interval.Interval, 0, len(courses)),
		assignment: make(model.Assignment, len(courses)),
		maxSteps:   opts.MaxSteps,
	}
	for _, c := range shuffled(r, courses) {
		p := plan{code: c.Code, options: make([]candidate, 0, len(c.Options))}
		for _, o := range shuffled(r, c.Options) {
			p.options = append(p.options, candidate{index: o.ID, groups: expand.Option(o)})
		}
		s.plans = append(s.plans, p)
	}

	appLog.Info("search started",
		"courses", len(courses),
		"blocks", len(blocks),
		"block_groups", len(s.blocks),
		"seed", seed,
		"max_steps", opts.MaxSteps,
	)

	res := Result{Seed: seed}
	out := s.descend(0)
	res.Steps = s.steps

	switch out {
	case found:
		res.Assignment = s.assignment.Clone()
		appLog.Info("search found timetable", "seed", seed, "steps", s.steps)
		return res, true, nil
	case halted:
		appLog.Error("search halted", s.err, "seed", seed, "steps", s.steps)
		return res, false, s.err
	default:
		appLog.Info("search exhausted", "seed", seed, "steps", s.steps)
		return res, false, nil
	}
}

func validate(courses []model.Course, blocks []model.Block) error {
	seen := make(map[string]bool, len(courses))
	for _, c := range courses {
		if err := c.Validate(); err != nil {
			return err
		}
		if seen[c.Code] {
			return fmt.Errorf("%w: duplicate course %s", model.ErrInvalidCourse, c.Code)
		}
		seen[c.Code] = true
	}
	for i, b := range blocks {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("block %d: %w", i+1, err)
		}
	}
	return nil
}

// descend places the course at depth and everything after it.
func (s *searcher) descend(depth int) outcome {
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return halted
	}

	if depth == len(s.plans) {
		// Blocks are only probed, never committed.
		if _, err := s.committed.TryFit(s.blocks); err != nil {
			return s.conflictOrHalt(err, "block", "")
		}
		return found
	}

	p := s.plans[depth]
	for _, c := range p.options {
		if s.maxSteps > 0 && s.steps >= s.maxSteps {
			s.err = ErrStepBudget
			return halted
		}
		s.steps++

		picked, err := s.committed.TryFit(c.groups)
		if err != nil {
			if s.conflictOrHalt(err, p.code, c.index) == halted {
				return halted
			}
			continue
		}

		s.push(picked)
		s.assignment[p.code] = c.index
		appLog.Debug("index placed", "depth", depth, "course", p.code, "index", c.index, "intervals", len(picked))

		switch s.descend(depth + 1) {
		case found:
			return found
		case halted:
			return halted
		}

		s.pop()
		delete(s.assignment, p.code)
	}
	return notFound
}

func (s *searcher) conflictOrHalt(err error, course, index string) outcome {
	var conflict *interval.FitConflict
	if errors.As(err, &conflict) {
		appLog.Debug("placement conflict", "course", course, "index", index, "group", conflict.Group)
		return notFound
	}
	s.err = err
	return halted
}

func (s *searcher) push(picked []interval.Interval) {
	s.committed.Commit(picked)
	s.trail = append(s.trail, picked)
}

func (s *searcher) pop() {
	last := s.trail[len(s.trail)-1]
	s.trail = s.trail[:len(s.trail)-1]
	s.committed.ReleaseAll(last)
}
