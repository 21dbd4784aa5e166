// Package block reads time blocks from CSV.
//
// The first line is a header. Each following row is
//
//	begin,end,duration,weekday,teachingWeek
//
// begin and end are HHMM (end exclusive). duration is optional and given in
// seconds; it defaults to the whole window. weekday is an optional three
// letter day name and defaults to every day. teachingWeek is an optional week
// number and defaults to every default teaching week.
package block

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"modschedule/internal/catalog"
	appLog "modschedule/internal/log"
	"modschedule/internal/model"
)

const columns = 5

var allWeekdays = []int{1, 2, 3, 4, 5, 6, 7}

// Parse reads every block in r. All malformed rows are reported together.
func Parse(r io.Reader, defaultWeeks []int) ([]model.Block, error) {
	if len(defaultWeeks) == 0 {
		defaultWeeks = catalog.DefaultTeachingWeeks()
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		blocks []model.Block
		errs   error
		header = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read blocks: %w", err)
		}
		if header {
			header = false
			continue
		}
		if isBlank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		b, err := parseRow(rec, defaultWeeks)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		blocks = append(blocks, b)
	}
	if errs != nil {
		return nil, errs
	}
	appLog.Debug("blocks parsed", "count", len(blocks))
	return blocks, nil
}

// ParseString is Parse over an in-memory CSV document.
func ParseString(s string, defaultWeeks []int) ([]model.Block, error) {
	return Parse(strings.NewReader(s), defaultWeeks)
}

func parseRow(rec []string, defaultWeeks []int) (model.Block, error) {
	if len(rec) > columns {
		return model.Block{}, fmt.Errorf("%w: %d columns, want at most %d", model.ErrInvalidBlock, len(rec), columns)
	}
	fields := make([]string, columns)
	for i, f := range rec {
		fields[i] = strings.TrimSpace(f)
	}
	if fields[0] == "" || fields[1] == "" {
		return model.Block{}, fmt.Errorf("%w: begin and end are required", model.ErrInvalidBlock)
	}

	begin, err := catalog.ParseClock(fields[0])
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: begin: %w", model.ErrInvalidBlock, err)
	}
	end, err := catalog.ParseClock(fields[1])
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: end: %w", model.ErrInvalidBlock, err)
	}

	duration := end - begin
	if fields[2] != "" {
		if duration, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
			return model.Block{}, fmt.Errorf("%w: duration %q", model.ErrInvalidBlock, fields[2])
		}
	}

	weekdays := allWeekdays
	if fields[3] != "" {
		d, err := catalog.ParseWeekday(fields[3])
		if err != nil {
			return model.Block{}, fmt.Errorf("%w: %w", model.ErrInvalidBlock, err)
		}
		weekdays = []int{d}
	}

	weeks := defaultWeeks
	if fields[4] != "" {
		w, err := strconv.Atoi(fields[4])
		if err != nil {
			return model.Block{}, fmt.Errorf("%w: teaching week %q", model.ErrInvalidBlock, fields[4])
		}
		weeks = []int{w}
	}

	repeats, err := model.NewRecurrence(weekdays, weeks)
	if err != nil {
		return model.Block{}, fmt.Errorf("%w: %w", model.ErrInvalidBlock, err)
	}
	return model.NewBlock(begin, end, duration, repeats)
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
