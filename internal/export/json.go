// Package export renders a found timetable for people and calendar apps.
package export

import (
	"encoding/json"
	"io"

	"modschedule/internal/model"
)

// WriteJSON writes the assignment as an indented JSON object keyed by course
// code. Keys come out sorted.
func WriteJSON(w io.Writer, a model.Assignment) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}
