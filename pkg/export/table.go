// Package export renders tabular reports for download.
package export

import (
	"errors"
	"time"
)

// ErrNoColumns is returned when a table defines no columns.
var ErrNoColumns = errors.New("export requires at least one column")

// Column describes one report column. Width is in millimetres and only used by PDF output.
type Column struct {
	Key   string
	Label string
	Width float64
}

// Table is renderer-agnostic report content.
type Table struct {
	Title       string
	Columns     []Column
	Rows        []map[string]string
	GeneratedAt time.Time
}

func (t Table) labels() []string {
	labels := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		labels[i] = col.Label
		if labels[i] == "" {
			labels[i] = col.Key
		}
	}
	return labels
}
