package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order when parsing timestamps from CSV cells.
var timeLayouts = []string{ //nolint:gochecknoglobals // parse table
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// columns maps header names to indexes. Aliases resolve to the first header present.
type columns map[string]int

func newColumns(header []string) columns {
	c := make(columns, len(header))
	for i, h := range header {
		c[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return c
}

func (c columns) index(names ...string) int {
	for _, n := range names {
		if i, ok := c[n]; ok {
			return i
		}
	}
	return -1
}

func (c columns) require(names ...string) (int, error) {
	if i := c.index(names...); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, names[0])
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// optTime parses an optional timestamp cell. Empty cells and NaN markers yield nil.
func optTime(s string, loc *time.Location) (*time.Time, error) {
	if isNull(s) {
		return nil, nil
	}
	t, err := parseTime(s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optFloat(s string) (*float64, error) {
	if isNull(s) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func isNull(s string) bool {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "nat":
		return true
	}
	return false
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'g', -1, 64)
}
