// Package signs maps remote model sign ids to their Arabic names.
package signs

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
)

// Unknown is returned for ids missing from the table.
const Unknown = "Unknown"

type row struct {
	SignID string `csv:"SignID"`
	Arabic string `csv:"Sign-Arabic"`
}

// Table is a SignID to Sign-Arabic lookup. Other CSV columns are ignored.
type Table struct {
	byID map[int]string
}

// Load reads the table from a CSV file.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sign table: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the table from CSV with at least the SignID and Sign-Arabic
// columns. The first row for an id wins.
func Parse(r io.Reader) (*Table, error) {
	var rows []row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("parse sign table: %w", err)
	}

	t := &Table{byID: make(map[int]string, len(rows))}
	for _, r := range rows {
		id, ok := parseID(r.SignID)
		if !ok {
			continue
		}
		if _, dup := t.byID[id]; !dup {
			t.byID[id] = r.Arabic
		}
	}
	return t, nil
}

// Len returns the number of distinct ids.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byID)
}

// Lookup returns the Arabic name of a predicted sign id. Non-integer ids,
// unknown ids and a nil table all give Unknown.
func (t *Table) Lookup(sign string) string {
	if t == nil {
		return Unknown
	}
	id, err := strconv.Atoi(strings.TrimSpace(sign))
	if err != nil {
		return Unknown
	}
	if name, ok := t.byID[id]; ok {
		return name
	}
	return Unknown
}

// parseID accepts "3" and the "3.0" pandas writes for integral floats.
func parseID(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if id, err := strconv.Atoi(s); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
