// Package window tracks when the current accounting period began and decides
// whether an exhausted period has gone stale.
package window

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/router-for-me/RepScan/internal/scanerr"
	"github.com/router-for-me/RepScan/internal/settings"
	"github.com/router-for-me/RepScan/internal/store"
)

// DefaultWindowFile is the window record name used by earlier releases.
const DefaultWindowFile = settings.DefaultWindowFile

var header = []string{"Month", "Day", "Hour"}

// Record is the moment an accounting period began, at hour resolution.
type Record struct {
	Month int
	Day   int
	Hour  int
}

// FromTime returns the record for t in t's location.
func FromTime(t time.Time) Record {
	return Record{Month: int(t.Month()), Day: t.Day(), Hour: t.Hour()}
}

// Valid reports whether every field is in range.
func (r Record) Valid() bool {
	return r.Month >= 1 && r.Month <= 12 &&
		r.Day >= 1 && r.Day <= 31 &&
		r.Hour >= 0 && r.Hour <= 23
}

func (r Record) String() string {
	return fmt.Sprintf("%02d-%02d %02d:00", r.Month, r.Day, r.Hour)
}

// Tracker persists the period start as a one-row CSV file with a header.
type Tracker struct {
	fs   billy.Filesystem
	path string
}

// NewTracker constructs a Tracker for path inside fsys.
func NewTracker(fsys billy.Filesystem, path string) *Tracker {
	if path == "" {
		path = DefaultWindowFile
	}
	return &Tracker{fs: fsys, path: path}
}

// Path returns the window record location.
func (t *Tracker) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// Load returns the stored record. ok is false when no record exists.
func (t *Tracker) Load() (rec Record, ok bool, err error) {
	if t == nil || t.fs == nil {
		return Record{}, false, scanerr.Persistence("load window", "", fmt.Errorf("window tracker: not initialized"))
	}
	exists, errExists := store.Exists(t.fs, t.path)
	if errExists != nil {
		return Record{}, false, scanerr.Persistence("load window", t.path, errExists)
	}
	if !exists {
		return Record{}, false, nil
	}
	data, errRead := util.ReadFile(t.fs, t.path)
	if errRead != nil {
		return Record{}, false, scanerr.Persistence("load window", t.path, errRead)
	}
	rec, errParse := parse(data)
	if errParse != nil {
		return Record{}, false, scanerr.Corrupt("load window", t.path, errParse)
	}
	return rec, true, nil
}

// Save writes rec in one atomic replace.
func (t *Tracker) Save(rec Record) error {
	if t == nil || t.fs == nil {
		return scanerr.Persistence("save window", "", fmt.Errorf("window tracker: not initialized"))
	}
	if !rec.Valid() {
		return scanerr.Persistence("save window", t.path, fmt.Errorf("window tracker: invalid record %+v", rec))
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	_ = w.Write([]string{strconv.Itoa(rec.Month), strconv.Itoa(rec.Day), strconv.Itoa(rec.Hour)})
	w.Flush()
	if errFlush := w.Error(); errFlush != nil {
		return scanerr.Persistence("save window", t.path, errFlush)
	}
	if errWrite := store.WriteFileAtomic(t.fs, t.path, buf.Bytes()); errWrite != nil {
		return scanerr.Persistence("save window", t.path, errWrite)
	}
	return nil
}

// Clear deletes the record; a missing record is not an error.
func (t *Tracker) Clear() error {
	if t == nil || t.fs == nil {
		return scanerr.Persistence("clear window", "", fmt.Errorf("window tracker: not initialized"))
	}
	if errRemove := store.RemoveIfExists(t.fs, t.path); errRemove != nil {
		return scanerr.Persistence("clear window", t.path, errRemove)
	}
	return nil
}

// parse skips blank rows and a leading header row, then reads the first data
// row. Files written without a header are accepted as well.
func parse(data []byte) (Record, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, errRead := r.ReadAll()
	if errRead != nil {
		return Record{}, errRead
	}

	first := true
	for _, row := range rows {
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if first {
			first = false
			if !numericRow(row) {
				continue
			}
		}
		if len(row) < 3 {
			return Record{}, fmt.Errorf("expected 3 fields, got %d", len(row))
		}
		var fields [3]int
		for i := range fields {
			v, errAtoi := strconv.Atoi(strings.TrimSpace(row[i]))
			if errAtoi != nil {
				return Record{}, fmt.Errorf("%s: %w", header[i], errAtoi)
			}
			fields[i] = v
		}
		rec := Record{Month: fields[0], Day: fields[1], Hour: fields[2]}
		if !rec.Valid() {
			return Record{}, fmt.Errorf("out of range record %+v", rec)
		}
		return rec, nil
	}
	return Record{}, errors.New("no data row")
}

// numericRow reports whether every field of row is an integer.
func numericRow(row []string) bool {
	for _, field := range row {
		if _, errAtoi := strconv.Atoi(strings.TrimSpace(field)); errAtoi != nil {
			return false
		}
	}
	return true
}
