// Package report appends human-readable lookup results to the session report.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/tidwall/pretty"

	"github.com/router-for-me/RepScan/internal/scanerr"
)

// headerPadding is the star count added to the name length in the separator line.
const headerPadding = 9

var prettyOptions = &pretty.Options{
	Width:    0,
	Prefix:   "",
	Indent:   "    ",
	SortKeys: false,
}

// Name returns the report file name for a session started at t.
func Name(t time.Time) string {
	return fmt.Sprintf("VirusTotalReport_%d-%d-%d.txt", int(t.Month()), t.Day(), t.Hour())
}

// Writer appends records to a single report file.
type Writer struct {
	fs   billy.Filesystem
	path string
}

// NewWriter returns a Writer appending to name inside fsys.
func NewWriter(fsys billy.Filesystem, name string) *Writer {
	return &Writer{fs: fsys, path: name}
}

// Path returns the report file path.
func (w *Writer) Path() string {
	if w == nil {
		return ""
	}
	return w.path
}

// Append writes one record for name. The file is opened and closed per call.
func (w *Writer) Append(name string, result []byte) (err error) {
	if w == nil || w.fs == nil {
		return fmt.Errorf("report: writer not initialized")
	}
	record := Format(name, result)

	if dir := path.Dir(w.path); dir != "." && dir != "/" && dir != "" {
		if errMkdir := w.fs.MkdirAll(dir, 0o755); errMkdir != nil {
			return scanerr.IO("create report directory", dir, errMkdir)
		}
	}
	f, errOpen := w.fs.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if errOpen != nil {
		return scanerr.IO("open report", w.path, errOpen)
	}
	defer func() {
		if errClose := f.Close(); errClose != nil && err == nil {
			err = scanerr.IO("close report", w.path, errClose)
		}
	}()
	if _, errWrite := f.Write(record); errWrite != nil {
		return scanerr.IO("write report", w.path, errWrite)
	}
	return nil
}

// Format renders a single report record.
func Format(name string, result []byte) []byte {
	body := bytes.TrimRight(pretty.PrettyOptions(result, prettyOptions), "\n")

	var buf bytes.Buffer
	buf.Grow(len(name) + len(body) + 32)
	buf.WriteString("File - ")
	buf.WriteString(name)
	buf.WriteString(":\n")
	buf.WriteString(strings.Repeat("*", headerPadding+utf8.RuneCountInString(name)))
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteString("\n\n")
	return buf.Bytes()
}
