package scan

import (
	"context"
	"time"

	"github.com/router-for-me/RepScan/internal/lookup"
)

// State is a scan session state.
type State int

const (
	StateInit State = iota
	StateScanning
	StateExhausted
	StateInterrupted
	StateCompleted
	StateFailed
	StatePersisted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateScanning:
		return "scanning"
	case StateExhausted:
		return "exhausted"
	case StateInterrupted:
		return "interrupted"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StatePersisted:
		return "persisted"
	default:
		return "unknown"
	}
}

// EventKind tags a progress Event.
type EventKind int

const (
	EventRollover EventKind = iota
	EventScanned
	EventPause
	EventExhausted
	EventInterrupted
)

// Event is passed to the progress callback once per file outcome and per
// session-level transition.
type Event struct {
	Kind EventKind
	// Name is the scanned file, set for EventScanned.
	Name        string
	Fingerprint string
	Summary     lookup.Summary
	// Count is the period count after the event.
	Count int
	// Remaining is the number of files not processed, set for EventExhausted
	// and EventInterrupted.
	Remaining int
	Pause     time.Duration
}

// ProgressFunc receives progress events. It runs on the scan goroutine.
type ProgressFunc func(Event)

// Task is one file to look up.
type Task struct {
	Name string
	Path string
}

// SessionInfo describes a session at the end of Init.
type SessionInfo struct {
	ID         string
	StartedAt  time.Time
	StartCount int
	Files      int
	RolledOver bool
}

// Result is a single successful lookup.
type Result struct {
	Name        string
	Fingerprint string
	Summary     lookup.Summary
	Raw         []byte
	Count       int
	ScannedAt   time.Time
}

// Outcome is what a finished session reports to its caller.
type Outcome struct {
	SessionID string
	StartedAt time.Time
	// State is the terminal scanning state the session ended in.
	State      State
	StartCount int
	Count      int
	Scanned    int
	Remaining  int
	Pauses     int
	RolledOver bool
	// WindowSaved is true when this session recorded the period start.
	WindowSaved bool
	Report      string
	Err         error
}

// Recorder receives a copy of the session history. Failures are logged and
// never change the outcome.
type Recorder interface {
	BeginSession(ctx context.Context, info SessionInfo) error
	RecordScan(ctx context.Context, sessionID string, result Result) error
	FinishSession(ctx context.Context, outcome Outcome) error
}
