// Package scan runs a quota-tracked lookup session over a directory.
package scan

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/RepScan/internal/fingerprint"
	"github.com/router-for-me/RepScan/internal/lookup"
	"github.com/router-for-me/RepScan/internal/ratelimit"
	"github.com/router-for-me/RepScan/internal/report"
	"github.com/router-for-me/RepScan/internal/scanerr"
	"github.com/router-for-me/RepScan/internal/store"
	"github.com/router-for-me/RepScan/internal/window"
)

// Options wires an Engine.
type Options struct {
	Quota  *store.QuotaStore
	Window *window.Tracker

	ScanFS  billy.Filesystem
	ScanDir string
	// SkipNames lists entry names that are never scanned.
	SkipNames []string

	Lookup lookup.Client

	ReportFS  billy.Filesystem
	ReportDir string

	Limits   ratelimit.Settings
	Recorder Recorder
	Progress ProgressFunc

	Now   func() time.Time
	Sleep ratelimit.SleepFunc
}

// Engine orchestrates one scan session per Run call.
type Engine struct {
	opts Options
	skip map[string]struct{}
}

// session is the transient per-run state.
type session struct {
	id         string
	start      time.Time
	startCount int
	count      int
	hadWindow  bool
	rolledOver bool
	tasks      []Task
	scanned    int
	limiter    *ratelimit.Limiter
	writer     *report.Writer
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Quota == nil {
		return nil, fmt.Errorf("scan: quota store is required")
	}
	if opts.Window == nil {
		return nil, fmt.Errorf("scan: window tracker is required")
	}
	if opts.ScanFS == nil {
		return nil, fmt.Errorf("scan: scan filesystem is required")
	}
	if opts.Lookup == nil {
		return nil, fmt.Errorf("scan: lookup client is required")
	}
	if opts.ReportFS == nil {
		return nil, fmt.Errorf("scan: report filesystem is required")
	}
	if strings.TrimSpace(opts.ScanDir) == "" {
		opts.ScanDir = "."
	}
	if strings.TrimSpace(opts.ReportDir) == "" {
		opts.ReportDir = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Limits = opts.Limits.Normalize()

	skip := make(map[string]struct{}, len(opts.SkipNames))
	for _, name := range opts.SkipNames {
		if name = strings.TrimSpace(name); name != "" {
			skip[name] = struct{}{}
		}
	}
	return &Engine{opts: opts, skip: skip}, nil
}

// Run executes Init, Scanning and Persisted. The returned error is the fatal
// failure of the session, reported after the count has been persisted.
// Quota exhaustion and cancellation of ctx are not errors; Outcome.State
// tells them apart.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	if e == nil {
		return Outcome{}, fmt.Errorf("scan: engine not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s, errInit := e.init()
	if errInit != nil {
		return Outcome{State: StateInit, Err: errInit}, errInit
	}
	e.begin(ctx, s)

	state, errScan := e.scan(ctx, s)
	outcome := Outcome{
		SessionID:  s.id,
		StartedAt:  s.start,
		State:      state,
		StartCount: s.startCount,
		Scanned:    s.scanned,
		Remaining:  len(s.tasks) - s.scanned,
		Pauses:     s.limiter.Pauses(),
		RolledOver: s.rolledOver,
		Report:     s.writer.Path(),
		Err:        errScan,
	}

	saved, errPersist := e.persist(s)
	outcome.Count = s.count
	outcome.WindowSaved = saved
	e.finish(ctx, outcome)

	if errScan != nil {
		if errPersist != nil {
			log.WithError(errPersist).Error("scan: persist after failure")
		}
		return outcome, errScan
	}
	if errPersist != nil {
		outcome.Err = errPersist
		return outcome, errPersist
	}
	return outcome, nil
}

func (e *Engine) init() (*session, error) {
	start := e.opts.Now()
	s := &session{id: uuid.NewString(), start: start}

	count, errLoad := e.opts.Quota.Load()
	if errLoad != nil {
		return nil, errLoad
	}
	prev, hasPrev, errWindow := e.opts.Window.Load()
	if errWindow != nil {
		return nil, errWindow
	}

	if hasPrev && window.ShouldRollover(prev, window.FromTime(start), count, e.opts.Limits.PeriodCap) {
		if errClear := e.opts.Quota.Clear(); errClear != nil {
			return nil, errClear
		}
		if errClear := e.opts.Window.Clear(); errClear != nil {
			return nil, errClear
		}
		log.Infof("scan: accounting period started %s is stale, counters reset", prev)
		count = 0
		hasPrev = false
		s.rolledOver = true
	}
	s.count = count
	s.startCount = count
	s.hadWindow = hasPrev

	tasks, errList := e.enumerate()
	if errList != nil {
		return nil, errList
	}
	s.tasks = tasks
	s.limiter = ratelimit.NewLimiter(e.opts.Limits, count, e.opts.Sleep)
	s.limiter.OnPause(func(d time.Duration) {
		e.emit(Event{Kind: EventPause, Pause: d, Count: s.count})
	})
	s.writer = report.NewWriter(e.opts.ReportFS, path.Join(e.opts.ReportDir, report.Name(start)))

	if s.rolledOver {
		e.emit(Event{Kind: EventRollover, Count: 0})
	}
	return s, nil
}

// enumerate lists regular files of the scan directory sorted by name.
func (e *Engine) enumerate() ([]Task, error) {
	entries, errRead := e.opts.ScanFS.ReadDir(e.opts.ScanDir)
	if errRead != nil {
		return nil, scanerr.IO("read scan directory", e.opts.ScanDir, errRead)
	}
	tasks := make([]Task, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.IsDir() {
			continue
		}
		if _, skip := e.skip[entry.Name()]; skip {
			continue
		}
		tasks = append(tasks, Task{Name: entry.Name(), Path: path.Join(e.opts.ScanDir, entry.Name())})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

// scan processes tasks in order and returns the terminal state.
func (e *Engine) scan(ctx context.Context, s *session) (State, error) {
	for _, task := range s.tasks {
		if ctx.Err() != nil {
			return e.interrupted(s), nil
		}

		decision, errAdmit := s.limiter.Admit(ctx)
		if errAdmit != nil {
			if ctx.Err() != nil {
				return e.interrupted(s), nil
			}
			return StateFailed, errAdmit
		}
		if decision == ratelimit.DecisionExhausted {
			e.emit(Event{Kind: EventExhausted, Count: s.count, Remaining: len(s.tasks) - s.scanned})
			return StateExhausted, nil
		}

		result, errStep := e.step(ctx, s, task)
		if errStep != nil {
			if errors.Is(errStep, context.Canceled) || errors.Is(errStep, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return e.interrupted(s), nil
				}
			}
			return StateFailed, errStep
		}
		s.scanned++
		if e.opts.Recorder != nil {
			if errRecord := e.opts.Recorder.RecordScan(context.WithoutCancel(ctx), s.id, result); errRecord != nil {
				log.WithError(errRecord).Warn("scan: record scan failed")
			}
		}
		e.emit(Event{
			Kind:        EventScanned,
			Name:        result.Name,
			Fingerprint: result.Fingerprint,
			Summary:     result.Summary,
			Count:       s.count,
		})
	}
	return StateCompleted, nil
}

// step fingerprints, looks up and reports a single task. The count is
// consumed as soon as a report arrives.
func (e *Engine) step(ctx context.Context, s *session, task Task) (Result, error) {
	fp, errHash := fingerprint.File(e.opts.ScanFS, task.Path)
	if errHash != nil {
		return Result{}, scanerr.IO("read scan file", task.Path, errHash)
	}

	resp, errLookup := e.opts.Lookup.Lookup(ctx, fp)
	if errLookup != nil {
		return Result{}, errLookup
	}
	if errResp := resp.Err(); errResp != nil {
		log.WithFields(log.Fields{
			"file":   task.Name,
			"status": resp.StatusCode,
		}).Errorf("scan: lookup returned %s", resp.Outcome)
		return Result{}, errResp
	}

	s.limiter.Record()
	s.count++

	if errWrite := s.writer.Append(task.Name, resp.Result); errWrite != nil {
		return Result{}, errWrite
	}
	return Result{
		Name:        task.Name,
		Fingerprint: fp,
		Summary:     lookup.Summarize(resp.Result),
		Raw:         resp.Result,
		Count:       s.count,
		ScannedAt:   e.opts.Now(),
	}, nil
}

func (e *Engine) interrupted(s *session) State {
	log.Warnf("scan: interrupted with %d of %d files processed", s.scanned, len(s.tasks))
	e.emit(Event{Kind: EventInterrupted, Count: s.count, Remaining: len(s.tasks) - s.scanned})
	return StateInterrupted
}

// persist saves the count unconditionally and the window when this session
// opened the accounting period. It reports whether the window was written.
func (e *Engine) persist(s *session) (bool, error) {
	if errSave := e.opts.Quota.Save(s.count); errSave != nil {
		return false, errSave
	}
	if s.hadWindow || s.count == 0 {
		return false, nil
	}
	startRec := window.FromTime(s.start)
	if !window.Recent(startRec, window.FromTime(e.opts.Now())) {
		log.Infof("scan: period starting %s already elapsed, window left for next run", startRec)
		return false, nil
	}
	if errSave := e.opts.Window.Save(startRec); errSave != nil {
		return false, errSave
	}
	return true, nil
}

func (e *Engine) begin(ctx context.Context, s *session) {
	if e.opts.Recorder == nil {
		return
	}
	info := SessionInfo{
		ID:         s.id,
		StartedAt:  s.start,
		StartCount: s.startCount,
		Files:      len(s.tasks),
		RolledOver: s.rolledOver,
	}
	if errBegin := e.opts.Recorder.BeginSession(context.WithoutCancel(ctx), info); errBegin != nil {
		log.WithError(errBegin).Warn("scan: record session start failed")
	}
}

func (e *Engine) finish(ctx context.Context, outcome Outcome) {
	if e.opts.Recorder == nil {
		return
	}
	if errFinish := e.opts.Recorder.FinishSession(context.WithoutCancel(ctx), outcome); errFinish != nil {
		log.WithError(errFinish).Warn("scan: record session end failed")
	}
}

func (e *Engine) emit(ev Event) {
	if e.opts.Progress != nil {
		e.opts.Progress(ev)
	}
}
