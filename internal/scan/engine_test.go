package scan

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/router-for-me/RepScan/internal/fingerprint"
	"github.com/router-for-me/RepScan/internal/lookup"
	"github.com/router-for-me/RepScan/internal/ratelimit"
	"github.com/router-for-me/RepScan/internal/report"
	"github.com/router-for-me/RepScan/internal/scanerr"
	"github.com/router-for-me/RepScan/internal/store"
	"github.com/router-for-me/RepScan/internal/window"
)

var testStart = time.Date(2026, time.March, 10, 14, 5, 0, 0, time.UTC)

type fixture struct {
	fs      billy.Filesystem
	quota   *store.QuotaStore
	tracker *window.Tracker
	now     time.Time
	calls   []string
	sleeps  []time.Duration
	events  []Event
	respond func(n int, fp string) (lookup.Response, error)
	opts    Options
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	fs := memfs.New()
	for _, name := range files {
		if err := util.WriteFile(fs, path.Join("scan", name), []byte("content of "+name), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	if err := fs.MkdirAll("scan", 0o755); err != nil {
		t.Fatalf("mkdir scan: %v", err)
	}
	f := &fixture{
		fs:      fs,
		quota:   store.NewQuotaStore(fs, "state/"+store.DefaultCounterFile),
		tracker: window.NewTracker(fs, "state/"+window.DefaultWindowFile),
		now:     testStart,
	}
	f.respond = func(_ int, fp string) (lookup.Response, error) {
		body := fmt.Sprintf(`{"resource":%q,"response_code":1,"positives":0,"total":3}`, fp)
		return lookup.Classify(200, []byte(body)), nil
	}
	f.opts = Options{
		Quota:     f.quota,
		Window:    f.tracker,
		ScanFS:    fs,
		ScanDir:   "scan",
		SkipNames: []string{".keep"},
		Lookup: lookup.ClientFunc(func(ctx context.Context, fp string) (lookup.Response, error) {
			f.calls = append(f.calls, fp)
			return f.respond(len(f.calls), fp)
		}),
		ReportFS:  fs,
		ReportDir: "reports",
		Limits:    ratelimit.DefaultSettings(),
		Progress:  func(ev Event) { f.events = append(f.events, ev) },
		Now:       func() time.Time { return f.now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.sleeps = append(f.sleeps, d)
			return ctx.Err()
		},
	}
	return f
}

func (f *fixture) run(t *testing.T, ctx context.Context) (Outcome, error) {
	t.Helper()
	engine, err := NewEngine(f.opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine.Run(ctx)
}

func (f *fixture) savedCount(t *testing.T) int {
	t.Helper()
	count, err := f.quota.Load()
	if err != nil {
		t.Fatalf("load count: %v", err)
	}
	return count
}

func (f *fixture) reportText(t *testing.T) string {
	t.Helper()
	data, err := util.ReadFile(f.fs, path.Join("reports", report.Name(testStart)))
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("read report: %v", err)
	}
	return string(data)
}

func (f *fixture) countEvents(kind EventKind) int {
	n := 0
	for _, ev := range f.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestRun_FreshPeriodScansAll(t *testing.T) {
	f := newFixture(t, "b.bin", "a.bin")

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateCompleted || outcome.Count != 2 || outcome.Scanned != 2 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if got := f.savedCount(t); got != 2 {
		t.Fatalf("expected saved count=2, got %d", got)
	}

	rec, ok, err := f.tracker.Load()
	if err != nil || !ok {
		t.Fatalf("expected window record, ok=%v err=%v", ok, err)
	}
	if rec != window.FromTime(testStart) {
		t.Fatalf("expected window %s, got %s", window.FromTime(testStart), rec)
	}
	if !outcome.WindowSaved {
		t.Fatalf("expected WindowSaved")
	}

	text := f.reportText(t)
	first := strings.Index(text, "File - a.bin:")
	second := strings.Index(text, "File - b.bin:")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected a.bin then b.bin in report, got:\n%s", text)
	}
	if strings.Count(text, "File - ") != 2 {
		t.Fatalf("expected 2 records, got:\n%s", text)
	}

	wantFP, _ := fingerprint.Compute(strings.NewReader("content of a.bin"))
	if len(f.calls) != 2 || f.calls[0] != wantFP {
		t.Fatalf("expected content fingerprint %s first, got %v", wantFP, f.calls)
	}
	if f.countEvents(EventScanned) != 2 {
		t.Fatalf("expected 2 scanned events, got %d", f.countEvents(EventScanned))
	}
	if outcome.SessionID == "" {
		t.Fatalf("expected session id")
	}
}

func TestRun_ExhaustedPeriodMakesNoCalls(t *testing.T) {
	f := newFixture(t, "a.bin", "b.bin")
	if err := f.quota.Save(500); err != nil {
		t.Fatalf("seed count: %v", err)
	}
	if err := f.tracker.Save(window.Record{Month: 3, Day: 10, Hour: 2}); err != nil {
		t.Fatalf("seed window: %v", err)
	}

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateExhausted {
		t.Fatalf("expected exhausted, got %s", outcome.State)
	}
	if len(f.calls) != 0 {
		t.Fatalf("expected no lookups, got %d", len(f.calls))
	}
	if got := f.savedCount(t); got != 500 {
		t.Fatalf("expected saved count=500, got %d", got)
	}
	if outcome.Remaining != 2 || f.countEvents(EventExhausted) != 1 {
		t.Fatalf("expected 2 remaining and one exhausted event, got %+v", outcome)
	}
	rec, ok, _ := f.tracker.Load()
	if !ok || rec != (window.Record{Month: 3, Day: 10, Hour: 2}) {
		t.Fatalf("expected window untouched, got %s ok=%v", rec, ok)
	}
}

func TestRun_StalePeriodRollsOver(t *testing.T) {
	f := newFixture(t)
	if err := f.quota.Save(500); err != nil {
		t.Fatalf("seed count: %v", err)
	}
	if err := f.tracker.Save(window.Record{Month: 3, Day: 7, Hour: 14}); err != nil {
		t.Fatalf("seed window: %v", err)
	}

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.RolledOver || outcome.StartCount != 0 || outcome.Count != 0 {
		t.Fatalf("expected fresh period, got %+v", outcome)
	}
	if got := f.savedCount(t); got != 0 {
		t.Fatalf("expected saved count=0, got %d", got)
	}
	if _, ok, _ := f.tracker.Load(); ok {
		t.Fatalf("expected window cleared")
	}
	if f.countEvents(EventRollover) != 1 {
		t.Fatalf("expected one rollover event")
	}
}

func TestRun_RolloverThenScans(t *testing.T) {
	f := newFixture(t, "a.bin")
	if err := f.quota.Save(500); err != nil {
		t.Fatalf("seed count: %v", err)
	}
	if err := f.tracker.Save(window.Record{Month: 3, Day: 7, Hour: 14}); err != nil {
		t.Fatalf("seed window: %v", err)
	}

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Count != 1 || !outcome.WindowSaved {
		t.Fatalf("expected count=1 with new window, got %+v", outcome)
	}
	rec, ok, _ := f.tracker.Load()
	if !ok || rec != window.FromTime(testStart) {
		t.Fatalf("expected new window %s, got %s", window.FromTime(testStart), rec)
	}
}

func TestRun_InterruptAfterThreeFiles(t *testing.T) {
	f := newFixture(t, "1.bin", "2.bin", "3.bin", "4.bin", "5.bin")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.opts.Progress = func(ev Event) {
		f.events = append(f.events, ev)
		if ev.Kind == EventScanned && ev.Count == 3 {
			cancel()
		}
	}

	outcome, err := f.run(t, ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateInterrupted {
		t.Fatalf("expected interrupted, got %s", outcome.State)
	}
	if got := f.savedCount(t); got != 3 {
		t.Fatalf("expected saved count=3, got %d", got)
	}
	if len(f.calls) != 3 || outcome.Remaining != 2 {
		t.Fatalf("expected 3 calls and 2 remaining, got calls=%d remaining=%d", len(f.calls), outcome.Remaining)
	}
	if n := strings.Count(f.reportText(t), "File - "); n != 3 {
		t.Fatalf("expected 3 report records, got %d", n)
	}
	if scanerr.ExitCode(err) != scanerr.ExitOK {
		t.Fatalf("expected exit 0 for interrupt")
	}
}

func TestRun_PausesAfterFourCalls(t *testing.T) {
	f := newFixture(t, "1", "2", "3", "4", "5", "6")

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(f.sleeps) != 1 || f.sleeps[0] != 60*time.Second {
		t.Fatalf("expected one 60s pause, got %v", f.sleeps)
	}
	if outcome.Pauses != 1 || f.countEvents(EventPause) != 1 {
		t.Fatalf("expected one pause, got outcome=%d events=%d", outcome.Pauses, f.countEvents(EventPause))
	}
	if outcome.Count != 6 {
		t.Fatalf("expected count=6, got %d", outcome.Count)
	}
}

func TestRun_InterruptDuringPause(t *testing.T) {
	f := newFixture(t, "1", "2", "3", "4", "5")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		cancel()
		return ctx.Err()
	}

	outcome, err := f.run(t, ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.State != StateInterrupted || outcome.Count != 4 {
		t.Fatalf("expected interrupted at count=4, got %+v", outcome)
	}
	if got := f.savedCount(t); got != 4 {
		t.Fatalf("expected saved count=4, got %d", got)
	}
}

func TestRun_RemoteFailurePersistsCount(t *testing.T) {
	cases := []struct {
		status int
		exit   int
	}{
		{204, scanerr.ExitRateLimited},
		{400, scanerr.ExitMalformed},
		{403, scanerr.ExitForbidden},
		{502, scanerr.ExitUnknown},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.status), func(t *testing.T) {
			f := newFixture(t, "a", "b", "c")
			base := f.respond
			f.respond = func(n int, fp string) (lookup.Response, error) {
				if n == 2 {
					return lookup.Classify(tc.status, nil), nil
				}
				return base(n, fp)
			}

			outcome, err := f.run(t, context.Background())
			if !scanerr.IsRemote(err) || scanerr.ExitCode(err) != tc.exit {
				t.Fatalf("expected remote error exit=%d, got %v", tc.exit, err)
			}
			if outcome.State != StateFailed {
				t.Fatalf("expected failed, got %s", outcome.State)
			}
			if got := f.savedCount(t); got != 1 {
				t.Fatalf("expected saved count=1, got %d", got)
			}
			if len(f.calls) != 2 {
				t.Fatalf("expected the third file untouched, got %d calls", len(f.calls))
			}
		})
	}
}

type deniedFS struct {
	billy.Filesystem
}

func (deniedFS) OpenFile(string, int, os.FileMode) (billy.File, error) {
	return nil, os.ErrPermission
}

func TestRun_ReportFailureKeepsConsumedCall(t *testing.T) {
	f := newFixture(t, "a", "b")
	f.opts.ReportFS = deniedFS{memfs.New()}

	outcome, err := f.run(t, context.Background())
	if !scanerr.IsIO(err) || scanerr.ExitCode(err) != scanerr.ExitPermission {
		t.Fatalf("expected permission io error, got %v", err)
	}
	if outcome.Scanned != 0 || len(f.calls) != 1 {
		t.Fatalf("expected stop after first call, got scanned=%d calls=%d", outcome.Scanned, len(f.calls))
	}
	if got := f.savedCount(t); got != 1 {
		t.Fatalf("expected saved count=1, got %d", got)
	}
}

func TestRun_SkipsMarkersAndDirectories(t *testing.T) {
	f := newFixture(t, ".keep", "a.bin")
	if err := util.WriteFile(f.fs, "scan/nested/inner.bin", []byte("x"), 0o644); err != nil {
		t.Fatalf("seed nested: %v", err)
	}

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Scanned != 1 || len(f.calls) != 1 {
		t.Fatalf("expected only a.bin scanned, got scanned=%d", outcome.Scanned)
	}
}

func TestRun_ExistingWindowIsKept(t *testing.T) {
	f := newFixture(t, "a", "b")
	if err := f.quota.Save(10); err != nil {
		t.Fatalf("seed count: %v", err)
	}
	seed := window.Record{Month: 3, Day: 10, Hour: 1}
	if err := f.tracker.Save(seed); err != nil {
		t.Fatalf("seed window: %v", err)
	}

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Count != 12 || outcome.WindowSaved {
		t.Fatalf("expected count=12 without window write, got %+v", outcome)
	}
	rec, _, _ := f.tracker.Load()
	if rec != seed {
		t.Fatalf("expected window %s, got %s", seed, rec)
	}
}

func TestRun_ElapsedSessionLeavesWindowUnset(t *testing.T) {
	f := newFixture(t, "a")
	f.opts.Progress = func(ev Event) {
		if ev.Kind == EventScanned {
			f.now = testStart.Add(72 * time.Hour)
		}
	}

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.WindowSaved {
		t.Fatalf("expected no window write")
	}
	if _, ok, _ := f.tracker.Load(); ok {
		t.Fatalf("expected no window record")
	}
	if got := f.savedCount(t); got != 1 {
		t.Fatalf("expected saved count=1, got %d", got)
	}
}

func TestRun_CorruptCounterStops(t *testing.T) {
	f := newFixture(t, "a")
	if err := util.WriteFile(f.fs, f.quota.Path(), []byte{0xff, 0x00}, 0o644); err != nil {
		t.Fatalf("seed corrupt: %v", err)
	}

	_, err := f.run(t, context.Background())
	if scanerr.ExitCode(err) != scanerr.ExitCorrupt {
		t.Fatalf("expected corrupt exit, got %v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("expected no lookups")
	}
}

func TestRun_MissingScanDir(t *testing.T) {
	f := newFixture(t)
	f.opts.ScanDir = "absent"

	_, err := f.run(t, context.Background())
	if scanerr.ExitCode(err) != scanerr.ExitNotFound {
		t.Fatalf("expected not-found exit, got %v", err)
	}
}

type fakeRecorder struct {
	begun    []SessionInfo
	results  []Result
	finished []Outcome
}

func (r *fakeRecorder) BeginSession(_ context.Context, info SessionInfo) error {
	r.begun = append(r.begun, info)
	return nil
}

func (r *fakeRecorder) RecordScan(_ context.Context, _ string, result Result) error {
	r.results = append(r.results, result)
	return fmt.Errorf("ledger offline")
}

func (r *fakeRecorder) FinishSession(_ context.Context, outcome Outcome) error {
	r.finished = append(r.finished, outcome)
	return nil
}

func TestRun_RecorderSeesSession(t *testing.T) {
	f := newFixture(t, "a", "b")
	rec := &fakeRecorder{}
	f.opts.Recorder = rec

	outcome, err := f.run(t, context.Background())
	if err != nil {
		t.Fatalf("recorder failures must not fail the run: %v", err)
	}
	if len(rec.begun) != 1 || rec.begun[0].Files != 2 || rec.begun[0].ID != outcome.SessionID {
		t.Fatalf("unexpected begin %+v", rec.begun)
	}
	if len(rec.results) != 2 || rec.results[1].Count != 2 || rec.results[0].Summary.Total != 3 {
		t.Fatalf("unexpected results %+v", rec.results)
	}
	if len(rec.finished) != 1 || rec.finished[0].Count != 2 {
		t.Fatalf("unexpected finish %+v", rec.finished)
	}
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	if _, err := NewEngine(Options{}); err == nil {
		t.Fatalf("expected error for empty options")
	}
}
