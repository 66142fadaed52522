package window

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/router-for-me/RepScan/internal/scanerr"
)

func TestTracker_LoadMissing(t *testing.T) {
	_, ok, err := NewTracker(memfs.New(), "").Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if ok {
		t.Fatalf("expected no record")
	}
}

func TestTracker_RoundTrip(t *testing.T) {
	tr := NewTracker(memfs.New(), "window.csv")
	for month := 1; month <= 12; month++ {
		for _, day := range []int{1, 15, 28, 31} {
			for _, hour := range []int{0, 11, 23} {
				want := Record{Month: month, Day: day, Hour: hour}
				if errSave := tr.Save(want); errSave != nil {
					t.Fatalf("save %v: %v", want, errSave)
				}
				got, ok, errLoad := tr.Load()
				if errLoad != nil {
					t.Fatalf("load: %v", errLoad)
				}
				if !ok || got != want {
					t.Fatalf("expected %+v, got %+v (ok=%v)", want, got, ok)
				}
			}
		}
	}
}

func TestTracker_FileLayout(t *testing.T) {
	fsys := memfs.New()
	if errSave := NewTracker(fsys, "w.csv").Save(Record{Month: 3, Day: 9, Hour: 17}); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	data, errRead := util.ReadFile(fsys, "w.csv")
	if errRead != nil {
		t.Fatalf("read: %v", errRead)
	}
	if string(data) != "Month,Day,Hour\n3,9,17\n" {
		t.Fatalf("unexpected layout %q", string(data))
	}
}

func TestTracker_ReadsBlankRows(t *testing.T) {
	fsys := memfs.New()
	content := "Month,Day,Hour\r\n\r\n6,2,8\r\n\r\n"
	if errWrite := util.WriteFile(fsys, "w.csv", []byte(content), 0o600); errWrite != nil {
		t.Fatalf("seed: %v", errWrite)
	}
	got, ok, err := NewTracker(fsys, "w.csv").Load()
	if err != nil || !ok {
		t.Fatalf("expected record, got ok=%v err=%v", ok, err)
	}
	if got != (Record{Month: 6, Day: 2, Hour: 8}) {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestTracker_ReadsHeaderlessRow(t *testing.T) {
	for _, content := range []string{"3,10,14\r\n", "3,10,14", "\n3,10,14\n"} {
		fsys := memfs.New()
		if errWrite := util.WriteFile(fsys, "last_execution_time.csv", []byte(content), 0o600); errWrite != nil {
			t.Fatalf("seed: %v", errWrite)
		}
		got, ok, err := NewTracker(fsys, "last_execution_time.csv").Load()
		if err != nil || !ok {
			t.Fatalf("content %q: expected record, got ok=%v err=%v", content, ok, err)
		}
		if got != (Record{Month: 3, Day: 10, Hour: 14}) {
			t.Fatalf("content %q: unexpected record %+v", content, got)
		}
	}
}

func TestTracker_MalformedIsFatal(t *testing.T) {
	cases := map[string]string{
		"non integer":  "Month,Day,Hour\nJan,2,3\n",
		"short row":    "Month,Day,Hour\n1,2\n",
		"header only":  "Month,Day,Hour\n",
		"out of range": "Month,Day,Hour\n13,2,3\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			fsys := memfs.New()
			if errWrite := util.WriteFile(fsys, "w.csv", []byte(content), 0o600); errWrite != nil {
				t.Fatalf("seed: %v", errWrite)
			}
			_, _, err := NewTracker(fsys, "w.csv").Load()
			if scanerr.ExitCode(err) != scanerr.ExitCorrupt {
				t.Fatalf("expected corrupt error, got %v", err)
			}
		})
	}
}

func TestTracker_SaveRejectsInvalid(t *testing.T) {
	if err := NewTracker(memfs.New(), "w.csv").Save(Record{Month: 0, Day: 1, Hour: 1}); !scanerr.IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestTracker_Clear(t *testing.T) {
	tr := NewTracker(memfs.New(), "w.csv")
	if errSave := tr.Save(Record{Month: 1, Day: 1, Hour: 1}); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	if errClear := tr.Clear(); errClear != nil {
		t.Fatalf("clear: %v", errClear)
	}
	if _, ok, _ := tr.Load(); ok {
		t.Fatalf("expected record to be gone")
	}
	if errClear := tr.Clear(); errClear != nil {
		t.Fatalf("clear missing: %v", errClear)
	}
}

func TestFromTime(t *testing.T) {
	at := time.Date(2026, time.October, 16, 14, 59, 0, 0, time.UTC)
	if got := FromTime(at); got != (Record{Month: 10, Day: 16, Hour: 14}) {
		t.Fatalf("unexpected record %+v", got)
	}
}
