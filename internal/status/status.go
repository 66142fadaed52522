// Package status reports the persisted quota state without changing it.
package status

import (
	"time"

	"github.com/router-for-me/RepScan/internal/ratelimit"
	"github.com/router-for-me/RepScan/internal/store"
	"github.com/router-for-me/RepScan/internal/window"
)

// Window is the JSON view of a window record.
type Window struct {
	Month int `json:"month"`
	Day   int `json:"day"`
	Hour  int `json:"hour"`
}

// Snapshot is the quota state as the next scan would see it.
type Snapshot struct {
	Count     int     `json:"count"`
	PeriodCap int     `json:"period_cap"`
	PerMinute int     `json:"per_minute"`
	Remaining int     `json:"remaining"`
	Window    *Window `json:"window,omitempty"`
	// WouldRollover is true when the next scan starts a fresh period.
	WouldRollover bool      `json:"would_rollover"`
	CheckedAt     time.Time `json:"checked_at"`
}

// Exhausted reports whether the next scan would make no calls.
func (s Snapshot) Exhausted() bool { return s.Remaining <= 0 }

// Read loads both records and evaluates them at now.
func Read(quota *store.QuotaStore, tracker *window.Tracker, limits ratelimit.Settings, now time.Time) (Snapshot, error) {
	limits = limits.Normalize()
	count, errLoad := quota.Load()
	if errLoad != nil {
		return Snapshot{}, errLoad
	}
	prev, hasPrev, errWindow := tracker.Load()
	if errWindow != nil {
		return Snapshot{}, errWindow
	}

	snap := Snapshot{
		Count:     count,
		PeriodCap: limits.PeriodCap,
		PerMinute: limits.PerMinute,
		CheckedAt: now,
	}
	if hasPrev {
		snap.Window = &Window{Month: prev.Month, Day: prev.Day, Hour: prev.Hour}
		snap.WouldRollover = window.ShouldRollover(prev, window.FromTime(now), count, limits.PeriodCap)
	}

	used := count
	if snap.WouldRollover {
		used = 0
	}
	snap.Remaining = limits.PeriodCap - used
	if snap.Remaining < 0 {
		snap.Remaining = 0
	}
	return snap, nil
}
