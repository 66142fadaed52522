package ratelimit

import (
	"context"
	"time"

	internalsettings "github.com/router-for-me/RepScan/internal/settings"
)

// Decision describes what the caller may do with the next lookup.
type Decision int

const (
	// DecisionProceed allows the lookup.
	DecisionProceed Decision = iota
	// DecisionExhausted ends the session: the period cap is used up.
	DecisionExhausted
)

func (d Decision) String() string {
	if d == DecisionExhausted {
		return "exhausted"
	}
	return "proceed"
}

// Settings holds the two quotas enforced during a scan.
type Settings struct {
	PerMinute int
	PeriodCap int
	Pause     time.Duration
}

// DefaultSettings returns the public-key quotas.
func DefaultSettings() Settings {
	return Settings{
		PerMinute: internalsettings.DefaultPerMinute,
		PeriodCap: internalsettings.DefaultPeriodCap,
		Pause:     internalsettings.DefaultPause,
	}
}

// Normalize replaces non-positive values with defaults.
func (s Settings) Normalize() Settings {
	def := DefaultSettings()
	if s.PerMinute <= 0 {
		s.PerMinute = def.PerMinute
	}
	if s.PeriodCap <= 0 {
		s.PeriodCap = def.PeriodCap
	}
	if s.Pause <= 0 {
		s.Pause = def.Pause
	}
	return s
}

// SleepFunc blocks for d or until ctx is done, returning ctx's error in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
