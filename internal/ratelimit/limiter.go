package ratelimit

import (
	"context"
	"time"
)

// Limiter paces lookups within one scan session. It keeps two allowances:
// calls left before the next pacing pause, and calls left in the accounting
// period. State lives only for the session; the period count itself is
// persisted by the caller.
//
// A Limiter is not safe for concurrent use; a scan is strictly sequential.
type Limiter struct {
	settings Settings
	sleep    SleepFunc
	onPause  func(time.Duration)

	minuteAllowance int
	periodAllowance int
	pauses          int
}

// NewLimiter constructs a Limiter for a period in which used calls were
// already made. A nil sleep uses the wall clock.
func NewLimiter(settings Settings, used int, sleep SleepFunc) *Limiter {
	settings = settings.Normalize()
	if sleep == nil {
		sleep = Sleep
	}
	period := settings.PeriodCap - used
	if period < 0 {
		period = 0
	}
	return &Limiter{
		settings:        settings,
		sleep:           sleep,
		minuteAllowance: settings.PerMinute,
		periodAllowance: period,
	}
}

// OnPause registers fn to be called right before each pacing pause.
func (l *Limiter) OnPause(fn func(time.Duration)) {
	if l == nil {
		return
	}
	l.onPause = fn
}

// Admit decides whether the next lookup may run. When the minute allowance is
// spent it pauses first and then resets the allowance. A cancelled pause
// returns ctx's error and leaves the allowance at zero.
func (l *Limiter) Admit(ctx context.Context) (Decision, error) {
	if l.periodAllowance <= 0 {
		return DecisionExhausted, nil
	}
	if l.minuteAllowance <= 0 {
		if l.onPause != nil {
			l.onPause(l.settings.Pause)
		}
		if errSleep := l.sleep(ctx, l.settings.Pause); errSleep != nil {
			return DecisionProceed, errSleep
		}
		l.pauses++
		l.minuteAllowance = l.settings.PerMinute
	}
	return DecisionProceed, nil
}

// Record consumes one call from both allowances.
func (l *Limiter) Record() {
	if l.minuteAllowance > 0 {
		l.minuteAllowance--
	}
	if l.periodAllowance > 0 {
		l.periodAllowance--
	}
}

// MinuteAllowance returns the calls left before the next pause.
func (l *Limiter) MinuteAllowance() int { return l.minuteAllowance }

// PeriodAllowance returns the calls left in the accounting period.
func (l *Limiter) PeriodAllowance() int { return l.periodAllowance }

// Pauses returns how many pacing pauses completed.
func (l *Limiter) Pauses() int { return l.pauses }
