package timer

import (
	"fmt"
	"math"
	"time"

	"github.com/hpungsan/levelup/internal/errors"
)

// Snapshot is the durable serialized form of the timer state, timestamped
// for recovery math.
type Snapshot struct {
	Mode        Mode   `json:"mode"`
	IsActive    bool   `json:"is_active"`
	TimeLeft    int    `json:"time_left"`
	InitialTime int    `json:"initial_time"`
	SavedAtMs   *int64 `json:"saved_at_ms,omitempty"` // non-nil iff IsActive
}

// Validate checks the snapshot against the machine invariants. A snapshot
// that fails here is discarded and the caller falls back to cold-start
// defaults.
func (s Snapshot) Validate() error {
	if _, err := ParseMode(string(s.Mode)); err != nil {
		return errors.NewMalformedSnapshot(fmt.Sprintf("unknown mode %q", s.Mode))
	}
	if s.InitialTime <= 0 {
		return errors.NewMalformedSnapshot("initial_time must be positive")
	}
	if s.TimeLeft < 0 {
		return errors.NewMalformedSnapshot("time_left must be non-negative")
	}
	if s.TimeLeft > s.InitialTime {
		return errors.NewMalformedSnapshot("time_left exceeds initial_time")
	}
	if s.IsActive && s.SavedAtMs == nil {
		return errors.NewMalformedSnapshot("active snapshot is missing its timestamp")
	}
	if !s.IsActive && s.SavedAtMs != nil {
		return errors.NewMalformedSnapshot("inactive snapshot carries a timestamp")
	}
	return nil
}

// ResumeKind classifies the outcome of reconciling a stale snapshot against
// the wall clock.
type ResumeKind int

const (
	// ResumeIdle restores a paused snapshot verbatim; a paused timer does
	// not advance, so no time math is needed.
	ResumeIdle ResumeKind = iota

	// ResumeRunning restores a running snapshot with the background elapsed
	// time already subtracted.
	ResumeRunning

	// ResumeComplete means the countdown ran out while unobserved; the
	// caller routes directly into the completion side effects for the
	// snapshot's mode.
	ResumeComplete
)

// ResumeResult is the reconciled state produced by Reconcile.
type ResumeResult struct {
	Kind     ResumeKind
	Snapshot Snapshot // adjusted state for ResumeIdle/ResumeRunning
}

// Reconcile recomputes timer state from a stale snapshot plus elapsed
// wall-clock time. Run once at load and once on every foreground regain;
// while the process is not observing the timer this is the only mechanism
// that accounts for elapsed time, so there are never two clocks to disagree.
func Reconcile(snap Snapshot, now time.Time) (ResumeResult, error) {
	if err := snap.Validate(); err != nil {
		return ResumeResult{}, err
	}

	if !snap.IsActive {
		return ResumeResult{Kind: ResumeIdle, Snapshot: snap}, nil
	}

	elapsed := float64(now.UnixMilli()-*snap.SavedAtMs) / 1000.0
	recovered := float64(snap.TimeLeft) - elapsed

	// At or below one second remaining, treat the countdown as having
	// ticked to exactly zero while unobserved. The original threshold:
	// a sub-second remainder is not worth resuming.
	if recovered <= 1 {
		return ResumeResult{Kind: ResumeComplete, Snapshot: snap}, nil
	}

	ms := now.UnixMilli()
	adjusted := snap
	adjusted.TimeLeft = int(math.Floor(recovered))
	adjusted.SavedAtMs = &ms
	return ResumeResult{Kind: ResumeRunning, Snapshot: adjusted}, nil
}
