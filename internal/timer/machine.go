package timer

import (
	"time"

	"github.com/hpungsan/levelup/internal/errors"
)

// Mode identifies what a countdown is for.
type Mode string

const (
	ModeFocus  Mode = "focus"  // deep-work study time; the only mode that earns currency
	ModeBreak  Mode = "break"  // rest between sessions; no ledger effect
	ModeGaming Mode = "gaming" // leisure time capped by the earned balance
)

// Phase is the lifecycle state of the countdown.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseExpired Phase = "expired"
)

// Duration and conversion policy. The 45:10 focus-to-game ratio is a design
// constant, not a user setting.
const (
	FocusSeconds = 45 * 60
	BreakSeconds = 10 * 60
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFocus, ModeBreak, ModeGaming:
		return Mode(s), nil
	}
	return "", errors.NewInvalidRequest("mode must be one of: focus, break, gaming")
}

// EarnedMinutes converts studied minutes into game-balance minutes.
// floor(m / 4.5) computed in integer math as floor(2m / 9).
func EarnedMinutes(studiedMinutes int) int {
	if studiedMinutes <= 0 {
		return 0
	}
	return studiedMinutes * 2 / 9
}

// Machine is the countdown state machine. It owns the in-memory timer state
// exclusively; durable copies go through the snapshot store. The machine
// never reads the currency ledger; callers pass the current balance into
// the transitions that are gated on it.
type Machine struct {
	mode        Mode
	phase       Phase
	timeLeft    int // seconds remaining, 0 <= timeLeft <= initialTime
	initialTime int // seconds this countdown started at
	savedAtMs   *int64
	now         func() time.Time
}

// NewMachine returns a machine in the cold-start default state:
// idle, focus mode, 45 minutes. A nil clock defaults to time.Now.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{
		mode:        ModeFocus,
		phase:       PhaseIdle,
		timeLeft:    FocusSeconds,
		initialTime: FocusSeconds,
		now:         now,
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode { return m.mode }

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// TimeLeft returns the seconds remaining.
func (m *Machine) TimeLeft() int { return m.timeLeft }

// InitialTime returns the seconds this countdown started at.
func (m *Machine) InitialTime() int { return m.initialTime }

// SwitchMode changes the countdown mode, implicitly pausing a running timer.
// Gaming resolves its duration from balanceMinutes; with an empty balance the
// switch is refused, the machine falls back to focus defaults, and an
// INSUFFICIENT_BALANCE error is returned. An unknown mode is rejected
// without touching the machine.
func (m *Machine) SwitchMode(newMode Mode, balanceMinutes int) error {
	if m.phase == PhaseExpired {
		return errors.NewInvalidTransition("switch mode", string(m.phase))
	}

	var initialTime int
	switch newMode {
	case ModeFocus:
		initialTime = FocusSeconds
	case ModeBreak:
		initialTime = BreakSeconds
	case ModeGaming:
		if balanceMinutes <= 0 {
			m.mode = ModeFocus
			m.phase = PhaseIdle
			m.initialTime = FocusSeconds
			m.timeLeft = FocusSeconds
			m.savedAtMs = nil
			return errors.NewInsufficientBalance(balanceMinutes)
		}
		initialTime = balanceMinutes * 60
	default:
		return errors.NewInvalidRequest("mode must be one of: focus, break, gaming")
	}

	m.mode = newMode
	m.phase = PhaseIdle
	m.initialTime = initialTime
	m.timeLeft = initialTime
	m.savedAtMs = nil
	return nil
}

// Start begins the countdown. Allowed only from idle with time remaining.
// Gaming re-checks the balance here, not just at switch time, so a balance
// spent between switch and start cannot be played against.
func (m *Machine) Start(balanceMinutes int) error {
	if m.phase != PhaseIdle {
		return errors.NewInvalidTransition("start", string(m.phase))
	}
	if m.timeLeft <= 0 {
		return errors.NewInvalidTransition("start", "idle with no time remaining")
	}
	if m.mode == ModeGaming && balanceMinutes <= 0 {
		return errors.NewInsufficientBalance(balanceMinutes)
	}

	ms := m.now().UnixMilli()
	m.savedAtMs = &ms
	m.phase = PhaseRunning
	return nil
}

// Pause freezes the countdown at its current value.
func (m *Machine) Pause() error {
	if m.phase != PhaseRunning {
		return errors.NewInvalidTransition("pause", string(m.phase))
	}
	m.phase = PhaseIdle
	m.savedAtMs = nil
	return nil
}

// Tick advances the countdown by one second and re-stamps the wall-clock
// marker, so recovery math works from the last observed tick rather than the
// original start. Returns true when the countdown reaches zero.
func (m *Machine) Tick() (expired bool, err error) {
	if m.phase != PhaseRunning {
		return false, errors.NewInvalidTransition("tick", string(m.phase))
	}

	if m.timeLeft > 0 {
		m.timeLeft--
	}
	if m.timeLeft == 0 {
		m.phase = PhaseExpired
		m.savedAtMs = nil
		return true, nil
	}

	ms := m.now().UnixMilli()
	m.savedAtMs = &ms
	return false, nil
}

// Stop aborts the countdown and resets it to the full duration. It reports
// the elapsed seconds so the caller can apply the mode's side-effect policy
// (focus forfeits progress; gaming debits the time actually played).
func (m *Machine) Stop() (elapsedSeconds int, err error) {
	if m.phase != PhaseIdle && m.phase != PhaseRunning {
		return 0, errors.NewInvalidTransition("stop", string(m.phase))
	}

	elapsedSeconds = m.initialTime - m.timeLeft
	m.timeLeft = m.initialTime
	m.phase = PhaseIdle
	m.savedAtMs = nil
	return elapsedSeconds, nil
}

// Expire forces the machine into the expired phase for the given mode and
// duration. Used by reconciliation when a countdown ran out while the process
// was not observing it.
func (m *Machine) Expire(mode Mode, initialTime int) {
	m.mode = mode
	m.initialTime = initialTime
	m.timeLeft = 0
	m.phase = PhaseExpired
	m.savedAtMs = nil
}

// FinishExpired settles an expired countdown back to focus defaults,
// returning the mode and duration that expired.
func (m *Machine) FinishExpired() (mode Mode, initialTime int, err error) {
	if m.phase != PhaseExpired {
		return "", 0, errors.NewInvalidTransition("finish", string(m.phase))
	}

	mode = m.mode
	initialTime = m.initialTime
	m.mode = ModeFocus
	m.initialTime = FocusSeconds
	m.timeLeft = FocusSeconds
	m.phase = PhaseIdle
	m.savedAtMs = nil
	return mode, initialTime, nil
}

// Snapshot returns the durable form of the current state. SavedAtMs is
// non-nil iff the machine is running.
func (m *Machine) Snapshot() Snapshot {
	snap := Snapshot{
		Mode:        m.mode,
		IsActive:    m.phase == PhaseRunning,
		TimeLeft:    m.timeLeft,
		InitialTime: m.initialTime,
	}
	if m.savedAtMs != nil {
		ms := *m.savedAtMs
		snap.SavedAtMs = &ms
	}
	return snap
}

// Restore replaces the in-memory state with a validated snapshot. A running
// snapshot resumes in the running phase with a fresh wall-clock stamp.
func (m *Machine) Restore(snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	m.mode = snap.Mode
	m.timeLeft = snap.TimeLeft
	m.initialTime = snap.InitialTime
	if snap.IsActive {
		ms := m.now().UnixMilli()
		m.savedAtMs = &ms
		m.phase = PhaseRunning
	} else {
		m.savedAtMs = nil
		m.phase = PhaseIdle
	}
	return nil
}
