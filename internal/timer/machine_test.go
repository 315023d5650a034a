package timer

import (
	"testing"
	"time"

	"github.com/hpungsan/levelup/internal/errors"
)

// fakeClock is a controllable time source for timer tests.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func TestNewMachine_Defaults(t *testing.T) {
	m := NewMachine(nil)

	if m.Mode() != ModeFocus {
		t.Errorf("Mode = %q, want %q", m.Mode(), ModeFocus)
	}
	if m.Phase() != PhaseIdle {
		t.Errorf("Phase = %q, want %q", m.Phase(), PhaseIdle)
	}
	if m.TimeLeft() != FocusSeconds {
		t.Errorf("TimeLeft = %d, want %d", m.TimeLeft(), FocusSeconds)
	}
	if m.InitialTime() != FocusSeconds {
		t.Errorf("InitialTime = %d, want %d", m.InitialTime(), FocusSeconds)
	}
}

func TestSwitchMode_Break(t *testing.T) {
	m := NewMachine(nil)

	if err := m.SwitchMode(ModeBreak, 0); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}
	if m.Mode() != ModeBreak {
		t.Errorf("Mode = %q, want %q", m.Mode(), ModeBreak)
	}
	if m.InitialTime() != BreakSeconds {
		t.Errorf("InitialTime = %d, want %d", m.InitialTime(), BreakSeconds)
	}
	if m.TimeLeft() != BreakSeconds {
		t.Errorf("TimeLeft = %d, want %d", m.TimeLeft(), BreakSeconds)
	}
}

func TestSwitchMode_GamingUsesBalance(t *testing.T) {
	m := NewMachine(nil)

	if err := m.SwitchMode(ModeGaming, 10); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}
	if m.InitialTime() != 600 {
		t.Errorf("InitialTime = %d, want 600", m.InitialTime())
	}
}

func TestSwitchMode_GamingGuard(t *testing.T) {
	m := NewMachine(nil)

	err := m.SwitchMode(ModeGaming, 0)
	if !errors.Is(err, errors.ErrInsufficientBalance) {
		t.Fatalf("SwitchMode error = %v, want INSUFFICIENT_BALANCE", err)
	}

	// Guard falls back to focus defaults, never leaves the machine in gaming.
	if m.Mode() != ModeFocus {
		t.Errorf("Mode = %q, want %q", m.Mode(), ModeFocus)
	}
	if m.InitialTime() != 2700 {
		t.Errorf("InitialTime = %d, want 2700", m.InitialTime())
	}
	if m.Phase() != PhaseIdle {
		t.Errorf("Phase = %q, want %q", m.Phase(), PhaseIdle)
	}
}

func TestSwitchMode_ImplicitPause(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.SwitchMode(ModeBreak, 0); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}
	if m.Phase() != PhaseIdle {
		t.Errorf("Phase = %q, want %q (switch should pause)", m.Phase(), PhaseIdle)
	}
	if snap := m.Snapshot(); snap.SavedAtMs != nil {
		t.Error("SavedAtMs should be nil after implicit pause")
	}
}

func TestSwitchMode_UnknownModeLeavesMachineUntouched(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	before := m.Snapshot()

	err := m.SwitchMode(Mode("nap"), 0)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Fatalf("SwitchMode error = %v, want invalid_request", err)
	}
	if m.Phase() != PhaseRunning {
		t.Errorf("Phase = %q, want %q (rejected switch must not pause)", m.Phase(), PhaseRunning)
	}
	after := m.Snapshot()
	if after.Mode != before.Mode || after.TimeLeft != before.TimeLeft ||
		after.InitialTime != before.InitialTime {
		t.Errorf("snapshot changed across rejected switch: %+v -> %+v", before, after)
	}
	if after.SavedAtMs == nil {
		t.Error("SavedAtMs should survive a rejected switch")
	}
}

func TestStart_StampsClock(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	snap := m.Snapshot()
	if !snap.IsActive {
		t.Error("snapshot should be active after Start")
	}
	if snap.SavedAtMs == nil || *snap.SavedAtMs != clock.Now().UnixMilli() {
		t.Errorf("SavedAtMs = %v, want %d", snap.SavedAtMs, clock.Now().UnixMilli())
	}
}

func TestStart_WhileRunning(t *testing.T) {
	m := NewMachine(nil)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	err := m.Start(0)
	if !errors.Is(err, errors.ErrInvalidTransition) {
		t.Fatalf("second Start error = %v, want INVALID_TRANSITION", err)
	}
	if m.Phase() != PhaseRunning {
		t.Errorf("Phase = %q, rejected start must not change state", m.Phase())
	}
}

func TestStart_GamingRechecksBalance(t *testing.T) {
	m := NewMachine(nil)

	if err := m.SwitchMode(ModeGaming, 5); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}

	// Balance drained between switch and start.
	err := m.Start(0)
	if !errors.Is(err, errors.ErrInsufficientBalance) {
		t.Fatalf("Start error = %v, want INSUFFICIENT_BALANCE", err)
	}
}

func TestTick_CountsDownAndRestamps(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	startStamp := *m.Snapshot().SavedAtMs

	clock.Advance(time.Second)
	expired, err := m.Tick()
	if err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if expired {
		t.Error("Tick should not expire a fresh focus countdown")
	}
	if m.TimeLeft() != FocusSeconds-1 {
		t.Errorf("TimeLeft = %d, want %d", m.TimeLeft(), FocusSeconds-1)
	}

	// Recovery math depends on the last tick's stamp, not the start stamp.
	if got := *m.Snapshot().SavedAtMs; got == startStamp {
		t.Error("Tick should re-stamp SavedAtMs")
	}
}

func TestTick_ExpiresAtZero(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.SwitchMode(ModeBreak, 0); err != nil {
		t.Fatalf("SwitchMode failed: %v", err)
	}
	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var expired bool
	for i := 0; i < BreakSeconds; i++ {
		clock.Advance(time.Second)
		var err error
		expired, err = m.Tick()
		if err != nil {
			t.Fatalf("Tick %d failed: %v", i, err)
		}
		if m.TimeLeft() < 0 || m.TimeLeft() > m.InitialTime() {
			t.Fatalf("invariant violated: TimeLeft=%d InitialTime=%d", m.TimeLeft(), m.InitialTime())
		}
	}

	if !expired {
		t.Fatal("countdown should expire after ticking through its duration")
	}
	if m.Phase() != PhaseExpired {
		t.Errorf("Phase = %q, want %q", m.Phase(), PhaseExpired)
	}
	if m.Snapshot().IsActive {
		t.Error("expired snapshot should not be active")
	}
}

func TestPause_FreezesTimeLeft(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if _, err := m.Tick(); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
	}

	if err := m.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if m.TimeLeft() != FocusSeconds-5 {
		t.Errorf("TimeLeft = %d, want %d", m.TimeLeft(), FocusSeconds-5)
	}
	if snap := m.Snapshot(); snap.IsActive || snap.SavedAtMs != nil {
		t.Error("paused snapshot must be inactive with no timestamp")
	}
}

func TestPause_FromIdle(t *testing.T) {
	m := NewMachine(nil)

	if err := m.Pause(); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Fatalf("Pause error = %v, want INVALID_TRANSITION", err)
	}
}

func TestStop_ReportsElapsedAndResets(t *testing.T) {
	clock := newFakeClock()
	m := NewMachine(clock.Now)

	if err := m.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 300; i++ {
		clock.Advance(time.Second)
		if _, err := m.Tick(); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
	}

	elapsed, err := m.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if elapsed != 300 {
		t.Errorf("elapsed = %d, want 300", elapsed)
	}
	if m.TimeLeft() != m.InitialTime() {
		t.Errorf("TimeLeft = %d, want reset to %d", m.TimeLeft(), m.InitialTime())
	}
	if m.Phase() != PhaseIdle {
		t.Errorf("Phase = %q, want %q", m.Phase(), PhaseIdle)
	}
}

func TestFinishExpired_ResetsToFocusDefaults(t *testing.T) {
	m := NewMachine(nil)
	m.Expire(ModeGaming, 600)

	mode, initialTime, err := m.FinishExpired()
	if err != nil {
		t.Fatalf("FinishExpired failed: %v", err)
	}
	if mode != ModeGaming || initialTime != 600 {
		t.Errorf("FinishExpired = (%q, %d), want (gaming, 600)", mode, initialTime)
	}
	if m.Mode() != ModeFocus || m.TimeLeft() != FocusSeconds {
		t.Errorf("machine should settle to focus defaults, got %q/%d", m.Mode(), m.TimeLeft())
	}
}

func TestFinishExpired_RequiresExpired(t *testing.T) {
	m := NewMachine(nil)

	if _, _, err := m.FinishExpired(); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Fatalf("FinishExpired error = %v, want INVALID_TRANSITION", err)
	}
}

func TestExpiredBlocksSwitchAndStart(t *testing.T) {
	m := NewMachine(nil)
	m.Expire(ModeFocus, FocusSeconds)

	if err := m.SwitchMode(ModeBreak, 0); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("SwitchMode error = %v, want INVALID_TRANSITION", err)
	}
	if err := m.Start(0); !errors.Is(err, errors.ErrInvalidTransition) {
		t.Errorf("Start error = %v, want INVALID_TRANSITION", err)
	}
}

func TestEarnedMinutes(t *testing.T) {
	tests := []struct {
		studied int
		want    int
	}{
		{0, 0},
		{4, 0},
		{5, 1},
		{9, 2},
		{45, 10},
		{90, 20},
		{44, 9},
		{-10, 0},
	}

	for _, tt := range tests {
		if got := EarnedMinutes(tt.studied); got != tt.want {
			t.Errorf("EarnedMinutes(%d) = %d, want %d", tt.studied, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"focus", "break", "gaming"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseMode("sleep"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("ParseMode(sleep) error = %v, want INVALID_REQUEST", err)
	}
}
