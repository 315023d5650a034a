package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/levelup/internal/config"
	"github.com/hpungsan/levelup/internal/db"
	"github.com/hpungsan/levelup/internal/ledger"
	"github.com/hpungsan/levelup/internal/session"
	"github.com/urfave/cli/v2"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	cleanup := func() {
		database.Close()
	}
	return database, cleanup
}

// testConfig returns a default config for testing. Unsafe paths are allowed
// so export/import can target t.TempDir.
func testConfig() *config.Config {
	return &config.Config{
		TargetHours:      7,
		AllowUnsafePaths: true,
	}
}

// runApp runs the CLI app with stdout captured.
func runApp(t *testing.T, app *cli.App, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := app.Run(append([]string{"levelup"}, args...))

	w.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	os.Stdout = oldStdout

	return buf.String(), err
}

// TestCLIStatus tests the status command on a cold start.
func TestCLIStatus(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	out, err := runApp(t, app, "status")
	if err != nil {
		t.Fatalf("status command failed: %v", err)
	}

	var state statusPayload
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
	if state.Mode != "focus" {
		t.Errorf("expected mode=focus, got %s", state.Mode)
	}
	if state.TimeLeft != 2700 {
		t.Errorf("expected time_left=2700, got %d", state.TimeLeft)
	}
	if state.Phase != "idle" {
		t.Errorf("expected phase=idle, got %s", state.Phase)
	}
}

// TestCLISwitch tests mode switching.
func TestCLISwitch(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	t.Run("switch to break", func(t *testing.T) {
		out, err := runApp(t, app, "switch", "break")
		if err != nil {
			t.Fatalf("switch command failed: %v", err)
		}
		var state statusPayload
		if err := json.Unmarshal([]byte(out), &state); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if state.Mode != "break" {
			t.Errorf("expected mode=break, got %s", state.Mode)
		}
		if state.TimeLeft != 600 {
			t.Errorf("expected time_left=600, got %d", state.TimeLeft)
		}
	})

	t.Run("gaming with empty balance returns error", func(t *testing.T) {
		_, err := runApp(t, app, "switch", "gaming")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "INSUFFICIENT_BALANCE") {
			t.Errorf("expected INSUFFICIENT_BALANCE in error, got %v", err)
		}
	})

	t.Run("invalid mode returns error", func(t *testing.T) {
		_, err := runApp(t, app, "switch", "nap")
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("missing mode returns error", func(t *testing.T) {
		_, err := runApp(t, app, "switch")
		if err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestCLIStartPauseStop tests the basic timer flow.
func TestCLIStartPauseStop(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	out, err := runApp(t, app, "start")
	if err != nil {
		t.Fatalf("start command failed: %v", err)
	}
	var state statusPayload
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if state.Phase != "running" {
		t.Errorf("expected phase=running, got %s", state.Phase)
	}

	// Second start while running is an invalid transition
	if _, err := runApp(t, app, "start"); err == nil {
		t.Error("expected error on second start, got nil")
	}

	// Pausing freezes the countdown back into idle with its time intact
	out, err = runApp(t, app, "pause")
	if err != nil {
		t.Fatalf("pause command failed: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if state.Phase != "idle" {
		t.Errorf("expected phase=idle after pause, got %s", state.Phase)
	}

	out, err = runApp(t, app, "stop")
	if err != nil {
		t.Fatalf("stop command failed: %v", err)
	}
	var stopped session.State
	if err := json.Unmarshal([]byte(out), &stopped); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if stopped.Phase != "idle" {
		t.Errorf("expected phase=idle after stop, got %s", stopped.Phase)
	}
	if stopped.TimeLeft != 2700 {
		t.Errorf("expected timer reset to 2700, got %d", stopped.TimeLeft)
	}
}

// TestCLICommitManual tests banking study time done off the timer.
func TestCLICommitManual(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	out, err := runApp(t, app, "commit", "--manual", "--minutes", "90", "-m", "chapter 4")
	if err != nil {
		t.Fatalf("manual commit failed: %v", err)
	}

	var day ledger.DayRecord
	if err := json.Unmarshal([]byte(out), &day); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if day.StudyMinutes != 90 {
		t.Errorf("expected study_minutes=90, got %d", day.StudyMinutes)
	}
	if day.GameBalance != 20 {
		t.Errorf("expected game_balance=20, got %d", day.GameBalance)
	}
	if len(day.Logs) != 1 || day.Logs[0].Note != "chapter 4" {
		t.Errorf("expected one log with note, got %+v", day.Logs)
	}

	t.Run("manual without minutes returns error", func(t *testing.T) {
		_, err := runApp(t, app, "commit", "--manual")
		if err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("manual without note returns error", func(t *testing.T) {
		_, err := runApp(t, app, "commit", "--manual", "--minutes", "30")
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "INVALID_REQUEST") {
			t.Errorf("expected INVALID_REQUEST in error, got %v", err)
		}
	})
}

// TestCLICommitNoPending tests commit with no finished session waiting.
func TestCLICommitNoPending(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	_, err := runApp(t, app, "commit")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Errorf("expected INVALID_REQUEST in error, got %v", err)
	}

	if _, err := runApp(t, app, "discard"); err == nil {
		t.Error("expected discard error, got nil")
	}
}

// TestCLITodayHistory tests the ledger read commands.
func TestCLITodayHistory(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	if _, err := runApp(t, app, "commit", "--manual", "--minutes", "45", "-m", "calculus"); err != nil {
		t.Fatalf("manual commit failed: %v", err)
	}

	out, err := runApp(t, app, "today")
	if err != nil {
		t.Fatalf("today command failed: %v", err)
	}
	var day ledger.DayRecord
	if err := json.Unmarshal([]byte(out), &day); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if day.StudyMinutes != 45 {
		t.Errorf("expected study_minutes=45, got %d", day.StudyMinutes)
	}

	out, err = runApp(t, app, "history")
	if err != nil {
		t.Fatalf("history command failed: %v", err)
	}
	var hist struct {
		Days []ledger.DayRecord `json:"days"`
	}
	if err := json.Unmarshal([]byte(out), &hist); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(hist.Days) != 1 {
		t.Errorf("expected 1 day, got %d", len(hist.Days))
	}

	t.Run("negative limit returns error", func(t *testing.T) {
		_, err := runApp(t, app, "history", "--limit", "-1")
		if err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestCLIExportImport tests the backup round trip.
func TestCLIExportImport(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	if _, err := runApp(t, app, "commit", "--manual", "--minutes", "45", "-m", "algebra"); err != nil {
		t.Fatalf("manual commit failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "backup.jsonl")
	out, err := runApp(t, app, "export", "--path", path)
	if err != nil {
		t.Fatalf("export command failed: %v", err)
	}
	var exported ledger.ExportOutput
	if err := json.Unmarshal([]byte(out), &exported); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if exported.Days != 1 {
		t.Errorf("expected 1 exported day, got %d", exported.Days)
	}

	out, err = runApp(t, app, "import", path)
	if err != nil {
		t.Fatalf("import command failed: %v", err)
	}
	var imported ledger.ImportOutput
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if imported.Days != 1 || imported.Logs != 1 {
		t.Errorf("expected days=1 logs=1, got %+v", imported)
	}

	t.Run("import without path returns error", func(t *testing.T) {
		_, err := runApp(t, app, "import")
		if err == nil {
			t.Error("expected error, got nil")
		}
	})
}

// TestCLICoachRequiresKey tests that coach commands fail without an API key.
func TestCLICoachRequiresKey(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	app := newCLIApp(database, testConfig())

	if _, err := runApp(t, app, "coach"); err == nil {
		t.Error("expected error without api key, got nil")
	}
	if _, err := runApp(t, app, "coach", "models"); err == nil {
		t.Error("expected error without api key, got nil")
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name:     "no args",
			args:     []string{"levelup"},
			expected: false,
		},
		{
			name:     "status command",
			args:     []string{"levelup", "status"},
			expected: true,
		},
		{
			name:     "serve command",
			args:     []string{"levelup", "serve"},
			expected: true,
		},
		{
			name:     "help flag",
			args:     []string{"levelup", "--help"},
			expected: true,
		},
		{
			name:     "version flag",
			args:     []string{"levelup", "-v"},
			expected: true,
		},
		{
			name:     "unknown command",
			args:     []string{"levelup", "bogus"},
			expected: false,
		},
	}

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			if got := isCLIMode(); got != tt.expected {
				t.Errorf("isCLIMode() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{
			name:     "no args",
			args:     []string{"levelup"},
			expected: false,
		},
		{
			name:     "help flag",
			args:     []string{"levelup", "--help"},
			expected: true,
		},
		{
			name:     "short help",
			args:     []string{"levelup", "-h"},
			expected: true,
		},
		{
			name:     "version flag",
			args:     []string{"levelup", "--version"},
			expected: true,
		},
		{
			name:     "help word",
			args:     []string{"levelup", "help"},
			expected: true,
		},
		{
			name:     "regular command",
			args:     []string{"levelup", "status"},
			expected: false,
		},
	}

	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			if got := isHelpOrVersion(); got != tt.expected {
				t.Errorf("isHelpOrVersion() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// TestFormatCountdown tests countdown rendering.
func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		seconds  int
		expected string
	}{
		{0, "00:00"},
		{-5, "00:00"},
		{59, "00:59"},
		{600, "10:00"},
		{2700, "45:00"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}

	for _, tt := range tests {
		if got := formatCountdown(tt.seconds); got != tt.expected {
			t.Errorf("formatCountdown(%d) = %s, expected %s", tt.seconds, got, tt.expected)
		}
	}
}
