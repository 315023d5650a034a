package db

import (
	"database/sql"
	"testing"

	"github.com/hpungsan/levelup/internal/timer"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSnapshot_RoundTrip(t *testing.T) {
	database := testDB(t)

	ms := int64(1700000000000)
	snap := timer.Snapshot{
		Mode:        timer.ModeGaming,
		IsActive:    true,
		TimeLeft:    123,
		InitialTime: 600,
		SavedAtMs:   &ms,
	}

	if err := SaveSnapshot(database, snap, 1700000000); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	loaded, err := LoadSnapshot(database)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadSnapshot returned nil, want snapshot")
	}
	if loaded.Mode != timer.ModeGaming || !loaded.IsActive || loaded.TimeLeft != 123 || loaded.InitialTime != 600 {
		t.Errorf("loaded = %+v, want original", loaded)
	}
	if loaded.SavedAtMs == nil || *loaded.SavedAtMs != ms {
		t.Errorf("SavedAtMs = %v, want %d", loaded.SavedAtMs, ms)
	}
}

func TestSnapshot_OverwritesInPlace(t *testing.T) {
	database := testDB(t)

	first := timer.Snapshot{Mode: timer.ModeFocus, TimeLeft: 2700, InitialTime: 2700}
	if err := SaveSnapshot(database, first, 1); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	second := timer.Snapshot{Mode: timer.ModeBreak, TimeLeft: 600, InitialTime: 600}
	if err := SaveSnapshot(database, second, 2); err != nil {
		t.Fatalf("second SaveSnapshot failed: %v", err)
	}

	loaded, err := LoadSnapshot(database)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded.Mode != timer.ModeBreak {
		t.Errorf("Mode = %q, want break (single slot, last write wins)", loaded.Mode)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM timer_snapshot`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot rows = %d, want 1", count)
	}
}

func TestSnapshot_AbsentAndCleared(t *testing.T) {
	database := testDB(t)

	loaded, err := LoadSnapshot(database)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("LoadSnapshot = %+v, want nil on cold start", loaded)
	}

	snap := timer.Snapshot{Mode: timer.ModeFocus, TimeLeft: 100, InitialTime: 2700}
	if err := SaveSnapshot(database, snap, 1); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := ClearSnapshot(database); err != nil {
		t.Fatalf("ClearSnapshot failed: %v", err)
	}

	loaded, err = LoadSnapshot(database)
	if err != nil {
		t.Fatalf("LoadSnapshot after clear failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("LoadSnapshot after clear = %+v, want nil", loaded)
	}
}

func TestPendingCredit_RoundTrip(t *testing.T) {
	database := testDB(t)

	token, minutes, err := LoadPendingCredit(database)
	if err != nil {
		t.Fatalf("LoadPendingCredit failed: %v", err)
	}
	if token != "" || minutes != 0 {
		t.Errorf("LoadPendingCredit = (%q, %d), want empty", token, minutes)
	}

	if err := SavePendingCredit(database, "tok-1", 45, 1700000000); err != nil {
		t.Fatalf("SavePendingCredit failed: %v", err)
	}

	token, minutes, err = LoadPendingCredit(database)
	if err != nil {
		t.Fatalf("LoadPendingCredit failed: %v", err)
	}
	if token != "tok-1" || minutes != 45 {
		t.Errorf("LoadPendingCredit = (%q, %d), want (tok-1, 45)", token, minutes)
	}

	if err := ClearPendingCredit(database); err != nil {
		t.Fatalf("ClearPendingCredit failed: %v", err)
	}
	token, _, err = LoadPendingCredit(database)
	if err != nil {
		t.Fatalf("LoadPendingCredit after clear failed: %v", err)
	}
	if token != "" {
		t.Errorf("token = %q after clear, want empty", token)
	}
}

func TestDay_CRUDAndListOrder(t *testing.T) {
	database := testDB(t)

	for _, date := range []string{"2024-01-01", "2024-01-03", "2024-01-02"} {
		if err := InsertDay(database, DayRow{Date: date, CreatedAt: 1, UpdatedAt: 1}); err != nil {
			t.Fatalf("InsertDay(%s) failed: %v", date, err)
		}
	}

	day, err := GetDay(database, "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if day == nil || day.Date != "2024-01-02" {
		t.Fatalf("GetDay = %+v, want 2024-01-02", day)
	}

	day.StudyMinutes = 45
	day.GameBalance = 10
	day.UpdatedAt = 2
	if err := UpdateDay(database, *day); err != nil {
		t.Fatalf("UpdateDay failed: %v", err)
	}

	updated, err := GetDay(database, "2024-01-02")
	if err != nil {
		t.Fatalf("GetDay after update failed: %v", err)
	}
	if updated.StudyMinutes != 45 || updated.GameBalance != 10 {
		t.Errorf("updated = %+v", updated)
	}

	days, err := ListDays(database, 0)
	if err != nil {
		t.Fatalf("ListDays failed: %v", err)
	}
	if len(days) != 3 {
		t.Fatalf("len(days) = %d, want 3", len(days))
	}
	// Descending by date
	want := []string{"2024-01-03", "2024-01-02", "2024-01-01"}
	for i, w := range want {
		if days[i].Date != w {
			t.Errorf("days[%d].Date = %s, want %s", i, days[i].Date, w)
		}
	}

	latest, err := LatestDay(database)
	if err != nil {
		t.Fatalf("LatestDay failed: %v", err)
	}
	if latest.Date != "2024-01-03" {
		t.Errorf("LatestDay = %s, want 2024-01-03", latest.Date)
	}
}

func TestGetDay_Missing(t *testing.T) {
	database := testDB(t)

	day, err := GetDay(database, "2099-01-01")
	if err != nil {
		t.Fatalf("GetDay failed: %v", err)
	}
	if day != nil {
		t.Errorf("GetDay = %+v, want nil", day)
	}

	latest, err := LatestDay(database)
	if err != nil {
		t.Fatalf("LatestDay failed: %v", err)
	}
	if latest != nil {
		t.Errorf("LatestDay = %+v, want nil on empty history", latest)
	}
}

func TestLogs_InsertionOrder(t *testing.T) {
	database := testDB(t)

	if err := InsertDay(database, DayRow{Date: "2024-01-01", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertDay failed: %v", err)
	}

	entries := []LogRow{
		{ID: "01A", Date: "2024-01-01", LoggedAt: 100, DurationMinutes: 45, Note: "morning math"},
		{ID: "01B", Date: "2024-01-01", LoggedAt: 200, DurationMinutes: 30, Note: "english words"},
		{ID: "01C", Date: "2024-01-01", LoggedAt: 300, DurationMinutes: 45, Note: "os textbook"},
	}
	for _, e := range entries {
		if err := InsertLog(database, e); err != nil {
			t.Fatalf("InsertLog failed: %v", err)
		}
	}

	logs, err := LogsForDate(database, "2024-01-01")
	if err != nil {
		t.Fatalf("LogsForDate failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
	for i, e := range entries {
		if logs[i].ID != e.ID || logs[i].Note != e.Note {
			t.Errorf("logs[%d] = %+v, want %+v", i, logs[i], e)
		}
	}
}

func TestDeleteAllHistory(t *testing.T) {
	database := testDB(t)

	if err := InsertDay(database, DayRow{Date: "2024-01-01", CreatedAt: 1, UpdatedAt: 1}); err != nil {
		t.Fatalf("InsertDay failed: %v", err)
	}
	if err := InsertLog(database, LogRow{ID: "01A", Date: "2024-01-01", LoggedAt: 1, DurationMinutes: 45, Note: "x"}); err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}

	if err := DeleteAllHistory(database); err != nil {
		t.Fatalf("DeleteAllHistory failed: %v", err)
	}

	days, err := ListDays(database, 0)
	if err != nil {
		t.Fatalf("ListDays failed: %v", err)
	}
	if len(days) != 0 {
		t.Errorf("len(days) = %d, want 0", len(days))
	}
	logs, err := LogsForDate(database, "2024-01-01")
	if err != nil {
		t.Fatalf("LogsForDate failed: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("len(logs) = %d, want 0", len(logs))
	}
}
