package db

import (
	"database/sql"

	"github.com/hpungsan/levelup/internal/errors"
	"github.com/hpungsan/levelup/internal/timer"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so ledger mutations can run
// inside a transaction while reads go straight to the pool.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

// DayRow is the persisted form of one calendar day's aggregate.
type DayRow struct {
	Date         string
	StudyMinutes int
	GameBalance  int
	GameUsed     int
	CreatedAt    int64
	UpdatedAt    int64
}

// LogRow is one persisted session log entry.
type LogRow struct {
	ID              string
	Date            string
	LoggedAt        int64
	DurationMinutes int
	Note            string
}

// SaveSnapshot overwrites the single timer snapshot slot.
func SaveSnapshot(q DBTX, snap timer.Snapshot, nowUnix int64) error {
	var savedAt sql.NullInt64
	if snap.SavedAtMs != nil {
		savedAt = sql.NullInt64{Int64: *snap.SavedAtMs, Valid: true}
	}

	_, err := q.Exec(`
		INSERT INTO timer_snapshot (slot, mode, is_active, time_left, initial_time, saved_at_ms, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			mode = excluded.mode,
			is_active = excluded.is_active,
			time_left = excluded.time_left,
			initial_time = excluded.initial_time,
			saved_at_ms = excluded.saved_at_ms,
			updated_at = excluded.updated_at
	`, string(snap.Mode), boolToInt(snap.IsActive), snap.TimeLeft, snap.InitialTime, savedAt, nowUnix)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// LoadSnapshot reads the timer snapshot slot. Returns (nil, nil) when no
// snapshot has been written. The snapshot is returned unvalidated; callers
// decide how to treat a malformed one.
func LoadSnapshot(q DBTX) (*timer.Snapshot, error) {
	var (
		mode     string
		isActive int
		snap     timer.Snapshot
		savedAt  sql.NullInt64
	)
	err := q.QueryRow(`
		SELECT mode, is_active, time_left, initial_time, saved_at_ms
		FROM timer_snapshot WHERE slot = 1
	`).Scan(&mode, &isActive, &snap.TimeLeft, &snap.InitialTime, &savedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}

	snap.Mode = timer.Mode(mode)
	snap.IsActive = isActive != 0
	if savedAt.Valid {
		ms := savedAt.Int64
		snap.SavedAtMs = &ms
	}
	return &snap, nil
}

// ClearSnapshot deletes the timer snapshot slot.
func ClearSnapshot(q DBTX) error {
	if _, err := q.Exec(`DELETE FROM timer_snapshot WHERE slot = 1`); err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// SavePendingCredit records an unresolved focus credit. There is at most one
// at a time; writing replaces any stale row.
func SavePendingCredit(q DBTX, token string, minutes int, createdAt int64) error {
	_, err := q.Exec(`
		INSERT INTO pending_credit (slot, token, minutes, created_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			token = excluded.token,
			minutes = excluded.minutes,
			created_at = excluded.created_at
	`, token, minutes, createdAt)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// LoadPendingCredit reads the pending focus credit, if any.
// Returns ("", 0, nil) when none is outstanding.
func LoadPendingCredit(q DBTX) (token string, minutes int, err error) {
	err = q.QueryRow(`SELECT token, minutes FROM pending_credit WHERE slot = 1`).Scan(&token, &minutes)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, errors.NewStorageFailure(err)
	}
	return token, minutes, nil
}

// ClearPendingCredit removes the pending focus credit.
func ClearPendingCredit(q DBTX) error {
	if _, err := q.Exec(`DELETE FROM pending_credit WHERE slot = 1`); err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// GetDay reads one day's aggregate. Returns (nil, nil) when the date has no
// record.
func GetDay(q DBTX, date string) (*DayRow, error) {
	var row DayRow
	err := q.QueryRow(`
		SELECT date, study_minutes, game_balance, game_used, created_at, updated_at
		FROM days WHERE date = ?
	`, date).Scan(&row.Date, &row.StudyMinutes, &row.GameBalance, &row.GameUsed, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return &row, nil
}

// LatestDay reads the most recent day record, if any. Used to carry the
// closing balance forward when a new date rolls over.
func LatestDay(q DBTX) (*DayRow, error) {
	var row DayRow
	err := q.QueryRow(`
		SELECT date, study_minutes, game_balance, game_used, created_at, updated_at
		FROM days ORDER BY date DESC LIMIT 1
	`).Scan(&row.Date, &row.StudyMinutes, &row.GameBalance, &row.GameUsed, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return &row, nil
}

// InsertDay creates a new day record.
func InsertDay(q DBTX, row DayRow) error {
	_, err := q.Exec(`
		INSERT INTO days (date, study_minutes, game_balance, game_used, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.Date, row.StudyMinutes, row.GameBalance, row.GameUsed, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// UpdateDay overwrites an existing day record's counters.
func UpdateDay(q DBTX, row DayRow) error {
	res, err := q.Exec(`
		UPDATE days
		SET study_minutes = ?, game_balance = ?, game_used = ?, updated_at = ?
		WHERE date = ?
	`, row.StudyMinutes, row.GameBalance, row.GameUsed, row.UpdatedAt, row.Date)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	if affected == 0 {
		return errors.NewNotFound(row.Date)
	}
	return nil
}

// ListDays returns day records sorted descending by date. limit <= 0 means
// no limit.
func ListDays(q DBTX, limit int) ([]DayRow, error) {
	query := `
		SELECT date, study_minutes, game_balance, game_used, created_at, updated_at
		FROM days ORDER BY date DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = q.Query(query+` LIMIT ?`, limit)
	} else {
		rows, err = q.Query(query)
	}
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var days []DayRow
	for rows.Next() {
		var row DayRow
		if err := rows.Scan(&row.Date, &row.StudyMinutes, &row.GameBalance, &row.GameUsed, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		days = append(days, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return days, nil
}

// InsertLog appends one session log entry. Entries are append-only;
// insertion order is chronological order.
func InsertLog(q DBTX, row LogRow) error {
	_, err := q.Exec(`
		INSERT INTO session_logs (id, date, logged_at, duration_minutes, note)
		VALUES (?, ?, ?, ?, ?)
	`, row.ID, row.Date, row.LoggedAt, row.DurationMinutes, row.Note)
	if err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

// LogsForDate returns one day's log entries in insertion order.
func LogsForDate(q DBTX, date string) ([]LogRow, error) {
	rows, err := q.Query(`
		SELECT id, date, logged_at, duration_minutes, note
		FROM session_logs WHERE date = ?
		ORDER BY logged_at, id
	`, date)
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer rows.Close()

	var logs []LogRow
	for rows.Next() {
		var row LogRow
		if err := rows.Scan(&row.ID, &row.Date, &row.LoggedAt, &row.DurationMinutes, &row.Note); err != nil {
			return nil, errors.NewStorageFailure(err)
		}
		logs = append(logs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return logs, nil
}

// DeleteAllHistory removes every day record and log entry. Used by bulk
// import, which is a full overwrite.
func DeleteAllHistory(q DBTX) error {
	if _, err := q.Exec(`DELETE FROM session_logs`); err != nil {
		return errors.NewStorageFailure(err)
	}
	if _, err := q.Exec(`DELETE FROM days`); err != nil {
		return errors.NewStorageFailure(err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
