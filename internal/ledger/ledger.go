// Package ledger tracks the per-day study/game currency and the session log.
//
// All mutations run inside a transaction so the day aggregate and its log
// entries never drift apart. Days roll lazily: the first operation on a new
// date creates the day row, carrying forward yesterday's game balance when
// it is positive.
package ledger

import (
	"crypto/rand"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/levelup/internal/db"
	"github.com/hpungsan/levelup/internal/errors"
	"github.com/hpungsan/levelup/internal/timer"
)

// LogEntry is one completed or manually recorded study session.
type LogEntry struct {
	ID              string `json:"id"`
	LoggedAt        int64  `json:"logged_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Note            string `json:"note,omitempty"`
}

// DayRecord is one calendar day's aggregate plus its session log.
type DayRecord struct {
	Date         string     `json:"date"`
	StudyMinutes int        `json:"study_minutes"`
	GameBalance  int        `json:"game_balance"`
	GameUsed     int        `json:"game_used"`
	Logs         []LogEntry `json:"logs,omitempty"`
}

// Ledger mediates all reads and writes of day records.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Ledger over database. now supplies the clock; pass
// time.Now outside of tests.
func New(database *sql.DB, now func() time.Time) *Ledger {
	return &Ledger{db: database, now: now}
}

// Date returns the current calendar date in local time, formatted as
// an ISO date (2006-01-02). This is the ledger's notion of "today".
func (l *Ledger) Date() string {
	return l.now().Format("2006-01-02")
}

// Credit records a finished study session: minutes are added to today's
// study total, the earned game minutes (2/9 of the studied minutes) are
// added to the balance, and a log entry is appended. The note must not be
// empty: every credit carries a human-entered justification.
func (l *Ledger) Credit(minutes int, note string) (*DayRecord, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := l.CreditTx(tx, minutes, note); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return l.Today()
}

// CreditTx is Credit running inside a caller-owned transaction, for callers
// that must pair the credit with other writes atomically.
func (l *Ledger) CreditTx(tx db.DBTX, minutes int, note string) error {
	if minutes <= 0 {
		return errors.NewInvalidRequest("minutes must be positive")
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return errors.NewInvalidRequest("a session note is required")
	}

	day, err := l.ensureDay(tx)
	if err != nil {
		return err
	}

	day.StudyMinutes += minutes
	day.GameBalance += timer.EarnedMinutes(minutes)
	day.UpdatedAt = l.now().Unix()
	if err := db.UpdateDay(tx, *day); err != nil {
		return err
	}

	entry := db.LogRow{
		ID:              newLogID(l.now()),
		Date:            day.Date,
		LoggedAt:        l.now().Unix(),
		DurationMinutes: minutes,
		Note:            note,
	}
	return db.InsertLog(tx, entry)
}

// Debit spends minutes of game balance. The balance clamps at zero rather
// than going negative; the full elapsed time is still counted as used.
func (l *Ledger) Debit(minutes int) (*DayRecord, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := l.DebitTx(tx, minutes); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return l.Today()
}

// DebitTx is Debit running inside a caller-owned transaction.
func (l *Ledger) DebitTx(tx db.DBTX, minutes int) error {
	if minutes < 0 {
		return errors.NewInvalidRequest("minutes must not be negative")
	}

	day, err := l.ensureDay(tx)
	if err != nil {
		return err
	}

	day.GameUsed += minutes
	day.GameBalance -= minutes
	if day.GameBalance < 0 {
		day.GameBalance = 0
	}
	day.UpdatedAt = l.now().Unix()
	return db.UpdateDay(tx, *day)
}

// Today returns today's record, creating it (rolling the day) if this is
// the first operation on a new date.
func (l *Ledger) Today() (*DayRecord, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	day, err := l.ensureDay(tx)
	if err != nil {
		return nil, err
	}
	logs, err := db.LogsForDate(tx, day.Date)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return toRecord(*day, logs), nil
}

// Balance returns today's game balance in minutes.
func (l *Ledger) Balance() (int, error) {
	day, err := l.Today()
	if err != nil {
		return 0, err
	}
	return day.GameBalance, nil
}

// Day returns the record for a specific date, or NotFound if the ledger
// has never seen that date.
func (l *Ledger) Day(date string) (*DayRecord, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, errors.NewInvalidRequest("date must be formatted as YYYY-MM-DD")
	}
	row, err := db.GetDay(l.db, date)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, errors.NewNotFound(date)
	}
	logs, err := db.LogsForDate(l.db, date)
	if err != nil {
		return nil, err
	}
	return toRecord(*row, logs), nil
}

// History returns up to limit day records, newest first, each with its
// session log. limit <= 0 means no limit.
func (l *Ledger) History(limit int) ([]DayRecord, error) {
	rows, err := db.ListDays(l.db, limit)
	if err != nil {
		return nil, err
	}
	records := make([]DayRecord, 0, len(rows))
	for _, row := range rows {
		logs, err := db.LogsForDate(l.db, row.Date)
		if err != nil {
			return nil, err
		}
		records = append(records, *toRecord(row, logs))
	}
	return records, nil
}

// ensureDay fetches today's row, creating it if absent. A new day starts
// with yesterday's balance when positive; deficits never carry forward.
func (l *Ledger) ensureDay(tx db.DBTX) (*db.DayRow, error) {
	today := l.Date()
	day, err := db.GetDay(tx, today)
	if err != nil {
		return nil, err
	}
	if day != nil {
		return day, nil
	}

	carry := 0
	latest, err := db.LatestDay(tx)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.GameBalance > 0 {
		carry = latest.GameBalance
	}

	nowUnix := l.now().Unix()
	day = &db.DayRow{
		Date:        today,
		GameBalance: carry,
		CreatedAt:   nowUnix,
		UpdatedAt:   nowUnix,
	}
	if err := db.InsertDay(tx, *day); err != nil {
		return nil, err
	}
	return day, nil
}

func toRecord(row db.DayRow, logs []db.LogRow) *DayRecord {
	rec := &DayRecord{
		Date:         row.Date,
		StudyMinutes: row.StudyMinutes,
		GameBalance:  row.GameBalance,
		GameUsed:     row.GameUsed,
	}
	for _, lg := range logs {
		rec.Logs = append(rec.Logs, LogEntry{
			ID:              lg.ID,
			LoggedAt:        lg.LoggedAt,
			DurationMinutes: lg.DurationMinutes,
			Note:            lg.Note,
		})
	}
	return rec
}

// newLogID generates a ULID for a log entry. ULIDs sort by creation time,
// which keeps log listings stable without a separate sequence column.
func newLogID(now time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}
