package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hpungsan/levelup/internal/config"
	"github.com/hpungsan/levelup/internal/db"
	"github.com/hpungsan/levelup/internal/errors"
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Days int `json:"days"`
	Logs int `json:"logs"`
}

// importRecord is a DayRecord line paired with the header marker, so a
// header accidentally appearing mid-file is detected rather than imported.
type importRecord struct {
	DayRecord
	LevelupExport bool `json:"_levelup_export"`
}

// Import restores day history from a JSONL backup file. The whole file is
// parsed and validated before anything is written; a single malformed line
// rejects the import and leaves the existing history untouched. On success
// the existing history is replaced wholesale inside one transaction.
func (l *Ledger) Import(cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.LevelError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open backup file: %w", err))
	}
	defer file.Close()

	records, err := parseBackupFile(file)
	if err != nil {
		return nil, err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := db.DeleteAllHistory(tx); err != nil {
		return nil, err
	}

	nowUnix := l.now().Unix()
	logCount := 0
	for _, rec := range records {
		row := db.DayRow{
			Date:         rec.Date,
			StudyMinutes: rec.StudyMinutes,
			GameBalance:  rec.GameBalance,
			GameUsed:     rec.GameUsed,
			CreatedAt:    nowUnix,
			UpdatedAt:    nowUnix,
		}
		if err := db.InsertDay(tx, row); err != nil {
			return nil, err
		}
		for _, lg := range rec.Logs {
			id := lg.ID
			if id == "" {
				id = newLogID(l.now())
			}
			entry := db.LogRow{
				ID:              id,
				Date:            rec.Date,
				LoggedAt:        lg.LoggedAt,
				DurationMinutes: lg.DurationMinutes,
				Note:            lg.Note,
			}
			if err := db.InsertLog(tx, entry); err != nil {
				return nil, err
			}
			logCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return &ImportOutput{Days: len(records), Logs: logCount}, nil
}

// parseBackupFile reads and validates every line of a backup file.
func parseBackupFile(file io.Reader) ([]DayRecord, error) {
	var records []DayRecord
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec importRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, errors.NewMalformedHistory(fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
		}
		if rec.LevelupExport {
			if lineNum != 1 {
				return nil, errors.NewMalformedHistory(fmt.Sprintf("line %d: unexpected header line", lineNum))
			}
			continue
		}
		if err := validateDayRecord(rec.DayRecord); err != nil {
			return nil, errors.NewMalformedHistory(fmt.Sprintf("line %d: %v", lineNum, err))
		}
		if seen[rec.Date] {
			return nil, errors.NewMalformedHistory(fmt.Sprintf("line %d: duplicate date %s", lineNum, rec.Date))
		}
		seen[rec.Date] = true
		records = append(records, rec.DayRecord)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewMalformedHistory(fmt.Sprintf("failed to read file: %v", err))
	}

	return records, nil
}

func validateDayRecord(rec DayRecord) error {
	if _, err := time.Parse("2006-01-02", rec.Date); err != nil {
		return fmt.Errorf("date must be formatted as YYYY-MM-DD, got %q", rec.Date)
	}
	if rec.StudyMinutes < 0 {
		return fmt.Errorf("study_minutes must not be negative")
	}
	if rec.GameBalance < 0 {
		return fmt.Errorf("game_balance must not be negative")
	}
	if rec.GameUsed < 0 {
		return fmt.Errorf("game_used must not be negative")
	}
	for i, lg := range rec.Logs {
		if lg.DurationMinutes <= 0 {
			return fmt.Errorf("log %d: duration_minutes must be positive", i)
		}
		if lg.LoggedAt < 0 {
			return fmt.Errorf("log %d: logged_at must not be negative", i)
		}
	}
	return nil
}
