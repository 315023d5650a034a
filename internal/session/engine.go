// Package session orchestrates the timer, the snapshot store, and the
// currency ledger into one durable study-session workflow.
//
// Every Engine starts by reconciling the persisted snapshot against the wall
// clock, so a countdown that ran out while no process was watching it is
// settled exactly once, on the next launch. Completion side effects and
// snapshot consumption always share a transaction.
package session

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/levelup/internal/db"
	"github.com/hpungsan/levelup/internal/errors"
	"github.com/hpungsan/levelup/internal/ledger"
	"github.com/hpungsan/levelup/internal/timer"
)

// State is the externally visible session state.
type State struct {
	Mode           timer.Mode  `json:"mode"`
	Phase          timer.Phase `json:"phase"`
	TimeLeft       int         `json:"time_left"`
	InitialTime    int         `json:"initial_time"`
	BalanceMinutes int         `json:"balance_minutes"`
	// PendingMinutes is the size of an uncommitted focus credit, 0 when none.
	PendingMinutes int `json:"pending_minutes,omitempty"`
}

// CompletedSession describes a countdown that just ran out, either live
// during Run or retroactively during reconciliation.
type CompletedSession struct {
	Mode    timer.Mode
	Minutes int
}

// Engine ties the timer machine to its durable snapshot and the ledger.
// It is not safe for concurrent use; each process owns one Engine.
type Engine struct {
	db      *sql.DB
	machine *timer.Machine
	ledger  *ledger.Ledger
	now     func() time.Time

	// recovered is set when New settled an expired countdown, so callers
	// can report what happened while the process was away.
	recovered *CompletedSession
}

// New builds an Engine and reconciles any persisted snapshot against the
// wall clock. A malformed snapshot is discarded and the engine starts from
// cold-start defaults rather than refusing to run.
func New(database *sql.DB, now func() time.Time) (*Engine, error) {
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		db:      database,
		machine: timer.NewMachine(now),
		ledger:  ledger.New(database, now),
		now:     now,
	}
	if err := e.reconcile(); err != nil {
		return nil, err
	}
	return e, nil
}

// Ledger exposes the engine's ledger for read paths and manual entries.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Recovered reports the countdown settled during startup reconciliation,
// or nil if nothing expired while the process was away.
func (e *Engine) Recovered() *CompletedSession { return e.recovered }

// reconcile loads the persisted snapshot and routes it through the recovery
// math. Runs once per Engine, before any operation.
func (e *Engine) reconcile() error {
	snap, err := db.LoadSnapshot(e.db)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	result, err := timer.Reconcile(*snap, e.now())
	if err != nil {
		if errors.Is(err, errors.ErrMalformedSnapshot) {
			return db.ClearSnapshot(e.db)
		}
		return err
	}

	switch result.Kind {
	case timer.ResumeComplete:
		completed, err := e.settleExpiry(snap.Mode, snap.InitialTime)
		if err != nil {
			return err
		}
		e.recovered = completed
		return nil
	case timer.ResumeRunning:
		if err := e.machine.Restore(result.Snapshot); err != nil {
			return err
		}
		// Persist the re-stamped snapshot so a crash before the first
		// tick measures from now, not from the stale stamp.
		return e.persist()
	default:
		return e.machine.Restore(result.Snapshot)
	}
}

// State reports the current session state including the ledger balance.
func (e *Engine) State() (*State, error) {
	balance, err := e.ledger.Balance()
	if err != nil {
		return nil, err
	}
	_, pending, err := db.LoadPendingCredit(e.db)
	if err != nil {
		return nil, err
	}
	return &State{
		Mode:           e.machine.Mode(),
		Phase:          e.machine.Phase(),
		TimeLeft:       e.machine.TimeLeft(),
		InitialTime:    e.machine.InitialTime(),
		BalanceMinutes: balance,
		PendingMinutes: pending,
	}, nil
}

// SwitchMode changes the countdown mode. Gaming durations come from the
// current balance; switching to gaming with an empty balance falls back to
// focus and reports INSUFFICIENT_BALANCE.
func (e *Engine) SwitchMode(mode timer.Mode) error {
	balance, err := e.ledger.Balance()
	if err != nil {
		return err
	}
	switchErr := e.machine.SwitchMode(mode, balance)
	// The fallback-to-focus state still needs to be persisted.
	if err := e.persist(); err != nil {
		return err
	}
	return switchErr
}

// Start begins the countdown. An uncommitted focus credit blocks starting:
// the finished session must be committed or discarded first, so credits
// cannot silently pile up or get lost.
func (e *Engine) Start() error {
	token, _, err := db.LoadPendingCredit(e.db)
	if err != nil {
		return err
	}
	if token != "" {
		return errors.NewPendingCredit(token)
	}

	balance, err := e.ledger.Balance()
	if err != nil {
		return err
	}
	if err := e.machine.Start(balance); err != nil {
		return err
	}
	return e.persist()
}

// Pause freezes the countdown.
func (e *Engine) Pause() error {
	if err := e.machine.Pause(); err != nil {
		return err
	}
	return e.persist()
}

// Stop aborts the countdown. Focus progress is forfeited; gaming time
// actually played is debited from the balance, rounded up to whole minutes.
// The debit and the snapshot write share a transaction.
func (e *Engine) Stop() (*State, error) {
	mode := e.machine.Mode()
	elapsed, err := e.machine.Stop()
	if err != nil {
		return nil, err
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if mode == timer.ModeGaming && elapsed > 0 {
		// Rounded up: a partial minute of play still counts against the
		// balance.
		if err := e.ledger.DebitTx(tx, (elapsed+59)/60); err != nil {
			return nil, err
		}
	}
	if err := db.SaveSnapshot(tx, e.machine.Snapshot(), e.now().Unix()); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return e.State()
}

// Tick advances a running countdown by one second. When the countdown
// reaches zero the completion side effects run and the returned session
// describes what finished.
func (e *Engine) Tick() (*CompletedSession, error) {
	expired, err := e.machine.Tick()
	if err != nil {
		return nil, err
	}
	if !expired {
		return nil, e.persist()
	}

	mode, initialTime, err := e.machine.FinishExpired()
	if err != nil {
		return nil, err
	}
	return e.settleCompletion(mode, initialTime)
}

// settleExpiry handles a countdown that expired while unobserved: it runs
// the completion side effects and settles the machine to focus defaults.
func (e *Engine) settleExpiry(mode timer.Mode, initialTime int) (*CompletedSession, error) {
	e.machine.Expire(mode, initialTime)
	if _, _, err := e.machine.FinishExpired(); err != nil {
		return nil, err
	}
	return e.settleCompletion(mode, initialTime)
}

// settleCompletion applies the completion side effects for a finished
// countdown and consumes the snapshot, all in one transaction:
//
//	focus:  stage a pending credit for the session's minutes
//	break:  no ledger effect
//	gaming: debit the full session from the balance
func (e *Engine) settleCompletion(mode timer.Mode, initialTime int) (*CompletedSession, error) {
	minutes := initialTime / 60

	tx, err := e.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	switch mode {
	case timer.ModeFocus:
		if err := db.SavePendingCredit(tx, uuid.NewString(), minutes, e.now().Unix()); err != nil {
			return nil, err
		}
	case timer.ModeGaming:
		if err := e.ledger.DebitTx(tx, minutes); err != nil {
			return nil, err
		}
	}
	if err := db.SaveSnapshot(tx, e.machine.Snapshot(), e.now().Unix()); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return &CompletedSession{Mode: mode, Minutes: minutes}, nil
}

// CommitFocusCredit turns the staged focus credit into a ledger entry with
// the given note. The credit and its consumption share a transaction, so a
// crash either leaves the credit staged or fully applied, never both.
func (e *Engine) CommitFocusCredit(note string) (*ledger.DayRecord, error) {
	tx, err := e.db.Begin()
	if err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	defer tx.Rollback() //nolint:errcheck

	token, minutes, err := db.LoadPendingCredit(tx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.NewInvalidRequest("no finished session awaiting commit")
	}

	if err := e.ledger.CreditTx(tx, minutes, note); err != nil {
		return nil, err
	}
	if err := db.ClearPendingCredit(tx); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailure(err)
	}
	return e.ledger.Today()
}

// DiscardPendingCredit drops the staged focus credit without crediting.
func (e *Engine) DiscardPendingCredit() error {
	token, _, err := db.LoadPendingCredit(e.db)
	if err != nil {
		return err
	}
	if token == "" {
		return errors.NewInvalidRequest("no finished session awaiting commit")
	}
	return db.ClearPendingCredit(e.db)
}

// persist writes the machine's current snapshot to the durable slot.
func (e *Engine) persist() error {
	return db.SaveSnapshot(e.db, e.machine.Snapshot(), e.now().Unix())
}

// Run drives a live countdown with a one-second ticker until the countdown
// completes, ctx is cancelled, or an error occurs. onTick is called after
// every tick with the remaining seconds; both callbacks may be nil.
func (e *Engine) Run(ctx context.Context, onTick func(timeLeft int), onDone func(CompletedSession)) error {
	if e.machine.Phase() != timer.PhaseRunning {
		if err := e.Start(); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.Pause()
		case <-ticker.C:
			completed, err := e.Tick()
			if err != nil {
				return err
			}
			if completed != nil {
				if onDone != nil {
					onDone(*completed)
				}
				return nil
			}
			if onTick != nil {
				onTick(e.machine.TimeLeft())
			}
		}
	}
}
