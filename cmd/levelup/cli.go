package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/levelup/internal/coach"
	"github.com/hpungsan/levelup/internal/config"
	"github.com/hpungsan/levelup/internal/errors"
	"github.com/hpungsan/levelup/internal/ledger"
	"github.com/hpungsan/levelup/internal/session"
	"github.com/hpungsan/levelup/internal/timer"
	"github.com/hpungsan/levelup/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "levelup",
		Usage:   "Study timer that converts focus time into game time",
		Version: Version,
		Commands: []*cli.Command{
			statusCmd(db),
			switchCmd(db),
			startCmd(db),
			pauseCmd(db),
			stopCmd(db),
			runCmd(db),
			commitCmd(db),
			discardCmd(db),
			todayCmd(db),
			historyCmd(db),
			exportCmd(db, cfg),
			importCmd(db, cfg),
			coachCmd(db, cfg),
			serveCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// statusPayload augments the session state with what, if anything, was
// settled during reconciliation.
type statusPayload struct {
	*session.State
	Recovered *recoveredPayload `json:"recovered,omitempty"`
}

type recoveredPayload struct {
	Mode    string `json:"mode"`
	Minutes int    `json:"minutes"`
}

func newEngine(db *sql.DB) (*session.Engine, error) {
	return session.New(db, nil)
}

func statusOf(eng *session.Engine) (*statusPayload, error) {
	state, err := eng.State()
	if err != nil {
		return nil, err
	}
	out := &statusPayload{State: state}
	if rec := eng.Recovered(); rec != nil {
		out.Recovered = &recoveredPayload{Mode: string(rec.Mode), Minutes: rec.Minutes}
	}
	return out, nil
}

// statusCmd creates the status command.
func statusCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current timer state and balance",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			out, err := statusOf(eng)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// switchCmd creates the switch command.
func switchCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "switch",
		Usage:     "Switch the timer mode (focus|break|gaming)",
		ArgsUsage: "<mode>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("mode argument is required: focus, break, or gaming"))
			}
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			mode, err := timer.ParseMode(c.Args().First())
			if err != nil {
				return outputError(err)
			}
			if err := eng.SwitchMode(mode); err != nil {
				return outputError(err)
			}
			out, err := statusOf(eng)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// startCmd creates the start command.
func startCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start or resume the countdown",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			if err := eng.Start(); err != nil {
				return outputError(err)
			}
			out, err := statusOf(eng)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// pauseCmd creates the pause command.
func pauseCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "pause",
		Usage: "Pause the running countdown",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			if err := eng.Pause(); err != nil {
				return outputError(err)
			}
			out, err := statusOf(eng)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// stopCmd creates the stop command.
func stopCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "Stop the countdown and reset it (gaming time used is deducted)",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			state, err := eng.Stop()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(state)
		},
	}
}

// runCmd creates the run command, which keeps the countdown live in the
// foreground until it completes or the user interrupts it.
func runCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the countdown in the foreground (Ctrl-C pauses)",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			state, err := eng.State()
			if err != nil {
				return outputError(err)
			}
			fmt.Printf("%s session, %s remaining\n", state.Mode, formatCountdown(state.TimeLeft))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var done *session.CompletedSession
			err = eng.Run(ctx,
				func(timeLeft int) {
					fmt.Printf("\r  %s   ", formatCountdown(timeLeft))
				},
				func(completed session.CompletedSession) {
					done = &completed
				},
			)
			fmt.Println()
			if err != nil {
				return outputError(err)
			}

			if done == nil {
				fmt.Println("paused")
				return nil
			}
			switch done.Mode {
			case "focus":
				fmt.Printf("focus session complete: %d minutes studied\n", done.Minutes)
				fmt.Println("run 'levelup commit' to bank it, or 'levelup discard' to drop it")
			case "gaming":
				fmt.Printf("gaming session complete: %d minutes deducted\n", done.Minutes)
			default:
				fmt.Println("break complete")
			}
			return nil
		},
	}
}

// commitCmd creates the commit command.
func commitCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "commit",
		Usage: "Bank a finished focus session into the ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "note", Aliases: []string{"m"}, Usage: "What the session was spent on (required)"},
			&cli.BoolFlag{Name: "manual", Usage: "Log study time done off the timer"},
			&cli.IntFlag{Name: "minutes", Usage: "Minutes studied (required with --manual)"},
		},
		Action: func(c *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}

			if c.Bool("manual") {
				minutes := c.Int("minutes")
				if minutes <= 0 {
					return outputError(errors.NewInvalidRequest("--manual requires --minutes greater than zero"))
				}
				day, err := eng.Ledger().Credit(minutes, c.String("note"))
				if err != nil {
					return outputError(err)
				}
				return outputJSON(day)
			}

			day, err := eng.CommitFocusCredit(c.String("note"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(day)
		},
	}
}

// discardCmd creates the discard command.
func discardCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "discard",
		Usage: "Drop a finished focus session without banking it",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			if err := eng.DiscardPendingCredit(); err != nil {
				return outputError(err)
			}
			out, err := statusOf(eng)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// todayCmd creates the today command.
func todayCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "today",
		Usage: "Show today's ledger entry",
		Action: func(_ *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			day, err := eng.Ledger().Today()
			if err != nil {
				return outputError(err)
			}
			return outputJSON(day)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List past days, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 30, Usage: "Maximum days to return (0 for all)"},
		},
		Action: func(c *cli.Context) error {
			limit := c.Int("limit")
			if limit < 0 {
				return outputError(errors.NewInvalidRequest("limit must not be negative"))
			}
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			days, err := eng.Ledger().History(limit)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"days": days})
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export history to a JSONL backup file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (defaults to ~/.levelup/backups)"},
		},
		Action: func(c *cli.Context) error {
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			out, err := eng.Ledger().Export(cfg, ledger.ExportInput{Path: c.String("path")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// importCmd creates the import command.
func importCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace history from a JSONL backup file",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return outputError(errors.NewInvalidRequest("path argument is required"))
			}
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			out, err := eng.Ledger().Import(cfg, ledger.ImportInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(out)
		},
	}
}

// coachCmd creates the coach command.
func coachCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "coach",
		Usage: "Ask the AI coach to assess your study progress",
		Subcommands: []*cli.Command{
			{
				Name:  "models",
				Usage: "List models available from the configured provider",
				Action: func(_ *cli.Context) error {
					client, err := coach.NewClient(cfg)
					if err != nil {
						return outputError(err)
					}
					ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					models, err := client.Models(ctx)
					if err != nil {
						return outputError(err)
					}
					for _, m := range models {
						fmt.Println(m)
					}
					return nil
				},
			},
		},
		Action: func(_ *cli.Context) error {
			client, err := coach.NewClient(cfg)
			if err != nil {
				return outputError(err)
			}
			eng, err := newEngine(db)
			if err != nil {
				return outputError(err)
			}
			led := eng.Ledger()
			today, err := led.Today()
			if err != nil {
				return outputError(err)
			}
			yesterday := previousDay(led, time.Now().AddDate(0, 0, -1).Format("2006-01-02"))

			messages := coach.Briefing(coach.BriefingInput{
				Today:       today,
				Yesterday:   yesterday,
				TargetHours: cfg.TargetHours,
				Persona:     cfg.CoachPersona,
			})
			reply, err := client.Chat(context.Background(), messages)
			if err != nil {
				return outputError(err)
			}
			fmt.Println(reply)
			return nil
		},
	}
}

// previousDay fetches a day record, treating absence as nil.
func previousDay(led *ledger.Ledger, date string) *ledger.DayRecord {
	day, err := led.Day(date)
	if err != nil {
		return nil
	}
	return day
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8642, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			srv := web.NewServer(db, cfg, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// formatCountdown renders seconds as MM:SS, or H:MM:SS past an hour.
func formatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if levelErr, ok := err.(*errors.LevelError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", levelErr.Code, levelErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
