package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var statusToolDef = mcp.NewTool("timer_status",
	mcp.WithDescription("Get the current timer state: mode, phase, time remaining, game balance, and any uncommitted focus credit."),
)

var switchToolDef = mcp.NewTool("timer_switch",
	mcp.WithDescription("Switch the timer mode. Gaming sessions are sized by the current game balance; switching to gaming with an empty balance is refused."),
	mcp.WithString("mode",
		mcp.Required(),
		mcp.Description("Target mode: focus, break, or gaming."),
		mcp.Enum("focus", "break", "gaming"),
	),
)

var startToolDef = mcp.NewTool("timer_start",
	mcp.WithDescription("Start the countdown. Blocked while a finished focus session awaits commit or discard."),
)

var pauseToolDef = mcp.NewTool("timer_pause",
	mcp.WithDescription("Pause a running countdown. Paused time does not advance, even across restarts."),
)

var stopToolDef = mcp.NewTool("timer_stop",
	mcp.WithDescription("Abort the countdown and reset it. Focus progress is forfeited; elapsed gaming time is debited from the balance."),
)

var commitToolDef = mcp.NewTool("session_commit",
	mcp.WithDescription("Commit the finished focus session to the ledger, earning game minutes at the 4.5:1 rate. With manual=true, records a session that was not timed."),
	mcp.WithString("note",
		mcp.Required(),
		mcp.Description("What was studied. Stored in the session log; must not be empty."),
	),
	mcp.WithBoolean("manual",
		mcp.Description("Record a manual backlog entry instead of committing the staged credit."),
	),
	mcp.WithNumber("minutes",
		mcp.Description("Studied minutes for a manual entry. Required when manual=true."),
	),
)

var discardToolDef = mcp.NewTool("session_discard",
	mcp.WithDescription("Discard the finished focus session without crediting anything."),
)

var todayToolDef = mcp.NewTool("ledger_today",
	mcp.WithDescription("Get today's record: study minutes, game balance, game time used, and the session log."),
)

var historyToolDef = mcp.NewTool("ledger_history",
	mcp.WithDescription("List day records, newest first, each with its session log."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of days to return. 0 or omitted returns all."),
	),
)

var exportToolDef = mcp.NewTool("history_export",
	mcp.WithDescription("Export the full day history to a JSONL backup file."),
	mcp.WithString("path",
		mcp.Description("Destination path (.jsonl, inside an allowed directory). Defaults to a timestamped file in ~/.levelup/backups."),
	),
)

var importToolDef = mcp.NewTool("history_import",
	mcp.WithDescription("Restore day history from a JSONL backup file, replacing the existing history. The file is fully validated before anything is written."),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Backup file to restore (.jsonl, inside an allowed directory)."),
	),
)
