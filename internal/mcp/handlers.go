package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/levelup/internal/config"
	"github.com/hpungsan/levelup/internal/errors"
	"github.com/hpungsan/levelup/internal/ledger"
	"github.com/hpungsan/levelup/internal/session"
	"github.com/hpungsan/levelup/internal/timer"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	now func() time.Time
}

// NewHandlers creates a new Handlers instance. A nil clock defaults to
// time.Now.
func NewHandlers(db *sql.DB, cfg *config.Config, now func() time.Time) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{db: db, cfg: cfg, now: now}
}

// engine builds a session engine for one tool call. The MCP server is
// passive between calls, so each call reconciles the persisted timer state
// against the wall clock the same way a fresh CLI invocation would.
func (h *Handlers) engine() (*session.Engine, error) {
	return session.New(h.db, h.now)
}

// Request types for each tool

// SwitchRequest represents the arguments for timer_switch.
type SwitchRequest struct {
	Mode string `json:"mode"`
}

// CommitRequest represents the arguments for session_commit.
type CommitRequest struct {
	Note    string `json:"note,omitempty"`
	Manual  bool   `json:"manual,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
}

// HistoryRequest represents the arguments for ledger_history.
type HistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ExportRequest represents the arguments for history_export.
type ExportRequest struct {
	Path string `json:"path,omitempty"`
}

// ImportRequest represents the arguments for history_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// statusPayload is the timer_status result shape.
type statusPayload struct {
	*session.State
	Recovered *session.CompletedSession `json:"recovered,omitempty"`
}

// HandleStatus handles the timer_status tool.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}
	st, err := eng.State()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(statusPayload{State: st, Recovered: eng.Recovered()})
}

// HandleSwitch handles the timer_switch tool.
func (h *Handlers) HandleSwitch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SwitchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	mode, err := timer.ParseMode(input.Mode)
	if err != nil {
		return errorResult(err), nil
	}

	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}
	if err := eng.SwitchMode(mode); err != nil {
		return errorResult(err), nil
	}
	st, err := eng.State()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

// HandleStart handles the timer_start tool.
func (h *Handlers) HandleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}
	if err := eng.Start(); err != nil {
		return errorResult(err), nil
	}
	st, err := eng.State()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

// HandlePause handles the timer_pause tool.
func (h *Handlers) HandlePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}
	if err := eng.Pause(); err != nil {
		return errorResult(err), nil
	}
	st, err := eng.State()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

// HandleStop handles the timer_stop tool.
func (h *Handlers) HandleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}
	st, err := eng.Stop()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(st)
}

// HandleCommit handles the session_commit tool.
func (h *Handlers) HandleCommit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[CommitRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}

	var day *ledger.DayRecord
	if input.Manual {
		if input.Minutes <= 0 {
			return errorResult(errors.NewInvalidRequest("manual entries require positive minutes")), nil
		}
		day, err = eng.Ledger().Credit(input.Minutes, input.Note)
	} else {
		day, err = eng.CommitFocusCredit(input.Note)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(day)
}

// HandleDiscard handles the session_discard tool.
func (h *Handlers) HandleDiscard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eng, err := h.engine()
	if err != nil {
		return errorResult(err), nil
	}
	if err := eng.DiscardPendingCredit(); err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]bool{"discarded": true})
}

// HandleToday handles the ledger_today tool.
func (h *Handlers) HandleToday(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	day, err := ledger.New(h.db, h.now).Today()
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(day)
}

// HandleHistory handles the ledger_history tool.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must not be negative")), nil
	}

	records, err := ledger.New(h.db, h.now).History(input.Limit)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"days": records})
}

// HandleExport handles the history_export tool.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ledger.New(h.db, h.now).Export(h.cfg, ledger.ExportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// HandleImport handles the history_import tool.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	out, err := ledger.New(h.db, h.now).Import(h.cfg, ledger.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(out)
}

// decode round-trips the tool call's argument map through JSON into the
// handler's request struct, so field types are coerced the same way the
// wire payload was.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	args := req.GetArguments()
	b, err := json.Marshal(args)
	if err != nil {
		return result, fmt.Errorf("marshal args: %w", err)
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal args: %w", err)
	}
	return result, nil
}

// errorResult builds an error result with a structured error payload.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if lvlErr, ok := err.(*errors.LevelError); ok {
		errorObj := map[string]any{
			"code":    lvlErr.Code,
			"message": lvlErr.Message,
			"status":  lvlErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if lvlErr.Code != errors.ErrInternal && lvlErr.Code != errors.ErrStorageFailure && lvlErr.Details != nil {
			errorObj["details"] = lvlErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult builds a success result with JSON content.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
