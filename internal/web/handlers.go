package web

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/hpungsan/levelup/internal/config"
	"github.com/hpungsan/levelup/internal/ledger"
	"github.com/hpungsan/levelup/internal/session"
)

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
	now      func() time.Time
}

// HandleToday handles GET /today, the live dashboard.
func (h *Handlers) HandleToday(w http.ResponseWriter, r *http.Request) {
	// A fresh engine reconciles the persisted timer against the wall clock,
	// so a refresh after a session ran out shows it settled.
	eng, err := session.New(h.db, h.now)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	st, err := eng.State()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	day, err := eng.Ledger().Today()
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	progress := 0
	if h.cfg.TargetHours > 0 {
		progress = int(float64(day.StudyMinutes) / 60 / h.cfg.TargetHours * 100)
		if progress > 100 {
			progress = 100
		}
	}

	h.renderer.renderPage(w, r, "today", TodayPageData{
		PageData: PageData{
			Title:   "Today",
			Version: h.renderer.version,
			Nav:     "today",
		},
		State:       st,
		Day:         day,
		Logs:        logViews(day.Logs),
		TargetHours: h.cfg.TargetHours,
		ProgressPct: progress,
		Recovered:   eng.Recovered(),
	})
}

// HandleHistory handles GET /history, the day-by-day record list.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 30)

	days, err := ledger.New(h.db, h.now).History(limit)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "history", HistoryPageData{
		PageData: PageData{
			Title:   "History",
			Version: h.renderer.version,
			Nav:     "history",
		},
		Days: days,
	})
}

// HandleDay handles GET /history/{date}, one day's detail with its log.
func (h *Handlers) HandleDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")

	day, err := ledger.New(h.db, h.now).Day(date)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "day", DayPageData{
		PageData: PageData{
			Title:   day.Date,
			Version: h.renderer.version,
			Nav:     "history",
		},
		Day:  day,
		Logs: logViews(day.Logs),
	})
}

// parseIntParam parses an integer query parameter with a fallback default.
func parseIntParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
