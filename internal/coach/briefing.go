package coach

import (
	"fmt"
	"strings"

	"github.com/hpungsan/levelup/internal/ledger"
)

// DefaultPersona is the coach's system persona when none is configured.
const DefaultPersona = "You are a firm but supportive study coach. You track the user's daily study hours against their goal, call out slipping habits directly, and keep your advice short and actionable."

// BriefingInput carries the ledger data a briefing is built from.
type BriefingInput struct {
	Today       *ledger.DayRecord
	Yesterday   *ledger.DayRecord // nil when no record exists
	TargetHours float64
	Persona     string // empty uses DefaultPersona
}

// Briefing assembles the opening conversation for a coach session: a system
// message carrying the persona plus a data snapshot, and a user message
// asking for an assessment.
func Briefing(in BriefingInput) []Message {
	persona := strings.TrimSpace(in.Persona)
	if persona == "" {
		persona = DefaultPersona
	}

	var b strings.Builder
	b.WriteString("--- Study data ---\n")
	fmt.Fprintf(&b, "Daily study goal: %.1fh.\n", in.TargetHours)
	if in.Today != nil {
		fmt.Fprintf(&b, "Today (%s): studied %.1fh, game balance %dm, game time used %dm.\n",
			in.Today.Date, float64(in.Today.StudyMinutes)/60, in.Today.GameBalance, in.Today.GameUsed)
	}
	if in.Yesterday != nil {
		fmt.Fprintf(&b, "Yesterday (%s): studied %.1fh (goal %.1fh), game time used %dm.",
			in.Yesterday.Date, float64(in.Yesterday.StudyMinutes)/60, in.TargetHours, in.Yesterday.GameUsed)
		if notes := logNotes(in.Yesterday.Logs); notes != "" {
			fmt.Fprintf(&b, " Session notes: %s", notes)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Yesterday: no study recorded.\n")
	}

	system := fmt.Sprintf("%s\n\n%s\nBased on this data, assess whether the user is on track, ahead, or behind, and give a concise analysis with advice or encouragement in your persona.",
		persona, b.String())

	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: "Coach, please assess my current study progress."},
	}
}

func logNotes(logs []ledger.LogEntry) string {
	var notes []string
	for _, lg := range logs {
		if lg.Note != "" {
			notes = append(notes, lg.Note)
		}
	}
	return strings.Join(notes, "; ")
}
