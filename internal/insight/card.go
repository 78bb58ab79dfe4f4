package insight

import (
	"strings"

	"callbridge/internal/phone"
	"callbridge/internal/toolcall"
)

// Card is the agent-facing context surfaced alongside an inbound ring.
type Card struct {
	Title string
	Lines []string
}

// BuildCard renders the matched transfer entry into display lines for the
// answering agent. Absent fields are omitted rather than rendered empty.
func BuildCard(entry toolcall.LogEntry) Card {
	title := "Incoming transfer"
	if entry.CallerName != "" {
		title = "Incoming transfer: " + entry.CallerName
	}

	var lines []string
	if entry.CallbackNumber != "" {
		n := phone.Normalize(entry.CallbackNumber)
		if suffix := phone.Suffix(n, 4); suffix != "" {
			lines = append(lines, "Caller number ending "+suffix)
		}
	}
	switch entry.Urgency {
	case toolcall.UrgencyCritical:
		lines = append(lines, "Urgency: CRITICAL")
	case toolcall.UrgencyUrgent:
		lines = append(lines, "Urgency: urgent")
	}
	if reason := reasonFromParams(entry); reason != "" {
		lines = append(lines, "Reason: "+reason)
	}
	return Card{Title: title, Lines: lines}
}

func (c Card) Content() string {
	if len(c.Lines) == 0 {
		return c.Title
	}
	return c.Title + "\n" + strings.Join(c.Lines, "\n")
}

func reasonFromParams(entry toolcall.LogEntry) string {
	if entry.Parameters == nil {
		return ""
	}
	if v, ok := entry.Parameters["reason"].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
