// Package session derives conversation sessions from the flat
// interaction log. Sessions are never persisted: they are recomputed
// from the current log on every change, so they cannot drift out of
// sync with it.
package session

import (
	"time"

	"lifeboard/interaction"
)

// DefaultTitle is used when neither a boundary marker nor a user
// message supplies a session title.
const DefaultTitle = "New chat"

// titleRunes is how much of the first user message seeds a fallback title.
const titleRunes = 40

// Session is a contiguous run of interactions presented as one
// conversation thread. The [Start, End) index ranges of the sessions
// returned by Rebuild always partition the input log exactly: no gaps,
// no overlaps. A session opened by a boundary marker includes that
// marker row; Messages filters marker rows out of the presented view.
type Session struct {
	Start     int
	End       int
	Title     string
	CreatedAt time.Time
}

// Len returns the number of log records in the session, markers included.
func (s Session) Len() int {
	return s.End - s.Start
}

// Rebuild derives the ordered session list from the log.
//
// A system interaction whose metadata carries new_session=true is a
// boundary: it closes the session before it (if that session holds any
// conversation) and opens a new one. Consecutive boundaries collapse
// into the last one, so marker-only gaps never surface as sessions.
// The function is total: malformed metadata simply reads as "not a
// boundary".
func Rebuild(log []interaction.Interaction) []Session {
	if len(log) == 0 {
		return nil
	}

	var sessions []Session
	start := 0
	boundary := false // current session was opened by a boundary marker
	var title string
	var created time.Time

	for i, it := range log {
		if !it.IsBoundary() {
			continue
		}
		if hasConversation(log, start, i) {
			sessions = append(sessions, makeSession(log, start, i, boundary, title, created))
			start = i
		}
		// A boundary following an empty run is absorbed: start stays
		// put so the ranges remain gapless, and the newer marker's
		// title and timestamp win.
		boundary = true
		title = it.Metadata.Title()
		created = it.CreatedAt
	}

	// The trailing session is emitted when it holds conversation, when
	// it was explicitly opened by a boundary (a freshly created empty
	// chat stays visible), or when it is the only candidate.
	if start < len(log) && (hasConversation(log, start, len(log)) || boundary || len(sessions) == 0) {
		sessions = append(sessions, makeSession(log, start, len(log), boundary, title, created))
	}

	return sessions
}

// Messages returns the session's interactions with system records
// filtered out, i.e. what a host presents as the conversation thread.
func Messages(log []interaction.Interaction, s Session) []interaction.Interaction {
	var out []interaction.Interaction
	for _, it := range log[s.Start:s.End] {
		if it.Type == interaction.TypeSystem {
			continue
		}
		out = append(out, it)
	}
	return out
}

// hasConversation reports whether log[start:end) holds any non-system
// interaction.
func hasConversation(log []interaction.Interaction, start, end int) bool {
	for _, it := range log[start:end] {
		if it.Type != interaction.TypeSystem {
			return true
		}
	}
	return false
}

func makeSession(log []interaction.Interaction, start, end int, boundary bool, title string, created time.Time) Session {
	s := Session{Start: start, End: end}

	if boundary {
		s.CreatedAt = created
	} else {
		s.CreatedAt = log[start].CreatedAt
	}

	switch {
	case title != "":
		s.Title = title
	case firstUserSnippet(log, start, end) != "":
		s.Title = firstUserSnippet(log, start, end)
	default:
		s.Title = DefaultTitle
	}
	return s
}

// firstUserSnippet returns the first user message's leading runes, or "".
func firstUserSnippet(log []interaction.Interaction, start, end int) string {
	for _, it := range log[start:end] {
		if it.Type != interaction.TypeUser {
			continue
		}
		runes := []rune(it.Content)
		if len(runes) > titleRunes {
			runes = runes[:titleRunes]
		}
		return string(runes)
	}
	return ""
}
