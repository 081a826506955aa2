// Package interaction defines the append-only conversation log: the
// Interaction record, the Store interface, and its remote (REST) and
// local (SQLite) implementations.
//
// Interactions are never edited in place. The only mutations a store
// supports are append and whole-record delete, so a stored record can
// never be corrupted by a concurrent write.
package interaction

import (
	"context"
	"time"
)

// Type classifies an interaction turn.
type Type string

const (
	// TypeUser is a message authored by the user.
	TypeUser Type = "user_message"

	// TypeAssistant is a message authored by the assistant.
	TypeAssistant Type = "assistant_message"

	// TypeSystem is a system-originated record, e.g. a session boundary.
	TypeSystem Type = "system"
)

// Metadata is the free-form metadata mapping attached to an interaction.
// Accessors tolerate missing or malformed values: they read as zero
// values, never as errors.
type Metadata map[string]any

// Known metadata keys.
const (
	MetaNewSession = "new_session"
	MetaTitle      = "title"
	MetaToolCall   = "tool_call"
)

// NewSession reports whether this metadata marks a session boundary.
func (m Metadata) NewSession() bool {
	if m == nil {
		return false
	}
	v, ok := m[MetaNewSession].(bool)
	return ok && v
}

// Title returns the session title carried on a boundary marker, or "".
func (m Metadata) Title() string {
	if m == nil {
		return ""
	}
	s, _ := m[MetaTitle].(string)
	return s
}

// ToolCallInfo records which tool an assistant interaction summarizes.
type ToolCallInfo struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
}

// ToolCall returns the tool call info attached to this interaction, if any.
func (m Metadata) ToolCall() (ToolCallInfo, bool) {
	if m == nil {
		return ToolCallInfo{}, false
	}
	raw, ok := m[MetaToolCall].(map[string]any)
	if !ok {
		return ToolCallInfo{}, false
	}
	var info ToolCallInfo
	info.Name, _ = raw["name"].(string)
	info.OK, _ = raw["ok"].(bool)
	return info, true
}

// Interaction is one turn in the conversation, the atomic unit of the
// append-only log. Total order is by CreatedAt, ties broken by insertion
// order (stores return equal-timestamp records in insertion order).
type Interaction struct {
	ID        string    `json:"id"`
	Type      Type      `json:"interaction_type"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsBoundary reports whether this interaction starts a new session.
func (it Interaction) IsBoundary() bool {
	return it.Type == TypeSystem && it.Metadata.NewSession()
}

// Store is the interaction log persistence contract. Append and
// whole-record delete only; there is no edit path.
type Store interface {
	// List returns the full log in ascending (CreatedAt, insertion) order.
	List(ctx context.Context) ([]Interaction, error)

	// Create appends one interaction and returns the stored record
	// with its assigned ID and timestamp.
	Create(ctx context.Context, it Interaction) (Interaction, error)

	// BulkDelete removes the records with the given IDs.
	BulkDelete(ctx context.Context, ids []string) error

	// DeleteAll clears the log.
	DeleteAll(ctx context.Context) error
}

// ReadMarker is optionally implemented by stores that track unread
// assistant interactions.
type ReadMarker interface {
	// MarkAllRead flags every interaction as read.
	MarkAllRead(ctx context.Context) error
}
