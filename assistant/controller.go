// Package assistant orchestrates the conversation: it owns the state
// machine that wires user input through the interaction log, the
// streaming consumer, and the tool invoker, and re-derives the session
// view whenever the log changes.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"lifeboard/interaction"
	"lifeboard/internal/logging"
	"lifeboard/session"
	"lifeboard/stream"
	"lifeboard/tools"
)

var (
	// ErrBusy is returned when an action is rejected because a stream
	// or tool execution is already in flight. At most one of either
	// exists per controller.
	ErrBusy = errors.New("assistant is busy")

	// ErrPersistence wraps interaction log failures. The in-memory
	// view is re-synchronized from the store whenever it occurs.
	ErrPersistence = errors.New("interaction log operation failed")

	// ErrNoUserMessage is returned by Regenerate when the log holds
	// no user interaction to resend.
	ErrNoUserMessage = errors.New("no user message to regenerate")
)

// Phase is the controller's current position in the turn state machine.
type Phase int

const (
	Idle Phase = iota
	Submitting
	Streaming
	ToolPending
	ToolExecuting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Streaming:
		return "streaming"
	case ToolPending:
		return "tool_pending"
	case ToolExecuting:
		return "tool_executing"
	default:
		return "unknown"
	}
}

// activeLatest is the active-session sentinel meaning "most recent".
// It survives log growth, unlike a pinned index.
const activeLatest = -1

// StreamHandle is one in-flight generation stream.
type StreamHandle interface {
	Text() string
	Cancel()
	Done() <-chan stream.Outcome
}

// Streamer opens generation streams.
type Streamer interface {
	Start(ctx context.Context, req stream.Request) (StreamHandle, error)
}

// StreamClient adapts stream.Client to the Streamer interface.
type StreamClient struct {
	*stream.Client
}

func (s StreamClient) Start(ctx context.Context, req stream.Request) (StreamHandle, error) {
	handle, err := s.Client.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// ToolService resolves tool schemas and runs validated invocations.
// tools.Registry satisfies it.
type ToolService interface {
	Descriptor(ctx context.Context, name string) (tools.Descriptor, error)
	Invoke(ctx context.Context, name string, params map[string]any) (tools.Result, error)
}

// Options configures how the controller shapes generation requests.
type Options struct {
	IncludeContext bool
	ContextType    string
	Route          string
}

// Snapshot is the observable state exposed to the host.
type Snapshot struct {
	Sessions    []session.Session
	ActiveIndex int
	Messages    []interaction.Interaction
	Phase       Phase
	IsStreaming bool
	PartialText string
	Notice      string
}

// Controller is the top-level conversation orchestrator. All exported
// methods are safe for concurrent use; the state machine serializes
// generation and tool execution so only one is ever in flight.
type Controller struct {
	store    interaction.Store
	streamer Streamer
	tools    ToolService
	opts     Options

	mu       sync.Mutex
	phase    Phase
	log      []interaction.Interaction
	sessions []session.Session
	active   int
	handle   StreamHandle
	notice   string
}

// New creates a controller over the given store, streamer, and tool
// service. Call Load before first use to populate the view.
func New(store interaction.Store, streamer Streamer, toolService ToolService, opts Options) *Controller {
	return &Controller{
		store:    store,
		streamer: streamer,
		tools:    toolService,
		opts:     opts,
		active:   activeLatest,
	}
}

// Load fetches the interaction log and derives the session view.
func (c *Controller) Load(ctx context.Context) error {
	return c.resync(ctx)
}

// resync refreshes the cached log from the store. It is the recovery
// path after any persistence failure, so the in-memory view never
// drifts from a half-applied mutation. The fetch happens outside the
// mutex so State() readers are not blocked on the network.
func (c *Controller) resync(ctx context.Context) error {
	log, err := c.store.List(ctx)
	if err != nil {
		logging.SessionError("Resync failed, view may be stale: %v", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	c.mu.Lock()
	c.setLogLocked(log)
	c.mu.Unlock()
	return nil
}

func (c *Controller) setLogLocked(log []interaction.Interaction) {
	c.log = log
	c.sessions = session.Rebuild(log)
	c.clampActiveLocked()
}

// clampActiveLocked keeps the active index valid against the current
// session list. The sentinel passes through untouched.
func (c *Controller) clampActiveLocked() {
	if c.active == activeLatest {
		return
	}
	if len(c.sessions) == 0 {
		c.active = activeLatest
		return
	}
	if c.active >= len(c.sessions) {
		c.active = len(c.sessions) - 1
	}
	if c.active < 0 {
		c.active = 0
	}
}

func (c *Controller) activeSessionLocked() (session.Session, bool) {
	if len(c.sessions) == 0 {
		return session.Session{}, false
	}
	idx := c.active
	if idx == activeLatest || idx >= len(c.sessions) {
		idx = len(c.sessions) - 1
	}
	return c.sessions[idx], true
}

// State returns a snapshot of the observable state.
func (c *Controller) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Sessions:    append([]session.Session(nil), c.sessions...),
		ActiveIndex: activeLatest,
		Phase:       c.phase,
		IsStreaming: c.phase == Streaming,
		Notice:      c.notice,
	}
	if active, ok := c.activeSessionLocked(); ok {
		snap.Messages = session.Messages(c.log, active)
		if c.active == activeLatest {
			snap.ActiveIndex = len(c.sessions) - 1
		} else {
			snap.ActiveIndex = c.active
		}
	}
	if c.handle != nil {
		snap.PartialText = c.handle.Text()
	}
	return snap
}

// DismissNotice clears the current transient notice.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	c.notice = ""
	c.mu.Unlock()
}

// SendMessage persists the user's turn and starts a generation stream
// for it. It returns once the stream is open; the assistant turn is
// persisted asynchronously when the stream terminates. Rejected with
// ErrBusy while a stream or tool execution is in flight.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.phase = Submitting
	c.mu.Unlock()

	created, err := c.store.Create(ctx, interaction.Interaction{
		Type:    interaction.TypeUser,
		Content: text,
	})
	if err != nil {
		logging.SessionError("Failed to persist user turn: %v", err)
		c.failToIdle(ctx, "Could not save your message")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	c.log = append(c.log, created)
	c.sessions = session.Rebuild(c.log)
	// The new turn lands in the latest session, so that is what the
	// user is looking at now.
	c.active = activeLatest
	c.mu.Unlock()

	return c.startStream(ctx, text)
}

// Regenerate re-runs generation for the most recent user interaction,
// resending its content verbatim without appending a new user turn.
func (c *Controller) Regenerate(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	var prompt string
	found := false
	for i := len(c.log) - 1; i >= 0; i-- {
		if c.log[i].Type == interaction.TypeUser {
			prompt = c.log[i].Content
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return ErrNoUserMessage
	}
	c.phase = Submitting
	c.mu.Unlock()

	logging.Session("Regenerating last user turn")
	return c.startStream(ctx, prompt)
}

// startStream opens the stream and hands off to the finalize goroutine.
// The caller must have moved the phase to Submitting.
func (c *Controller) startStream(ctx context.Context, prompt string) error {
	handle, err := c.streamer.Start(ctx, stream.Request{
		Prompt:         prompt,
		IncludeContext: c.opts.IncludeContext,
		ContextType:    c.opts.ContextType,
		Route:          c.opts.Route,
	})
	if err != nil {
		logging.SessionError("Stream open failed: %v", err)
		// The user's prompt stays persisted so a retry can resend it.
		c.failToIdle(ctx, "Could not reach the assistant")
		return err
	}

	c.mu.Lock()
	c.phase = Streaming
	c.handle = handle
	c.mu.Unlock()

	go c.finalize(handle)
	return nil
}

// finalize waits for the stream's terminal outcome and persists the
// assistant turn when one is owed. Failed outcomes persist nothing,
// and neither does an empty text, whether the stream was cancelled
// before the first chunk or completed without producing any: an empty
// assistant turn is never appended. The controller always returns to
// Idle.
func (c *Controller) finalize(handle StreamHandle) {
	outcome := <-handle.Done()
	ctx := context.Background()

	var notice string
	switch {
	case outcome.Kind == stream.Failed:
		logging.SessionError("Stream failed: %v", outcome.Err)
		notice = "The assistant connection was interrupted"
	case outcome.Text == "":
		logging.Session("Stream %s with no text, nothing persisted", outcome.Kind)
	default:
		created, err := c.store.Create(ctx, interaction.Interaction{
			Type:    interaction.TypeAssistant,
			Content: outcome.Text,
		})
		if err != nil {
			logging.SessionError("Failed to persist assistant turn: %v", err)
			c.failToIdle(ctx, "Could not save the assistant's reply")
			return
		}
		c.mu.Lock()
		c.log = append(c.log, created)
		c.sessions = session.Rebuild(c.log)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.phase = Idle
	c.handle = nil
	if notice != "" {
		c.notice = notice
	}
	c.mu.Unlock()
}

// Stop cancels the in-flight stream. The partial text accumulated so
// far is kept and persisted by the finalize path. A no-op outside
// Streaming.
func (c *Controller) Stop() {
	c.mu.Lock()
	handle := c.handle
	streaming := c.phase == Streaming
	c.mu.Unlock()
	if streaming && handle != nil {
		logging.Session("Stopping in-flight stream")
		handle.Cancel()
	}
}

// InvokeTool validates params against the tool's schema and, only when
// valid, issues exactly one execution request. Whatever the execution
// outcome, one assistant interaction recording it is appended, so the
// log is a complete audit trail of side effects. Invalid params are
// rejected locally with zero outbound calls and nothing persisted.
func (c *Controller) InvokeTool(ctx context.Context, name string, params map[string]any) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.phase = ToolPending
	c.mu.Unlock()

	desc, err := c.tools.Descriptor(ctx, name)
	if err != nil {
		c.toIdle()
		return err
	}
	if verr := tools.Validate(desc, params); verr != nil {
		c.toIdle()
		return verr
	}

	c.mu.Lock()
	c.phase = ToolExecuting
	c.mu.Unlock()

	result, err := c.tools.Invoke(ctx, name, params)
	if err != nil {
		// The execution request itself failed; there is no outcome to
		// record and the log stays untouched.
		c.toIdle()
		c.setNotice("Tool execution could not be reached")
		return err
	}

	created, err := c.store.Create(ctx, interaction.Interaction{
		Type:    interaction.TypeAssistant,
		Content: summarizeResult(name, result),
		Metadata: interaction.Metadata{
			interaction.MetaToolCall: map[string]any{
				"name": name,
				"ok":   result.OK,
			},
		},
	})
	if err != nil {
		logging.SessionError("Failed to persist tool record: %v", err)
		c.failToIdle(ctx, "Could not save the tool result")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	c.log = append(c.log, created)
	c.sessions = session.Rebuild(c.log)
	c.phase = Idle
	c.mu.Unlock()
	return nil
}

// summarizeResult renders a tool outcome as assistant-turn content.
func summarizeResult(name string, result tools.Result) string {
	if !result.OK {
		return fmt.Sprintf("Tool %s failed: %s", name, result.Error)
	}
	if len(result.Result) == 0 {
		return fmt.Sprintf("Tool %s completed.", name)
	}
	data, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Sprintf("Tool %s completed.", name)
	}
	return fmt.Sprintf("Tool %s completed: %s", name, data)
}

// NewSession appends a boundary marker and points the active session
// at "most recent", so the fresh session is what becomes visible once
// the view re-derives.
func (c *Controller) NewSession(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	created, err := c.store.Create(ctx, interaction.Interaction{
		Type: interaction.TypeSystem,
		Metadata: interaction.Metadata{
			interaction.MetaNewSession: true,
		},
	})
	if err != nil {
		c.failToIdle(ctx, "Could not start a new chat")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	c.log = append(c.log, created)
	c.sessions = session.Rebuild(c.log)
	c.active = activeLatest
	c.mu.Unlock()
	logging.Session("Started new session")
	return nil
}

// SelectSession makes the session at index the presented one. The
// index is clamped into the valid range. Selecting a session marks the
// log read when the store supports it; a failure there is cosmetic and
// ignored.
func (c *Controller) SelectSession(ctx context.Context, index int) {
	c.mu.Lock()
	if len(c.sessions) == 0 {
		c.active = activeLatest
		c.mu.Unlock()
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= len(c.sessions) {
		index = len(c.sessions) - 1
	}
	c.active = index
	c.mu.Unlock()

	if marker, ok := c.store.(interaction.ReadMarker); ok {
		if err := marker.MarkAllRead(ctx); err != nil {
			logging.SessionWarn("Mark-read failed: %v", err)
		}
	}
}

// DeleteSession bulk-deletes every interaction in the session's range,
// boundary marker included, so the remaining sessions still partition
// the log. The active index falls back to the previous session when
// one exists, else to "most recent".
func (c *Controller) DeleteSession(ctx context.Context, index int) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	if index < 0 || index >= len(c.sessions) {
		c.mu.Unlock()
		return fmt.Errorf("session index %d out of range", index)
	}
	target := c.sessions[index]
	ids := make([]string, 0, target.Len())
	for _, item := range c.log[target.Start:target.End] {
		ids = append(ids, item.ID)
	}
	c.mu.Unlock()

	if err := c.store.BulkDelete(ctx, ids); err != nil {
		c.failToIdle(ctx, "Could not delete the chat")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	remaining := make([]interaction.Interaction, 0, len(c.log)-len(ids))
	remaining = append(remaining, c.log[:target.Start]...)
	remaining = append(remaining, c.log[target.End:]...)
	c.log = remaining
	c.sessions = session.Rebuild(c.log)
	if index > 0 {
		c.active = index - 1
	} else {
		c.active = activeLatest
	}
	c.clampActiveLocked()
	c.mu.Unlock()
	logging.Session("Deleted session %d (%d interactions)", index, len(ids))
	return nil
}

// DeleteAll clears the whole interaction log.
func (c *Controller) DeleteAll(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != Idle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.mu.Unlock()

	if err := c.store.DeleteAll(ctx); err != nil {
		c.failToIdle(ctx, "Could not clear the history")
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	c.mu.Lock()
	c.setLogLocked(nil)
	c.active = activeLatest
	c.mu.Unlock()
	return nil
}

func (c *Controller) toIdle() {
	c.mu.Lock()
	c.phase = Idle
	c.mu.Unlock()
}

func (c *Controller) setNotice(text string) {
	c.mu.Lock()
	c.notice = text
	c.mu.Unlock()
}

// failToIdle recovers from a persistence failure: resync the view from
// the store, surface a notice, and return to Idle. The resync is best
// effort; its failure is logged and the stale view stands until the
// next successful operation.
func (c *Controller) failToIdle(ctx context.Context, notice string) {
	c.resync(ctx)
	c.mu.Lock()
	c.phase = Idle
	c.handle = nil
	c.notice = notice
	c.mu.Unlock()
}
