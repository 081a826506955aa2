// Package stream consumes the backend's streamed completion endpoint:
// one in-flight request whose plain-text body is flushed incrementally,
// decoded statefully across chunk boundaries, with cooperative
// cancellation that keeps the partial text.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"lifeboard/internal/logging"
)

// ErrTransport wraps stream open and read failures. Failures never
// corrupt persisted state: the caller's prompt interaction stays in the
// log so a retry can resend it.
var ErrTransport = errors.New("stream transport error")

// Kind is the terminal outcome of a stream. Exactly one is delivered.
type Kind int

const (
	// Completed means the body was drained to EOF.
	Completed Kind = iota

	// Cancelled means the caller aborted the stream. The text
	// accumulated so far is carried on the outcome, not discarded.
	Cancelled

	// Failed means the transport broke mid-stream.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal result of a stream.
type Outcome struct {
	Kind Kind
	Text string
	Err  error
}

// Request is the completion request body.
type Request struct {
	Prompt         string `json:"prompt"`
	IncludeContext bool   `json:"include_context"`
	ContextType    string `json:"context_type,omitempty"`
	Route          string `json:"route,omitempty"`
}

// ClientConfig holds configuration for the streaming client.
type ClientConfig struct {
	// BaseURL is the mini-assistant API root.
	BaseURL string

	// Endpoint is the streaming path relative to BaseURL.
	Endpoint string

	// APIToken is sent as a bearer token.
	APIToken string

	// ReadBufferSize is the chunk read buffer in bytes.
	ReadBufferSize int

	// No client-side deadline is imposed on an open stream; the user
	// cancels manually. DialTimeout only bounds opening the connection.
	DialTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:        baseURL,
		Endpoint:       "/stream",
		ReadBufferSize: 4096,
		DialTimeout:    30 * time.Second,
	}
}

// Client opens streamed completion requests.
type Client struct {
	baseURL    string
	endpoint   string
	apiToken   string
	bufSize    int
	httpClient *http.Client
}

// NewClient creates a streaming client.
func NewClient(config ClientConfig) *Client {
	bufSize := config.ReadBufferSize
	if bufSize <= 0 {
		bufSize = 4096
	}
	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = "/stream"
	}
	return &Client{
		baseURL:  config.BaseURL,
		endpoint: endpoint,
		apiToken: config.APIToken,
		bufSize:  bufSize,
		// No Timeout: it would cover the whole body read and kill
		// long generations. Cancellation goes through the request
		// context instead.
		httpClient: &http.Client{},
	}
}

// Stream is one in-flight streamed generation. Text grows monotonically
// as chunks arrive; the terminal Outcome is delivered once on Done.
type Stream struct {
	mu   sync.Mutex
	text string

	cancelled atomic.Bool
	cancel    context.CancelFunc
	done      chan Outcome
}

// Text returns the text accumulated so far. Successive calls observe
// text that only grows, never shrinks or resets.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Cancel aborts the stream. The transport is torn down, but the text
// accumulated before the abort is preserved on the Cancelled outcome.
// Safe to call more than once.
func (s *Stream) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Done delivers the single terminal outcome.
func (s *Stream) Done() <-chan Outcome {
	return s.done
}

func (s *Stream) append(chunk string) {
	s.mu.Lock()
	s.text += chunk
	s.mu.Unlock()
}

// Start opens one streamed completion request. Open failures (including
// non-200 responses) are returned directly; read failures after a
// successful open surface as a Failed outcome.
func (c *Client) Start(ctx context.Context, request Request) (*Stream, error) {
	reqID := uuid.NewString()
	rlog := logging.WithRequestID(logging.CategoryStream, reqID)
	rlog.Info("Starting stream: prompt_len=%d include_context=%v route=%q",
		len(request.Prompt), request.IncludeContext, request.Route)

	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Request-ID", reqID)
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		rlog.Error("Stream open failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		rlog.Error("Stream open failed with status %d: %s", resp.StatusCode, string(data))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, string(data))
	}

	s := &Stream{
		cancel: cancel,
		done:   make(chan Outcome, 1),
	}

	go c.consume(s, resp.Body, rlog)

	return s, nil
}

// consume reads the body chunk by chunk until EOF, cancellation, or a
// transport error, then delivers the terminal outcome.
func (c *Client) consume(s *Stream, body io.ReadCloser, rlog *logging.RequestLogger) {
	defer body.Close()
	defer s.cancel()

	start := time.Now()
	buf := make([]byte, c.bufSize)

	// pending holds the trailing bytes of a multi-byte character whose
	// encoding is split across chunk boundaries. It is carried between
	// reads so no chunk is ever decoded in isolation and discarded.
	var pending []byte

	finish := func(outcome Outcome) {
		s.done <- outcome
		close(s.done)
	}

	for {
		n, err := body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete, rest := splitIncompleteRune(pending)
			if len(complete) > 0 {
				s.append(string(complete))
			}
			pending = append(pending[:0:0], rest...)
		}

		if err != nil {
			switch {
			case err == io.EOF:
				// Server ended the body; flush whatever is held back,
				// so incremental decoding matches a one-pass decode of
				// the concatenated chunks.
				if len(pending) > 0 {
					s.append(string(pending))
				}
				text := s.Text()
				rlog.Info("Stream completed in %v text_len=%d", time.Since(start), len(text))
				finish(Outcome{Kind: Completed, Text: text})
			case s.cancelled.Load():
				text := s.Text()
				rlog.Warn("Stream cancelled after %v text_len=%d", time.Since(start), len(text))
				finish(Outcome{Kind: Cancelled, Text: text})
			default:
				rlog.Error("Stream read failed after %v: %v", time.Since(start), err)
				finish(Outcome{
					Kind: Failed,
					Text: s.Text(),
					Err:  fmt.Errorf("%w: %v", ErrTransport, err),
				})
			}
			return
		}

		// Cooperative cancellation check between chunk reads:
		// cancellation latency is bounded by one more chunk.
		if s.cancelled.Load() {
			text := s.Text()
			rlog.Warn("Stream cancelled after %v text_len=%d", time.Since(start), len(text))
			finish(Outcome{Kind: Cancelled, Text: text})
			return
		}
	}
}

// splitIncompleteRune splits b into the longest prefix that ends on a
// complete UTF-8 character and the trailing bytes of an incomplete one.
func splitIncompleteRune(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && len(b)-i <= utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}
