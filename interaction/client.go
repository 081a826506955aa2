package interaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lifeboard/internal/logging"
)

// ClientConfig holds configuration for the remote log store client.
type ClientConfig struct {
	// BaseURL is the mini-assistant API root,
	// e.g. "https://host/api/v1/mini-assistant".
	BaseURL string

	// APIToken is sent as a bearer token on every request.
	APIToken string

	// Timeout bounds each HTTP call.
	Timeout time.Duration

	// PageSize is the window requested per call to the backend listing
	// endpoint. List pages through the whole log regardless.
	PageSize int
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:  baseURL,
		Timeout:  30 * time.Second,
		PageSize: 1000,
	}
}

// Client is the remote Store implementation backed by the dashboard
// backend's interaction endpoints.
type Client struct {
	baseURL    string
	apiToken   string
	pageSize   int
	httpClient *http.Client
}

var _ Store = (*Client)(nil)
var _ ReadMarker = (*Client)(nil)

// NewClient creates a remote log store client.
func NewClient(config ClientConfig) *Client {
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &Client{
		baseURL:  config.BaseURL,
		apiToken: config.APIToken,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// wireInteraction is the backend's representation of a stored record.
type wireInteraction struct {
	ID        int64          `json:"id"`
	Type      string         `json:"interaction_type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt wireTime       `json:"created_at"`
}

func (w wireInteraction) toInteraction() Interaction {
	return Interaction{
		ID:        strconv.FormatInt(w.ID, 10),
		Type:      Type(w.Type),
		Content:   w.Content,
		Metadata:  Metadata(w.Metadata),
		CreatedAt: w.CreatedAt.Time,
	}
}

// naiveLayout matches the backend's timestamps, which carry no
// timezone offset. Naive values are read as UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// wireTime decodes the timestamp shapes the backend emits: RFC3339
// and offset-less ISO-8601.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	t.Time = parsed
	return nil
}

// List fetches the whole log, paging with limit/offset until the
// backend returns a short page. The backend returns newest-first; the
// concatenation is reversed into the ascending order the engine works
// with.
func (c *Client) List(ctx context.Context) ([]Interaction, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Client.List")
	defer timer.Stop()

	var wire []wireInteraction
	for offset := 0; ; offset += c.pageSize {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))

		var page []wireInteraction
		if err := c.doJSON(ctx, http.MethodGet, "/interactions?"+q.Encode(), nil, &page); err != nil {
			return nil, fmt.Errorf("list interactions: %w", err)
		}
		wire = append(wire, page...)
		if len(page) < c.pageSize {
			break
		}
	}

	out := make([]Interaction, 0, len(wire))
	for i := len(wire) - 1; i >= 0; i-- {
		out = append(out, wire[i].toInteraction())
	}

	logging.StoreDebug("Listed %d interactions", len(out))
	return out, nil
}

// Create appends one interaction.
func (c *Client) Create(ctx context.Context, it Interaction) (Interaction, error) {
	body := map[string]any{
		"interaction_type": string(it.Type),
		"content":          it.Content,
	}
	if it.Metadata != nil {
		body["metadata"] = map[string]any(it.Metadata)
	}

	var wire wireInteraction
	if err := c.doJSON(ctx, http.MethodPost, "/interactions", body, &wire); err != nil {
		return Interaction{}, fmt.Errorf("create interaction: %w", err)
	}

	logging.StoreDebug("Created interaction id=%d type=%s content_len=%d",
		wire.ID, wire.Type, len(wire.Content))
	return wire.toInteraction(), nil
}

// BulkDelete removes the records with the given IDs.
func (c *Client) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	numeric := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return fmt.Errorf("bulk delete: invalid id %q: %w", id, err)
		}
		numeric = append(numeric, n)
	}

	if err := c.doJSON(ctx, http.MethodPost, "/interactions/bulk-delete", map[string]any{"ids": numeric}, nil); err != nil {
		return fmt.Errorf("bulk delete interactions: %w", err)
	}

	logging.StoreDebug("Bulk-deleted %d interactions", len(ids))
	return nil
}

// DeleteAll clears the log.
func (c *Client) DeleteAll(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/interactions/delete-all", map[string]any{}, nil); err != nil {
		return fmt.Errorf("delete all interactions: %w", err)
	}
	return nil
}

// MarkAllRead flags every interaction as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/interactions/read", map[string]any{}, nil); err != nil {
		return fmt.Errorf("mark interactions read: %w", err)
	}
	return nil
}

// doJSON issues one JSON request and decodes the response into out (if
// out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		logging.APIError("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(data))
		return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
	}

	if out == nil {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
