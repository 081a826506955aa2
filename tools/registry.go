package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"lifeboard/internal/logging"
)

// ClientConfig holds configuration for the tool service client.
type ClientConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Client talks to the backend's tool discovery and execution endpoints.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewClient creates a tool service client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  config.BaseURL,
		apiToken: config.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves the catalog of registered tools.
func (c *Client) Fetch(ctx context.Context) ([]Descriptor, error) {
	var descriptors []Descriptor
	if err := c.doJSON(ctx, http.MethodGet, "/tools", nil, &descriptors); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}
	logging.Tools("Fetched tool catalog: %d tools", len(descriptors))
	return descriptors, nil
}

type executeRequest struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// Execute runs one tool through the backend. A Result with OK false is
// a successful call whose tool reported failure.
func (c *Client) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	if params == nil {
		params = map[string]any{}
	}
	var result Result
	err := c.doJSON(ctx, http.MethodPost, "/tools/execute", executeRequest{Tool: name, Params: params}, &result)
	if err != nil {
		logging.ToolsError("Execute %s failed: %v", name, err)
		return Result{}, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	logging.Tools("Executed %s ok=%v", name, result.OK)
	return result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
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
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Fetcher fetches the tool catalog.
type Fetcher interface {
	Fetch(ctx context.Context) ([]Descriptor, error)
}

// Executor runs one tool remotely.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any) (Result, error)
}

// Service is the full backend tool surface.
type Service interface {
	Fetcher
	Executor
}

// Registry caches the tool catalog and gates execution behind schema
// validation. The catalog is fetched once on first use; concurrent
// first uses collapse into a single fetch. A failed fetch is not
// cached, so the next use retries.
type Registry struct {
	service Service

	group singleflight.Group

	mu      sync.RWMutex
	byName  map[string]Descriptor
	ordered []Descriptor
}

// NewRegistry creates a registry backed by the given service.
func NewRegistry(service Service) *Registry {
	return &Registry{service: service}
}

func (r *Registry) load(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.byName != nil
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := r.group.Do("catalog", func() (any, error) {
		descriptors, err := r.service.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		r.store(descriptors)
		return nil, nil
	})
	return err
}

func (r *Registry) store(descriptors []Descriptor) {
	byName := make(map[string]Descriptor, len(descriptors))
	ordered := make([]Descriptor, len(descriptors))
	copy(ordered, descriptors)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	for _, d := range ordered {
		byName[d.Name] = d
	}

	r.mu.Lock()
	r.byName = byName
	r.ordered = ordered
	r.mu.Unlock()
}

// Refresh discards the cached catalog and fetches it again.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.byName = nil
	r.ordered = nil
	r.mu.Unlock()
	return r.load(ctx)
}

// Descriptors returns every known tool, sorted by name.
func (r *Registry) Descriptors(ctx context.Context) ([]Descriptor, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out, nil
}

// Descriptor returns one tool by name.
func (r *Registry) Descriptor(ctx context.Context, name string) (Descriptor, error) {
	if err := r.load(ctx); err != nil {
		return Descriptor{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return desc, nil
}

// Invoke validates params against the tool's schema and executes it.
// Unknown tools and schema violations are rejected before any
// execution request is sent.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]any) (Result, error) {
	desc, err := r.Descriptor(ctx, name)
	if err != nil {
		return Result{}, err
	}
	if verr := Validate(desc, params); verr != nil {
		logging.ToolsDebug("Rejected %s: %v", name, verr)
		return Result{}, verr
	}
	return r.service.Execute(ctx, name, params)
}
