package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", got)
		}
		json.NewEncoder(w).Encode([]Descriptor{
			{
				Name:        "get_weather",
				Title:       "Weather",
				Description: "Current conditions",
				Params: map[string]Param{
					"city": {Type: "string", Required: true},
					"unit": {Type: "string", Enum: []string{"celsius", "fahrenheit"}},
				},
			},
		})
	}))
	defer server.Close()

	cfg := DefaultClientConfig(server.URL)
	cfg.APIToken = "tok"
	client := NewClient(cfg)

	descs, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}
	if !descs[0].Params["city"].Required {
		t.Error("expected city to be required")
	}
	if got := descs[0].Params["unit"].Enum; len(got) != 2 {
		t.Errorf("expected 2 enum values, got %v", got)
	}
}

func TestClient_FetchUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL))
	_, err := client.Fetch(context.Background())
	if !errors.Is(err, ErrCatalogUnavailable) {
		t.Errorf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestClient_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tools/execute" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Tool != "get_weather" {
			t.Errorf("expected tool get_weather, got %q", req.Tool)
		}
		if req.Params["city"] != "Lisbon" {
			t.Errorf("expected city param, got %v", req.Params)
		}
		json.NewEncoder(w).Encode(Result{
			OK:     true,
			Tool:   req.Tool,
			Result: map[string]any{"temp": 21.5, "unit": "celsius"},
		})
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL))
	result, err := client.Execute(context.Background(), "get_weather", map[string]any{"city": "Lisbon"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.OK {
		t.Error("expected OK result")
	}
	if result.Result["temp"] != 21.5 {
		t.Errorf("expected temp in result, got %v", result.Result)
	}
}

func TestClient_ExecuteNilParamsSendsEmptyObject(t *testing.T) {
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Result{OK: true})
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL))
	if _, err := client.Execute(context.Background(), "noop", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if string(gotBody["params"]) != "{}" {
		t.Errorf("expected empty params object, got %s", gotBody["params"])
	}
}

func TestClient_ExecuteTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "registry offline", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(DefaultClientConfig(server.URL))
	_, err := client.Execute(context.Background(), "get_weather", map[string]any{"city": "Lisbon"})
	if !errors.Is(err, ErrExecution) {
		t.Errorf("expected ErrExecution, got %v", err)
	}
}
