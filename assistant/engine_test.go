package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"lifeboard/config"
	"lifeboard/interaction"
)

func TestFromConfig_SQLiteStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Kind = "sqlite"
	cfg.Store.DatabasePath = filepath.Join(t.TempDir(), "assistant.db")

	c, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	store, ok := c.store.(*interaction.SQLiteStore)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", c.store)
	}
	defer store.Close()

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap := c.State(); len(snap.Sessions) != 0 {
		t.Errorf("expected empty fresh store, got %d sessions", len(snap.Sessions))
	}
}

func TestFromConfig_RemoteStore(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = server.URL
	cfg.Backend.APIToken = "tok"

	c, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if _, ok := c.store.(*interaction.Client); !ok {
		t.Fatalf("expected remote store by default, got %T", c.store)
	}

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected configured token on requests, got %q", gotAuth)
	}
}

func TestFromConfig_UnknownStoreKind(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Kind = "dynamodb"

	if _, err := FromConfig(cfg); err == nil {
		t.Fatal("expected error for unknown store kind")
	}
}
