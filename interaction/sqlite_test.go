package interaction

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "assistant.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_CreateAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Create(ctx, Interaction{Type: TypeUser, Content: "hi"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if first.ID == "" {
		t.Error("Expected an assigned ID")
	}
	if first.CreatedAt.IsZero() {
		t.Error("Expected an assigned timestamp")
	}

	_, err = store.Create(ctx, Interaction{
		Type:     TypeSystem,
		Metadata: Metadata{MetaNewSession: true, MetaTitle: "Trip planning"},
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	log, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("Expected 2 interactions, got %d", len(log))
	}
	if log[0].Content != "hi" {
		t.Errorf("Expected insertion order, got %q first", log[0].Content)
	}
	if !log[1].IsBoundary() {
		t.Error("Expected metadata to survive storage")
	}
	if log[1].Metadata.Title() != "Trip planning" {
		t.Errorf("Expected title to survive, got %q", log[1].Metadata.Title())
	}
}

func TestSQLiteStore_EqualTimestampsKeepInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Same timestamp for every record: ordering must fall back to seq.
	ts := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	for _, content := range []string{"a", "b", "c"} {
		if _, err := store.Create(ctx, Interaction{
			Type: TypeUser, Content: content, CreatedAt: ts,
		}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	log, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if log[i].Content != want {
			t.Errorf("position %d: got %q, want %q", i, log[i].Content, want)
		}
	}
}

func TestSQLiteStore_BulkDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, content := range []string{"one", "two", "three"} {
		it, err := store.Create(ctx, Interaction{Type: TypeUser, Content: content})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, it.ID)
	}

	if err := store.BulkDelete(ctx, ids[:2]); err != nil {
		t.Fatalf("BulkDelete failed: %v", err)
	}

	log, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(log) != 1 || log[0].Content != "three" {
		t.Errorf("Expected only %q to remain, got %+v", "three", log)
	}
}

func TestSQLiteStore_DeleteAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(ctx, Interaction{Type: TypeUser, Content: "x"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := store.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	log, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("Expected empty log, got %d interactions", len(log))
	}
}

func TestSQLiteStore_MarkAllRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, Interaction{Type: TypeAssistant, Content: "hello"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.MarkAllRead(ctx); err != nil {
		t.Fatalf("MarkAllRead failed: %v", err)
	}

	var unread int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM interactions WHERE is_read = 0").Scan(&unread); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if unread != 0 {
		t.Errorf("Expected 0 unread, got %d", unread)
	}
}
