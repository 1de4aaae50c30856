package filesystem_test

import (
	"context"
	"errors"
	"testing"

	"github.com/inquestlabs/inquest/infrastructure/checkpoint/filesystem"
	"github.com/inquestlabs/inquest/orchestrator"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := filesystem.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "abc123", []byte(`{"phase":"active"}`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	data, err := store.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != `{"phase":"active"}` {
		t.Errorf("Get() = %s", data)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	store, err := filesystem.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := store.Put(ctx, "abc123", []byte("payload")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.SetLatest(ctx, "abc123"); err != nil {
		t.Fatalf("SetLatest() error = %v", err)
	}

	reopened, err := filesystem.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() on existing dir error = %v", err)
	}
	ref, err := reopened.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if ref != "abc123" {
		t.Errorf("Latest() = %s, want abc123", ref)
	}
	if _, err := reopened.Get(ctx, ref); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}
}

func TestStoreMissing(t *testing.T) {
	t.Parallel()

	store, err := filesystem.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, orchestrator.ErrCheckpointNotFound) {
		t.Errorf("Get() error = %v, want ErrCheckpointNotFound", err)
	}
	if _, err := store.Latest(ctx); !errors.Is(err, orchestrator.ErrCheckpointNotFound) {
		t.Errorf("Latest() error = %v, want ErrCheckpointNotFound", err)
	}
	if err := store.SetLatest(ctx, "missing"); !errors.Is(err, orchestrator.ErrCheckpointNotFound) {
		t.Errorf("SetLatest() error = %v, want ErrCheckpointNotFound", err)
	}
}

func TestStoreRejectsTraversalRefs(t *testing.T) {
	t.Parallel()

	store, err := filesystem.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	ctx := context.Background()

	for _, ref := range []string{"", "../escape", "a/b", `a\b`} {
		if err := store.Put(ctx, ref, []byte("x")); err == nil {
			t.Errorf("Put(%q) accepted a traversal ref", ref)
		}
	}
}
