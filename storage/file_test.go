package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	f := NewFile(path)

	if got, err := f.Get(ctx, KeyRefreshToken); err != nil || got != "" {
		t.Fatalf("Get before any write: %q, %v", got, err)
	}

	if err := f.Set(ctx, KeyRefreshToken, "refresh-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := f.Set(ctx, KeyUserID, "user-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh adapter on the same path sees the persisted values.
	reopened := NewFile(path)
	if got, err := reopened.Get(ctx, KeyRefreshToken); err != nil || got != "refresh-1" {
		t.Fatalf("Get after reopen: %q, %v", got, err)
	}
	if got, err := reopened.Get(ctx, KeyUserID); err != nil || got != "user-1" {
		t.Fatalf("Get after reopen: %q, %v", got, err)
	}

	if err := reopened.Remove(ctx, KeyRefreshToken); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got, err := reopened.Get(ctx, KeyRefreshToken); err != nil || got != "" {
		t.Fatalf("Get after Remove: %q, %v", got, err)
	}
	if got, err := reopened.Get(ctx, KeyUserID); err != nil || got != "user-1" {
		t.Fatalf("Remove dropped an unrelated key: %q, %v", got, err)
	}
}

func TestFilePermissions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	f := NewFile(path)

	if err := f.Set(ctx, KeyRefreshToken, "refresh-1"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode %o, want 600: tokens must not be world readable", perm)
	}
}

func TestFileRemoveMissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	f := NewFile(path)

	if err := f.Remove(context.Background(), KeyRefreshToken); err != nil {
		t.Fatalf("Remove without a file must be a no-op, got %v", err)
	}
}
