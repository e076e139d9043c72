package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boshu2/cuti-queue/internal/accounts"
	"github.com/boshu2/cuti-queue/internal/queue"
)

func TestFileStore_LoadQueueState_Absent(t *testing.T) {
	fs := New(t.TempDir())

	state, err := fs.LoadQueueState()
	if err != nil {
		t.Fatalf("LoadQueueState() error = %v", err)
	}
	if len(state.Prompts) != 0 {
		t.Errorf("expected empty state, got %d prompts", len(state.Prompts))
	}
}

func TestFileStore_SaveLoadQueueState_RoundTrip(t *testing.T) {
	fs := New(t.TempDir())

	now := time.Now().Truncate(time.Second)
	state := queue.NewState()
	state.Prompts = append(state.Prompts, &queue.Prompt{
		ID:         "p1",
		Content:    "say hi",
		Priority:   0,
		CreatedAt:  now,
		MaxRetries: 3,
		Status:     queue.StatusQueued,
	})
	state.Counters = queue.Counters{TotalProcessed: 5, FailedCount: 2, RateLimitedCount: 1, LastProcessed: &now}

	if err := fs.SaveQueueState(state); err != nil {
		t.Fatalf("SaveQueueState() error = %v", err)
	}

	loaded, err := fs.LoadQueueState()
	if err != nil {
		t.Fatalf("LoadQueueState() error = %v", err)
	}
	if len(loaded.Prompts) != 1 || loaded.Prompts[0].ID != "p1" {
		t.Fatalf("round trip lost prompt: %+v", loaded.Prompts)
	}
	if loaded.Counters.TotalProcessed != 5 || loaded.Counters.FailedCount != 2 || loaded.Counters.RateLimitedCount != 1 {
		t.Errorf("round trip lost counters: %+v", loaded.Counters)
	}
}

func TestFileStore_LoadQueueState_Corrupt(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir)

	path := fs.QueueStatePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	state, err := fs.LoadQueueState()
	if err != nil {
		t.Fatalf("LoadQueueState() on corrupt file should not error, got %v", err)
	}
	if len(state.Prompts) != 0 {
		t.Errorf("expected empty state after quarantine, got %d prompts", len(state.Prompts))
	}

	matches, err := filepath.Glob(path + ".corrupt.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("expected corrupt file to be quarantined, found %d matches", len(matches))
	}
}

func TestFileStore_SaveLoadAccountsIndex_RoundTrip(t *testing.T) {
	fs := New(t.TempDir())

	idx := accounts.NewIndex()
	idx.Accounts["work"] = accounts.Meta{CreatedAt: time.Now().Truncate(time.Second)}
	active := "work"
	idx.Active = &active

	if err := fs.SaveAccountsIndex(idx); err != nil {
		t.Fatalf("SaveAccountsIndex() error = %v", err)
	}

	loaded, err := fs.LoadAccountsIndex()
	if err != nil {
		t.Fatalf("LoadAccountsIndex() error = %v", err)
	}
	if loaded.Active == nil || *loaded.Active != "work" {
		t.Errorf("expected active=work, got %+v", loaded.Active)
	}
	if _, ok := loaded.Accounts["work"]; !ok {
		t.Errorf("expected account 'work' to round-trip")
	}
}
