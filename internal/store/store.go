// Package store provides crash-safe, atomic persistence of queue state and
// account metadata. Adapted from internal/storage/file.go's
// atomicWrite/appendJSONL helpers.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boshu2/cuti-queue/internal/accounts"
	"github.com/boshu2/cuti-queue/internal/queue"
)

const (
	// QueueStateFile is the queue state file name, relative to StorageDir.
	QueueStateFile = "queue_state.json"

	// AccountsDir is the accounts root, relative to StorageDir.
	AccountsDir = "accounts"

	// AccountsIndexFile is the accounts index file name, relative to AccountsDir.
	AccountsIndexFile = "accounts.json"

	// ActiveDir is the mirror of the active profile, relative to StorageDir.
	ActiveDir = "active"
)

// FileStore implements C1: durable, crash-safe serialization of queue state
// and account metadata.
type FileStore struct {
	StorageDir string

	mu sync.Mutex
}

// New returns a FileStore rooted at dir.
func New(dir string) *FileStore {
	return &FileStore{StorageDir: dir}
}

// QueueStatePath returns the full path to the queue state file.
func (fs *FileStore) QueueStatePath() string {
	return filepath.Join(fs.StorageDir, QueueStateFile)
}

// AccountsIndexPath returns the full path to the accounts index file.
func (fs *FileStore) AccountsIndexPath() string {
	return filepath.Join(fs.StorageDir, AccountsDir, AccountsIndexFile)
}

// ActiveDirPath returns the full path to the active-profile mirror directory.
func (fs *FileStore) ActiveDirPath() string {
	return filepath.Join(fs.StorageDir, ActiveDir)
}

// AccountsRootPath returns the full path to the accounts root directory.
func (fs *FileStore) AccountsRootPath() string {
	return filepath.Join(fs.StorageDir, AccountsDir)
}

// LoadQueueState returns the current on-disk queue state, or an empty state
// if absent. A corrupt file is renamed aside with a ".corrupt.<unix-ts>"
// suffix; an empty state is returned so startup is never blocked.
func (fs *FileStore) LoadQueueState() (*queue.State, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.QueueStatePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return queue.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue state: %w", err)
	}

	state := queue.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		if rerr := quarantine(path); rerr != nil {
			return nil, fmt.Errorf("quarantine corrupt queue state: %w (parse error: %v)", rerr, err)
		}
		return queue.NewState(), nil
	}
	return state, nil
}

// SaveQueueState writes the full state atomically: temp file in the same
// directory, fsync, rename over the target.
func (fs *FileStore) SaveQueueState(state *queue.State) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue state: %w", err)
	}
	return atomicWrite(fs.QueueStatePath(), data)
}

// LoadAccountsIndex returns the current on-disk accounts index, or an empty
// index if absent. Same corrupt-file contract as LoadQueueState.
func (fs *FileStore) LoadAccountsIndex() (*accounts.Index, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.AccountsIndexPath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return accounts.NewIndex(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts index: %w", err)
	}

	idx := accounts.NewIndex()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(idx); err != nil {
		if rerr := quarantine(path); rerr != nil {
			return nil, fmt.Errorf("quarantine corrupt accounts index: %w (parse error: %v)", rerr, err)
		}
		return accounts.NewIndex(), nil
	}
	if idx.Accounts == nil {
		idx.Accounts = make(map[string]accounts.Meta)
	}
	return idx, nil
}

// SaveAccountsIndex writes the accounts index atomically.
func (fs *FileStore) SaveAccountsIndex(idx *accounts.Index) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	idx.LastUpdated = time.Now()
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts index: %w", err)
	}
	return atomicWrite(fs.AccountsIndexPath(), data)
}

// quarantine renames a corrupt file aside so it never blocks a reload.
func quarantine(path string) error {
	dest := fmt.Sprintf("%s.corrupt.%d", path, time.Now().Unix())
	return os.Rename(path, dest)
}

// atomicWrite writes data to a temp file in path's directory, fsyncs it,
// then renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}
