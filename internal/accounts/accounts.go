package accounts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/boshu2/cuti-queue/internal/worker"
)

// CredentialsFile is the executor's primary credential file; its presence
// in the active directory is required before Save will snapshot it.
const CredentialsFile = ".credentials.json"

// clearedFiles and clearedDirs are the files and directories New clears
// from the active directory, per claude_account_manager.py's new_account.
var clearedFiles = []string{
	".credentials.json",
	".claude.json",
	"session.json",
	".session",
	".api_keys.json",
}

var clearedDirs = []string{
	"sessions",
	"shell-snapshots",
	"statsig",
}

// ErrNotFound is returned when a named profile does not exist.
var ErrNotFound = errors.New("accounts: profile not found")

// ErrAlreadyExists is returned by operations that refuse to overwrite.
var ErrAlreadyExists = errors.New("accounts: profile already exists")

// ErrNoActiveCredentials is returned by Save when the active directory has
// no primary credentials file to snapshot.
var ErrNoActiveCredentials = errors.New("accounts: active directory has no credentials to save")

// Store implements C5: named credential profiles with atomic activation.
// Concurrent Use calls are serialized by a flock over the accounts root
// (a lock file shared across processes, unlike the processor's in-process
// mutex over queue state).
type Store struct {
	Root       string // accounts root directory
	ActiveDir  string // mirror of whichever profile is current
	loadIndex  func() (*Index, error)
	saveIndex  func(*Index) error
	lockPath   string
}

// NewStore returns a Store rooted at root, mirroring into activeDir, using
// loadIndex/saveIndex for index persistence (supplied by internal/store so
// accounts has no direct file dependency of its own index format).
func NewStore(root, activeDir string, loadIndex func() (*Index, error), saveIndex func(*Index) error) *Store {
	return &Store{
		Root:      root,
		ActiveDir: activeDir,
		loadIndex: loadIndex,
		saveIndex: saveIndex,
		lockPath:  filepath.Join(root, ".lock"),
	}
}

// lock acquires the single-writer flock over the accounts root, blocking
// until available, and returns a function that releases it.
func (s *Store) lock() (func(), error) {
	if err := os.MkdirAll(s.Root, 0o700); err != nil {
		return nil, fmt.Errorf("create accounts root: %w", err)
	}
	f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire accounts lock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
	}, nil
}

// Profile is a single entry returned by List.
type Profile struct {
	Name   string `json:"name"`
	Meta   Meta   `json:"meta"`
	Active bool   `json:"active"`
}

// List returns all profiles with metadata, hiding backup_ entries unless
// includeBackups is set.
func (s *Store) List(includeBackups bool) ([]Profile, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, fmt.Errorf("load accounts index: %w", err)
	}

	names := make([]string, 0, len(idx.Accounts))
	for name := range idx.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		if !includeBackups && hasBackupPrefix(name) {
			continue
		}
		profiles = append(profiles, Profile{
			Name:   name,
			Meta:   idx.Accounts[name],
			Active: idx.Active != nil && *idx.Active == name,
		})
	}
	return profiles, nil
}

func hasBackupPrefix(name string) bool {
	return len(name) >= len(BackupPrefix) && name[:len(BackupPrefix)] == BackupPrefix
}

// Save copies every file under the active directory into the named
// profile directory, creating it if new. Refuses if the active directory
// has no primary credentials file.
func (s *Store) Save(name string) error {
	release, err := s.lock()
	if err != nil {
		return err
	}
	defer release()

	if _, err := os.Stat(filepath.Join(s.ActiveDir, CredentialsFile)); err != nil {
		return ErrNoActiveCredentials
	}

	dest := s.profileDir(name)
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	if err := copyTree(s.ActiveDir, dest); err != nil {
		return fmt.Errorf("copy active credentials: %w", err)
	}

	idx, err := s.loadIndex()
	if err != nil {
		return fmt.Errorf("load accounts index: %w", err)
	}
	meta, existed := idx.Accounts[name]
	if !existed {
		meta.CreatedAt = time.Now()
	}
	meta.LastUsedAt = time.Now()
	idx.Accounts[name] = meta
	return s.saveIndex(idx)
}

// Use performs an atomic switch: clear the active directory, copy the
// named profile's files in, update the index. Serialized by the accounts
// root lock against concurrent Use/New/Save/Delete calls.
func (s *Store) Use(name string) error {
	release, err := s.lock()
	if err != nil {
		return err
	}
	defer release()

	idx, err := s.loadIndex()
	if err != nil {
		return fmt.Errorf("load accounts index: %w", err)
	}
	if _, ok := idx.Accounts[name]; !ok {
		return ErrNotFound
	}

	if err := clearDir(s.ActiveDir); err != nil {
		return fmt.Errorf("clear active directory: %w", err)
	}
	if err := copyTree(s.profileDir(name), s.ActiveDir); err != nil {
		return fmt.Errorf("copy profile into active: %w", err)
	}

	meta := idx.Accounts[name]
	meta.LastUsedAt = time.Now()
	idx.Accounts[name] = meta
	idx.Active = &name
	return s.saveIndex(idx)
}

// New snapshots the current active credentials under a unique
// backup_<timestamp> name (if any exist), then clears all credential and
// session files/directories in the active directory. It does not set a
// new active profile.
func (s *Store) New() error {
	release, err := s.lock()
	if err != nil {
		return err
	}
	defer release()

	if _, statErr := os.Stat(filepath.Join(s.ActiveDir, CredentialsFile)); statErr == nil {
		backupName := s.uniqueBackupName()
		dest := s.profileDir(backupName)
		if err := os.MkdirAll(dest, 0o700); err != nil {
			return fmt.Errorf("create backup directory: %w", err)
		}
		if err := copyTree(s.ActiveDir, dest); err != nil {
			return fmt.Errorf("snapshot active credentials: %w", err)
		}

		idx, err := s.loadIndex()
		if err != nil {
			return fmt.Errorf("load accounts index: %w", err)
		}
		idx.Accounts[backupName] = Meta{CreatedAt: time.Now(), LastUsedAt: time.Now()}
		if err := s.saveIndex(idx); err != nil {
			return err
		}
	}

	for _, f := range clearedFiles {
		_ = os.Remove(filepath.Join(s.ActiveDir, f))
	}
	for _, d := range clearedDirs {
		path := filepath.Join(s.ActiveDir, d)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("clear %s: %w", d, err)
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("recreate %s: %w", d, err)
		}
	}

	idx, err := s.loadIndex()
	if err != nil {
		return fmt.Errorf("load accounts index: %w", err)
	}
	idx.Active = nil
	return s.saveIndex(idx)
}

// uniqueBackupName returns backup_<unix-ts>, disambiguated with a numeric
// suffix if that name is already taken (racing New calls within a second).
func (s *Store) uniqueBackupName() string {
	base := fmt.Sprintf("%s%d", BackupPrefix, time.Now().Unix())
	name := base
	for n := 1; dirExists(s.profileDir(name)); n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}
	return name
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Delete removes the profile directory; if it was active, clears the
// active pointer.
func (s *Store) Delete(name string) error {
	release, err := s.lock()
	if err != nil {
		return err
	}
	defer release()

	idx, err := s.loadIndex()
	if err != nil {
		return fmt.Errorf("load accounts index: %w", err)
	}
	if _, ok := idx.Accounts[name]; !ok {
		return ErrNotFound
	}

	if err := os.RemoveAll(s.profileDir(name)); err != nil {
		return fmt.Errorf("remove profile directory: %w", err)
	}
	delete(idx.Accounts, name)
	if idx.Active != nil && *idx.Active == name {
		idx.Active = nil
	}
	return s.saveIndex(idx)
}

// GetInfo returns metadata for a single profile.
func (s *Store) GetInfo(name string) (Profile, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return Profile{}, fmt.Errorf("load accounts index: %w", err)
	}
	meta, ok := idx.Accounts[name]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return Profile{Name: name, Meta: meta, Active: idx.Active != nil && *idx.Active == name}, nil
}

func (s *Store) profileDir(name string) string {
	return filepath.Join(s.Root, name)
}

// copyTree copies every regular file and subdirectory from src into dst,
// fanned out through a worker pool (order does not matter for file copies).
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}

	pool := worker.NewPool[struct{}](0)
	results := pool.Process(names, func(name string) (struct{}, error) {
		return struct{}{}, copyEntry(filepath.Join(src, name), filepath.Join(dst, name))
	})
	for i, r := range results {
		if r.Err != nil {
			return fmt.Errorf("copy %s: %w", names[i], r.Err)
		}
	}
	return nil
}

func copyEntry(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, 0o700); err != nil {
			return err
		}
		return copyTree(src, dst)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}

// clearDir removes every entry under dir but preserves the directory
// itself, recreating known subdirectories empty so layout survives a clear.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dir, 0o700)
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	for _, d := range clearedDirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o700); err != nil {
			return err
		}
	}
	return nil
}
