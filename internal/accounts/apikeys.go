package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const apiKeyFile = ".api_keys.json"

// SaveAPIKey writes an API-key credential blob for the named profile at
// 0600, owner read/write only.
func (s *Store) SaveAPIKey(name string, key APIKey) error {
	release, err := s.lock()
	if err != nil {
		return err
	}
	defer release()

	dir := s.profileDir(name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}

	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal api key: %w", err)
	}
	path := filepath.Join(dir, apiKeyFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write api key: %w", err)
	}
	return nil
}

// GetAPIKey reads the API-key credential blob for the named profile, if any.
func (s *Store) GetAPIKey(name string) (*APIKey, error) {
	path := filepath.Join(s.profileDir(name), apiKeyFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}
	var key APIKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parse api key: %w", err)
	}
	return &key, nil
}

// DeleteAPIKey removes the API-key credential blob for the named profile.
func (s *Store) DeleteAPIKey(name string) error {
	path := filepath.Join(s.profileDir(name), apiKeyFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove api key: %w", err)
	}
	return nil
}

// ListAPIKeys returns the names of profiles carrying an API-key blob.
func (s *Store) ListAPIKeys() ([]string, error) {
	profiles, err := s.List(true)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range profiles {
		if _, err := os.Stat(filepath.Join(s.profileDir(p.Name), apiKeyFile)); err == nil {
			names = append(names, p.Name)
		}
	}
	return names, nil
}

// EnvBindingsForActive returns the unset list followed by the set bindings
// for the currently active profile's API key, if any, per spec §4.5's
// "unset everything known, then set the new list" switching discipline.
func (s *Store) EnvBindingsForActive() (unset []string, set map[string]string, err error) {
	idx, loadErr := s.loadIndex()
	if loadErr != nil {
		return nil, nil, fmt.Errorf("load accounts index: %w", loadErr)
	}
	unset = EnvUnsetList
	if idx.Active == nil {
		return unset, nil, nil
	}
	key, getErr := s.GetAPIKey(*idx.Active)
	if getErr != nil {
		return nil, nil, getErr
	}
	if key == nil {
		return unset, nil, nil
	}
	return unset, key.EnvVars(), nil
}
