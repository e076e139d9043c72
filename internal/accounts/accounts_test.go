package accounts

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	accountsRoot := filepath.Join(root, "accounts")
	activeDir := filepath.Join(root, "active")
	if err := os.MkdirAll(activeDir, 0o700); err != nil {
		t.Fatal(err)
	}

	var idx *Index
	load := func() (*Index, error) {
		if idx == nil {
			idx = NewIndex()
		}
		return idx, nil
	}
	save := func(i *Index) error {
		idx = i
		return nil
	}
	return NewStore(accountsRoot, activeDir, load, save)
}

func writeActiveCredentials(t *testing.T, s *Store, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(s.ActiveDir, CredentialsFile), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestSave_RequiresActiveCredentials(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save("work"); err != ErrNoActiveCredentials {
		t.Fatalf("Save() error = %v, want ErrNoActiveCredentials", err)
	}
}

func TestSaveThenUse_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	writeActiveCredentials(t, s, "creds-A")

	if err := s.Save("work"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	writeActiveCredentials(t, s, "creds-B")
	if err := s.Use("work"); err != nil {
		t.Fatalf("Use() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.ActiveDir, CredentialsFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "creds-A" {
		t.Errorf("active credentials = %q, want creds-A", data)
	}

	profiles, err := s.List(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || !profiles[0].Active {
		t.Fatalf("expected profile 'work' active, got %+v", profiles)
	}
}

func TestUse_NotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.Use("missing"); err != ErrNotFound {
		t.Fatalf("Use() error = %v, want ErrNotFound", err)
	}
}

func TestList_HidesBackupsByDefault(t *testing.T) {
	s := newTestStore(t)
	writeActiveCredentials(t, s, "creds")
	if err := s.Save("backup_123"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save("work"); err != nil {
		t.Fatal(err)
	}

	visible, err := s.List(false)
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 1 || visible[0].Name != "work" {
		t.Fatalf("expected only 'work' visible, got %+v", visible)
	}

	all, err := s.List(true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 profiles including backups, got %d", len(all))
	}
}

func TestNew_BacksUpAndClears(t *testing.T) {
	s := newTestStore(t)
	writeActiveCredentials(t, s, "creds")
	if err := os.WriteFile(filepath.Join(s.ActiveDir, "session.json"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.New(); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.ActiveDir, CredentialsFile)); !os.IsNotExist(err) {
		t.Errorf("expected credentials cleared, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.ActiveDir, "session.json")); !os.IsNotExist(err) {
		t.Errorf("expected session.json cleared, stat err = %v", err)
	}

	backups, err := s.List(true)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, p := range backups {
		if hasBackupPrefix(p.Name) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a backup_ profile to be created, got %+v", backups)
	}
}

func TestDelete_ClearsActivePointer(t *testing.T) {
	s := newTestStore(t)
	writeActiveCredentials(t, s, "creds")
	if err := s.Save("work"); err != nil {
		t.Fatal(err)
	}
	if err := s.Use("work"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("work"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	info, err := s.GetInfo("work")
	if err != ErrNotFound {
		t.Fatalf("GetInfo() error = %v, want ErrNotFound; got %+v", err, info)
	}

	idx, err := s.loadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if idx.Active != nil {
		t.Errorf("active pointer = %q, want nil after deleting the active profile", *idx.Active)
	}
}

func TestAPIKey_EnvVars_Bedrock(t *testing.T) {
	key := APIKey{Provider: ProviderBedrock, BearerToken: "tok", Region: "us-east-1"}
	env := key.EnvVars()
	if env["AWS_BEARER_TOKEN_BEDROCK"] != "tok" {
		t.Errorf("expected bearer token bound, got %+v", env)
	}
	if env["CLAUDE_CODE_USE_BEDROCK"] != "1" {
		t.Errorf("expected bedrock flag set, got %+v", env)
	}
	if env["AWS_REGION"] != "us-east-1" {
		t.Errorf("expected region bound, got %+v", env)
	}
}

func TestSaveGetAPIKey_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	key := APIKey{Provider: ProviderAnthropic, AnthropicAPIKey: "sk-test"}
	if err := s.SaveAPIKey("work", key); err != nil {
		t.Fatalf("SaveAPIKey() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(s.profileDir("work"), apiKeyFile))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("api key file perm = %v, want 0600", info.Mode().Perm())
	}

	got, err := s.GetAPIKey("work")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if got == nil || got.AnthropicAPIKey != "sk-test" {
		t.Fatalf("GetAPIKey() = %+v", got)
	}
}
