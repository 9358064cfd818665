package auth

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNewManagerWithoutPassphrase(t *testing.T) {
	t.Setenv("GLEXPORT_PASSPHRASE", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	// No env var, no explicit passphrase: the manager must still come up
	// with at least one working backend.
	manager, err := NewManager("")
	if err != nil {
		t.Fatalf("Expected a usable token manager out of the box: %v", err)
	}

	token := &Token{
		Host:         "gitlab.example.com",
		Value:        "glpat-abc",
		LastModified: time.Now(),
	}
	if err := manager.Store(token); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	defer manager.Delete("gitlab.example.com")

	got, err := manager.Retrieve("gitlab.example.com")
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if got.Value != "glpat-abc" {
		t.Errorf("Expected token round trip, got %q", got.Value)
	}
}
