package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLogins(t *testing.T, path string, logins map[string]Login) {
	t.Helper()
	data, err := json.Marshal(logins)
	if err != nil {
		t.Fatalf("marshal logins: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write logins: %v", err)
	}
}

func digestFor(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func TestMissingFileYieldsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "logins.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Verify("anyone", "anything") {
		t.Fatalf("empty store should reject every login")
	}
}

func TestVerifyAcceptsCorrectDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logins.json")
	writeLogins(t, path, map[string]Login{
		"admin": {Salt: "s4lt", Digest: digestFor("hunter2", "s4lt")},
	})

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.Verify("admin", "hunter2") {
		t.Fatalf("expected correct password to verify")
	}
	if s.Verify("admin", "wrong") {
		t.Fatalf("expected incorrect password to fail")
	}
	if s.Verify("nobody", "hunter2") {
		t.Fatalf("expected unknown login to fail")
	}
}

func TestWatchForChangesReloadsLiveEdits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logins.json")
	writeLogins(t, path, map[string]Login{})

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stop, err := s.WatchForChanges()
	if err != nil {
		t.Skipf("filesystem watching unavailable in this environment: %v", err)
	}
	defer stop()

	writeLogins(t, path, map[string]Login{
		"admin": {Salt: "s4lt", Digest: digestFor("hunter2", "s4lt")},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Verify("admin", "hunter2") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("credential store did not pick up the on-disk change")
}
