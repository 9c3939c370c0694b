// Package auth loads and verifies the login credential store
// (logins.json) and watches it for changes so an operator can rotate
// credentials without a restart.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Login is one credential record: a salt and the hex-encoded
// sha256(password ∥ salt) digest.
type Login struct {
	Salt   string `json:"salt"`
	Digest string `json:"digest"`
}

// Store is the in-memory, hot-reloadable view of logins.json.
type Store struct {
	path string

	mu     sync.RWMutex
	logins map[string]Login

	watcher *fsnotify.Watcher
}

// Load reads path into a Store. A missing file yields an empty store (no
// logins configured, every auth attempt fails closed) rather than an
// error — only a malformed-but-present file is fatal.
func Load(path string) (*Store, error) {
	s := &Store{path: path, logins: make(map[string]Login)}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.mu.Lock()
		s.logins = make(map[string]Login)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var logins map[string]Login
	if err := json.Unmarshal(data, &logins); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.logins = logins
	s.mu.Unlock()
	return nil
}

// Verify checks login/password against the store. Comparison is
// constant-time over fixed-size digests; correctness relies on the
// caller's own rate limiting (see session.Handler), not on this call
// being slow.
func (s *Store) Verify(login, password string) bool {
	s.mu.RLock()
	rec, ok := s.logins[login]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	sum := sha256.Sum256([]byte(password + rec.Salt))
	got := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(rec.Digest)) == 1
}

// WatchForChanges starts an fsnotify watcher on the credential file's
// directory and reloads the store whenever the file is written or
// recreated (editors commonly replace-via-rename rather than truncate).
// The returned stop function closes the watcher; it is safe to call at
// most once.
func (s *Store) WatchForChanges() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start credential watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	s.watcher = w

	done := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name == s.path && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
					_ = s.reload()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		w.Close()
	}, nil
}
