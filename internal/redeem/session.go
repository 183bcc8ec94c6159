// internal/redeem/session.go
package redeem

import (
	"fmt"
	"os"
	"path/filepath"
)

const sessionFileName = "session.json"

// SessionStore persists one worker's serialized session state under that
// worker's private profile directory. Workers must never share a store:
// concurrent sessions writing the same state corrupt each other.
type SessionStore struct {
	dir string
}

func NewSessionStore(dir string) *SessionStore {
	return &SessionStore{dir: dir}
}

func (s *SessionStore) path() string {
	return filepath.Join(s.dir, sessionFileName)
}

// Load returns the saved session state, or an error if none was saved.
func (s *SessionStore) Load() ([]byte, error) {
	state, err := os.ReadFile(s.path())
	if err != nil {
		return nil, fmt.Errorf("load session state: %w", err)
	}
	return state, nil
}

// Save writes the session state, creating the profile directory as needed.
// State contains credentials material, hence the restrictive modes.
func (s *SessionStore) Save(state []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("mkdir profile dir: %w", err)
	}
	if err := os.WriteFile(s.path(), state, 0o600); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}
