// Package session persists the active generation job across restarts, so a
// relaunched client resumes polling instead of losing track of an in-flight
// job.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	keyJobID  = "job-id"
	keyActive = "generation-active"
)

// State is the persisted resume record.
type State struct {
	JobID  string
	Active bool
}

// Store reads and writes the session file. The zero value is not usable; use
// NewStore.
type Store struct {
	path string
}

// NewStore builds a store rooted at the given file path. An empty path picks
// an XDG-compatible default.
func NewStore(path string) *Store {
	if path == "" {
		path = defaultPath()
	}
	return &Store{path: path}
}

func defaultPath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "assessor", "session.json")
}

// Load returns the persisted state and whether a resumable session exists.
// A missing file, unreadable file, or inconsistent record (only one of the
// two keys present) counts as absent; a fresh start beats a corrupt resume.
func (s *Store) Load() (State, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return State{}, false
	}
	data := map[string]string{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return State{}, false
	}
	jobID := strings.TrimSpace(data[keyJobID])
	active := data[keyActive] == "true"
	if jobID == "" || !active {
		return State{}, false
	}
	return State{JobID: jobID, Active: true}, true
}

// Save writes the state. Both keys are written together so Load never sees a
// half-written record.
func (s *Store) Save(state State) error {
	if strings.TrimSpace(state.JobID) == "" {
		return fmt.Errorf("session: job id is required")
	}
	data := map[string]string{
		keyJobID:  state.JobID,
		keyActive: "false",
	}
	if state.Active {
		data[keyActive] = "true"
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o600)
}

// Clear removes the session file. Clearing an absent session is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
