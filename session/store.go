// Package session holds the client-side authentication state: durable
// token storage, access-token claims, and the state machine that decides
// whether the user is signed in.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/oauth2"
)

// ErrNoSession indicates that storage holds no session for the profile.
var ErrNoSession = errors.New("no stored session")

// Record is the persisted session for one profile.
type Record struct {
	oauth2.Token
	ServerURL string `json:"server_url,omitempty"`
}

// recordMap is the on-disk file shape: sessions for multiple profiles
// (different backends or accounts) share one file.
type recordMap struct {
	Sessions map[string]*Record `json:"sessions"`
}

// Store persists session tokens for a named profile in a JSON file.
// Writes go through a lock file and an atomic rename, so concurrent
// processes cannot corrupt the file or lose each other's profiles.
type Store struct {
	path    string
	profile string
}

// NewStore creates a Store backed by the file at path, scoped to profile.
func NewStore(path, profile string) *Store {
	return &Store{path: path, profile: profile}
}

// Load reads the stored session for this profile.
// Returns ErrNoSession if the file or the profile entry does not exist.
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}

	var m recordMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	if rec, ok := m.Sessions[s.profile]; ok && rec != nil {
		return rec, nil
	}
	return nil, ErrNoSession
}

// Save writes the session for this profile, preserving other profiles.
func (s *Store) Save(rec *Record) error {
	return s.update(func(m *recordMap) {
		m.Sessions[s.profile] = rec
	})
}

// Clear removes this profile's session. Clearing an absent session is not
// an error.
func (s *Store) Clear() error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}
	return s.update(func(m *recordMap) {
		delete(m.Sessions, s.profile)
	})
}

// update applies fn to the session map under the file lock and writes the
// result with a temp file and an atomic rename.
func (s *Store) update(fn func(*recordMap)) error {
	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	// Load existing map inside the lock to ensure consistency
	var m recordMap
	if existing, err := os.ReadFile(s.path); err == nil {
		if unmarshalErr := json.Unmarshal(existing, &m); unmarshalErr != nil {
			m.Sessions = make(map[string]*Record)
		}
	}
	if m.Sessions == nil {
		m.Sessions = make(map[string]*Record)
	}

	fn(&m)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Token returns the stored token pair, or (nil, nil) when no session
// exists. Implements the advisory client's token source.
func (s *Store) Token() (*oauth2.Token, error) {
	rec, err := s.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	return &rec.Token, nil
}

// StoreToken replaces the stored token pair, keeping the record's other
// fields. The old token is gone the instant the rename lands.
func (s *Store) StoreToken(tok *oauth2.Token) error {
	rec, err := s.Load()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	if rec == nil {
		rec = &Record{}
	}
	rec.Token = *tok
	return s.Save(rec)
}

// ClearToken removes the stored session. Implements the advisory client's
// token source.
func (s *Store) ClearToken() error {
	return s.Clear()
}
