package sheets

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// storedToken is one user's persisted OAuth token.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// deviceFlow is one user's pending device authorization.
type deviceFlow struct {
	DeviceCode      string    `json:"device_code"`
	UserCode        string    `json:"user_code"`
	VerificationURL string    `json:"verification_url"`
	ExpiresAt       time.Time `json:"expires_at"`
	Interval        int64     `json:"interval"`
}

func (f deviceFlow) expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// jsonFileStore persists a map of user id to T as a JSON file.
// Credentials survive restarts (unlike sessions, which don't).
type jsonFileStore[T any] struct {
	mu   sync.Mutex
	path string
}

func newJSONFileStore[T any](path string) *jsonFileStore[T] {
	return &jsonFileStore[T]{path: path}
}

func (s *jsonFileStore[T]) load() (map[string]T, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	out := map[string]T{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return out, nil
}

func (s *jsonFileStore[T]) save(entries map[string]T) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Get returns the entry for a user, if present.
func (s *jsonFileStore[T]) Get(userID string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	entries, err := s.load()
	if err != nil {
		return zero, false, err
	}
	entry, ok := entries[userID]
	return entry, ok, nil
}

// Put stores an entry for a user.
func (s *jsonFileStore[T]) Put(userID string, entry T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[userID] = entry
	return s.save(entries)
}

// Delete removes a user's entry if present.
func (s *jsonFileStore[T]) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := entries[userID]; !ok {
		return nil
	}
	delete(entries, userID)
	return s.save(entries)
}
