package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys holds the API keys for the transcription and reformatting
// collaborators. Values are never logged and never returned over the API;
// callers see Presence instead.
type Keys struct {
	GroqAPIKey   string `json:"groqApiKey,omitempty"`
	GeminiAPIKey string `json:"geminiApiKey,omitempty"`
}

// Presence reports which keys are configured without exposing them.
type Presence struct {
	HasGroq   bool `json:"hasGroq"`
	HasGemini bool `json:"hasGemini"`
}

// Store persists API keys to a user-only file. All operations read the file
// fresh; the mutex only serializes read-modify-write sequences.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a secrets store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Presence reports which keys are currently stored.
func (s *Store) Presence() (Presence, error) {
	keys, err := s.read()
	if err != nil {
		return Presence{}, err
	}
	return Presence{
		HasGroq:   keys.GroqAPIKey != "",
		HasGemini: keys.GeminiAPIKey != "",
	}, nil
}

// Get returns the stored keys. For use by the upstream clients only.
func (s *Store) Get() (Keys, error) {
	return s.read()
}

// Set merges non-empty fields of update into the stored keys. Empty fields
// leave the stored value untouched.
func (s *Store) Set(update Keys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	if update.GroqAPIKey != "" {
		current.GroqAPIKey = update.GroqAPIKey
	}
	if update.GeminiAPIKey != "" {
		current.GeminiAPIKey = update.GeminiAPIKey
	}
	return s.write(current)
}

// Clear removes the named key ("groq" or "gemini"), or all keys when which
// is empty.
func (s *Store) Clear(which string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	switch which {
	case "groq":
		current.GroqAPIKey = ""
	case "gemini":
		current.GeminiAPIKey = ""
	default:
		current = Keys{}
	}
	return s.write(current)
}

func (s *Store) read() (Keys, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Keys{}, nil
	}
	if err != nil {
		return Keys{}, fmt.Errorf("read secrets file: %w", err)
	}
	var keys Keys
	if err := json.Unmarshal(data, &keys); err != nil {
		return Keys{}, fmt.Errorf("parse secrets file: %w", err)
	}
	return keys, nil
}

// write stores the keys with user-only permissions, removing the file
// entirely when no key remains.
func (s *Store) write(keys Keys) error {
	if keys.GroqAPIKey == "" && keys.GeminiAPIKey == "" {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove secrets file: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create secrets directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}
