package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/koelab/koe-sentinel/internal/logger"
	"go.uber.org/zap"
)

// Notifier receives the full new settings after every successful update.
// The WebSocket hub implements this to push changes out to UI observers.
type Notifier interface {
	SettingsUpdated(Settings)
}

// Store owns the single mutable Settings instance for the process. Reads take
// a snapshot copy; writes hold the guard across the whole
// merge-validate-persist-notify sequence, which keeps updates simple at the
// cost of briefly blocking readers during the disk write.
type Store struct {
	mu       sync.RWMutex
	current  Settings
	path     string
	logger   *logger.Logger
	notifier Notifier
}

// NewStore loads settings from path, falling back to Defaults when the file
// is absent or unreadable. notifier may be nil.
func NewStore(path string, log *logger.Logger, notifier Notifier) *Store {
	if log == nil {
		log = logger.Nop()
	}

	store := &Store{
		path:     path,
		logger:   log,
		notifier: notifier,
		current:  Defaults(),
	}

	if loaded, err := loadFromDisk(path); err == nil {
		store.current = loaded
		log.Info("Settings loaded",
			zap.String("path", path),
			zap.Int("settings_version", loaded.SettingsVersion),
		)
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn("Settings file unreadable, using defaults",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	return store
}

// Get returns a snapshot copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Update merges the patch onto the current settings, validates the result,
// swaps it in, persists it and notifies observers. On validation failure the
// prior settings remain authoritative and nothing is written to disk. A
// failed disk write is logged but does not roll back the in-memory update.
func (s *Store) Update(patch json.RawMessage) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := Merge(s.current, patch)
	if err != nil {
		return Settings{}, err
	}

	s.current = merged

	// Best-effort persistence: the save helper reports failure so callers
	// who care can tell, but the update itself stands either way.
	if err := saveToDisk(s.path, merged); err != nil {
		s.logger.Warn("Failed to persist settings",
			zap.String("path", s.path),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		s.notifier.SettingsUpdated(merged.Clone())
	}

	s.logger.Info("Settings updated",
		zap.Int("settings_version", merged.SettingsVersion),
		zap.Int("custom_rules", len(merged.CustomReplaceRules)),
	)

	return merged.Clone(), nil
}

func loadFromDisk(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	loaded := Defaults()
	if err := json.Unmarshal(data, &loaded); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}
	if err := Validate(loaded); err != nil {
		return Settings{}, err
	}
	return loaded, nil
}

func saveToDisk(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
