package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	updates []Settings
}

func (n *recordingNotifier) SettingsUpdated(s Settings) {
	n.updates = append(n.updates, s)
}

func TestStore(t *testing.T) {
	t.Run("MissingFileFallsBackToDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		store := NewStore(path, nil, nil)
		assert.Equal(t, Defaults(), store.Get())
	})

	t.Run("CorruptFileFallsBackToDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

		store := NewStore(path, nil, nil)
		assert.Equal(t, Defaults(), store.Get())
	})

	t.Run("UpdatePersistsAndReloads", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		store := NewStore(path, nil, nil)

		updated, err := store.Update(json.RawMessage(`{"maskEmail": false, "dlpAction": "block"}`))
		require.NoError(t, err)
		assert.False(t, updated.MaskEmail)

		// A fresh store over the same file sees the persisted state.
		reloaded := NewStore(path, nil, nil)
		got := reloaded.Get()
		assert.False(t, got.MaskEmail)
		assert.Equal(t, "block", got.DLPAction)
	})

	t.Run("FailedUpdateLeavesStateUntouched", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		store := NewStore(path, nil, nil)

		_, err := store.Update(json.RawMessage(`{"dlpAction": "shred"}`))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)

		assert.Equal(t, Defaults(), store.Get())
		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr), "rejected update must not be written")
	})

	t.Run("NotifierSeesEverySuccessfulUpdate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		notifier := &recordingNotifier{}
		store := NewStore(path, nil, notifier)

		_, err := store.Update(json.RawMessage(`{"maskPhone": false}`))
		require.NoError(t, err)
		_, err = store.Update(json.RawMessage(`{"dlpAction": "bad"}`))
		require.Error(t, err)
		_, err = store.Update(json.RawMessage(`{"maskPhone": true}`))
		require.NoError(t, err)

		require.Len(t, notifier.updates, 2)
		assert.False(t, notifier.updates[0].MaskPhone)
		assert.True(t, notifier.updates[1].MaskPhone)
	})

	t.Run("PersistFailureDoesNotRollBack", func(t *testing.T) {
		dir := t.TempDir()
		blocker := filepath.Join(dir, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		// Parent of the settings path is a regular file, so the write
		// must fail while the in-memory update still lands.
		path := filepath.Join(blocker, "settings.json")
		store := NewStore(path, nil, nil)

		updated, err := store.Update(json.RawMessage(`{"maskEmail": false}`))
		require.NoError(t, err)
		assert.False(t, updated.MaskEmail)
		assert.False(t, store.Get().MaskEmail)
	})

	t.Run("GetReturnsSnapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.json")
		store := NewStore(path, nil, nil)

		_, err := store.Update(json.RawMessage(`{"customReplaceRules": [{"pattern": "a", "replace": "b"}]}`))
		require.NoError(t, err)

		snap := store.Get()
		snap.CustomReplaceRules[0].Pattern = "mutated"
		assert.Equal(t, "a", store.Get().CustomReplaceRules[0].Pattern)
	})
}
