package client

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	state, err := OpenState(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Dir(path), state.GetStateDir())
	assert.Empty(t, state.GetLastUsername())
	assert.True(t, state.NotificationsEnabled(), "notifications default on")

	require.NoError(t, state.SetLastUsername("alice"))
	require.NoError(t, state.SetNotificationsEnabled(false))
	require.NoError(t, state.Close())

	state, err = OpenState(path)
	require.NoError(t, err)
	defer state.Close()
	assert.Equal(t, "alice", state.GetLastUsername())
	assert.False(t, state.NotificationsEnabled())

	require.NoError(t, state.SetLastUsername("bob"))
	assert.Equal(t, "bob", state.GetLastUsername())
}

func TestStateUnknownKey(t *testing.T) {
	state, err := OpenState(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer state.Close()

	value, err := state.GetConfig("missing")
	require.NoError(t, err)
	assert.Empty(t, value)
}
