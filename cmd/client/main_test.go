package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aeolun/auboutique/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerAddress(t *testing.T) {
	tests := []struct {
		host, port string
		want       string
	}{
		{"localhost", "5555", "localhost:5555"},
		{"10.0.0.7", "6000", "10.0.0.7:6000"},
		{"::1", "5555", "[::1]:5555"},
		{"ws://shop.example.com", "8080", "ws://shop.example.com:8080"},
		{"wss://shop.example.com/ws", "443", "wss://shop.example.com:443/ws"},
	}
	for _, tt := range tests {
		got, err := serverAddress(tt.host, tt.port)
		require.NoError(t, err, tt.host)
		assert.Equal(t, tt.want, got)
	}

	_, err := serverAddress("", "5555")
	assert.Error(t, err)
}

func TestStateDirFollowsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	dir, err := stateDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/auboutique", dir)
}

func TestArgsValidation(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"localhost"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

func TestDebugLoggerWritesNextToState(t *testing.T) {
	dir := t.TempDir()
	state, err := client.OpenState(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	defer state.Close()

	logger, closeLog, err := debugLogger(state, false)
	require.NoError(t, err)
	logger.Printf("dropped")
	closeLog()
	assert.NoFileExists(t, filepath.Join(dir, "debug.log"))

	logger, closeLog, err = debugLogger(state, true)
	require.NoError(t, err)
	logger.Printf("connecting")
	closeLog()

	data, err := os.ReadFile(filepath.Join(dir, "debug.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "connecting")
}
