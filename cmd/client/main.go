package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aeolun/auboutique/pkg/client"
	"github.com/aeolun/auboutique/pkg/client/ui"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "client <host> <port>",
		Short:        "Terminal client for the AUBoutique marketplace",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := serverAddress(args[0], args[1])
			if err != nil {
				return err
			}
			return run(cmd.Context(), addr)
		},
	}
}

// serverAddress joins host and port. A host with a ws:// or wss:// scheme
// keeps its scheme and path so the agent dials over WebSocket.
func serverAddress(host, port string) (string, error) {
	if host == "" || port == "" {
		return "", fmt.Errorf("host and port are required")
	}
	if !strings.Contains(host, "://") {
		return net.JoinHostPort(host, port), nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	u.Host = net.JoinHostPort(u.Hostname(), port)
	return u.String(), nil
}

// stateDir follows XDG_DATA_HOME, falling back to ~/.local/share
func stateDir() (string, error) {
	xdgData := os.Getenv("XDG_DATA_HOME")
	if xdgData == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		xdgData = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(xdgData, "auboutique"), nil
}

func run(ctx context.Context, addr string) error {
	_ = godotenv.Load()

	dir, err := stateDir()
	if err != nil {
		return err
	}
	state, err := client.OpenState(filepath.Join(dir, "state.db"))
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}
	defer state.Close()

	// The terminal belongs to the UI, so debug output goes to a file
	logger, closeLog, err := debugLogger(state, os.Getenv("AUBOUTIQUE_DEBUG") != "")
	if err != nil {
		return err
	}
	defer closeLog()

	config := client.DefaultConfig()
	agent, err := client.NewAgent(addr, config)
	if err != nil {
		return err
	}
	agent.SetLogger(logger)
	defer agent.Close()

	if err := agent.Connect(ctx); err != nil {
		return err
	}
	fmt.Printf("Connected to %s\n", agent.Address())

	return ui.Run(agent, state, logger, config.PollInterval)
}

// debugLogger writes to debug.log next to the state database when enabled
// and discards everything otherwise.
func debugLogger(state *client.State, enabled bool) (*log.Logger, func(), error) {
	if !enabled {
		return log.New(io.Discard, "", 0), func() {}, nil
	}
	logFile, err := os.OpenFile(filepath.Join(state.GetStateDir(), "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	return log.New(logFile, "", log.LstdFlags|log.Lmicroseconds), func() { logFile.Close() }, nil
}
