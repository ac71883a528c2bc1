package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/aeolun/auboutique/pkg/database"
	"github.com/aeolun/auboutique/pkg/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "~/.auboutique/server.toml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "server <port>",
		Short:        "AUBoutique marketplace and chat relay server",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return run(port)
		},
	}
}

func parsePort(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: must be 1-65535", arg)
	}
	return port, nil
}

func run(port int) error {
	// .env is optional
	_ = godotenv.Load()

	configPath := os.Getenv("AUBOUTIQUE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	tomlConfig, err := server.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	config := tomlConfig.ToServerConfig()
	config.TCPPort = port
	if config.Debug {
		server.EnableDebugLogging()
	}

	dbPath, err := tomlConfig.GetDatabasePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Stop closes the database once the server is running
	srv := server.NewServer(db, config, server.NewMetrics())
	if err := srv.Start(); err != nil {
		db.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Printf("AUBoutique server started (database %s, require_login=%v)", dbPath, config.RequireLogin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %s, shutting down", sig)

	return srv.Stop()
}
