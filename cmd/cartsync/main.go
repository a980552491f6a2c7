package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cartsync/internal/backend"
	"github.com/dukerupert/cartsync/internal/config"
	"github.com/dukerupert/cartsync/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cartsync",
	Short: "Offline-tolerant shopping list sync agent",
	Long: `cartsync keeps a local copy of a shopping list, applies check-offs
immediately, and reconciles them with the shopping-list backend. Changes
made while the backend is unreachable are queued on disk and replayed
when connectivity returns.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			return os.Setenv("CONFIG_PATH", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to cartsync.yaml (default ./cartsync.yaml)")

	rootCmd.AddCommand(serveCmd, syncCmd, statusCmd, exportCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and the process logger shared by every command.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, logger, nil
}

func newBackendClient(cfg *config.Config) (*backend.Client, error) {
	client, err := backend.NewClient(backend.Config{
		BaseURL:  cfg.Backend.URL,
		Token:    cfg.Backend.Token,
		Timeout:  cfg.Backend.Timeout,
		ProbeURL: cfg.Backend.ProbeURL,
	})
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	return client, nil
}
