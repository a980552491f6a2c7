package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/cartsync/internal/database"
	"github.com/dukerupert/cartsync/internal/export"
	"github.com/dukerupert/cartsync/internal/model"
	"github.com/dukerupert/cartsync/internal/reconcile"
	"github.com/dukerupert/cartsync/internal/state"
	"github.com/dukerupert/cartsync/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay queued changes against the backend once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		syncStore := store.NewSyncStore(db)
		persisted, err := syncStore.Load(ctx)
		if err != nil {
			return err
		}
		c := state.New()
		c.Restore(persisted)

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		rec := reconcile.New(client, c, logger.With("component", "reconcile"))
		res, drainErr := rec.Drain(ctx)

		// Save even on failure so the recorded error survives.
		if err := syncStore.Save(ctx, c.Persisted()); err != nil {
			return fmt.Errorf("save state: %w", err)
		}
		if drainErr != nil {
			return drainErr
		}
		fmt.Fprintf(cmd.OutOrStdout(), "drained %d actions in %d requests\n", res.Drained, res.Requests)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted sync state as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}

		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		persisted, err := store.NewSyncStore(db).Load(cmd.Context())
		if err != nil {
			return err
		}
		c := state.New()
		c.Restore(persisted)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(c.Snapshot())
	},
}

var (
	exportPassphrase string
	exportFetch      string
)

var exportCmd = &cobra.Command{
	Use:   "export [list_id]",
	Short: "Archive a list's export data locally and to S3",
	Long: `export writes the backend's export data for a list to the export
directory, encrypted when a passphrase is configured, and uploads it when
an S3 bucket is set. With --fetch it instead downloads and decrypts an
archive by key and writes it to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		passphrase := cfg.Export.Passphrase
		if exportPassphrase != "" {
			passphrase = exportPassphrase
		}

		client, err := newBackendClient(cfg)
		if err != nil {
			return err
		}
		archiver := export.NewArchiver(export.Config{
			Dir: cfg.Export.Dir,
			S3: export.S3Config{
				Endpoint:  cfg.Export.S3Endpoint,
				Bucket:    cfg.Export.S3Bucket,
				Region:    cfg.Export.S3Region,
				Prefix:    cfg.Export.S3Prefix,
				AccessKey: cfg.Export.S3AccessKey,
				SecretKey: cfg.Export.S3SecretKey,
			},
		}, client, logger.With("component", "export"))

		if exportFetch != "" {
			data, err := archiver.Retrieve(cmd.Context(), exportFetch, passphrase)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		}

		listID := cfg.Sync.ListID
		if len(args) == 1 {
			listID = args[0]
		}
		if listID == "" {
			return fmt.Errorf("list_id is required")
		}
		res, err := archiver.Archive(cmd.Context(), model.NormalizeID(listID), passphrase)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", res.Path, res.Size)
		if res.Key != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s\n", res.Key)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPassphrase, "passphrase", "", "encryption passphrase (overrides config)")
	exportCmd.Flags().StringVar(&exportFetch, "fetch", "", "download and decrypt the archive with this S3 key")
}
