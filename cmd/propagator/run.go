package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/davsync/propagator/internal/config"
	"github.com/davsync/propagator/internal/propagate"
	"github.com/davsync/propagator/internal/utils"
	"github.com/davsync/propagator/internal/version"
	"github.com/davsync/propagator/internal/webdav"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd() *cobra.Command {
	var itemsPath string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pre-computed reconciliation item list against the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg := &config.Config{
				Path:                 viper.ConfigFileUsed(),
				LocalRoot:            viper.GetString("local_root"),
				RemoteURL:            viper.GetString("remote_url"),
				Username:             viper.GetString("username"),
				Password:             viper.GetString("password"),
				UploadLimit:          viper.GetInt64("upload_limit"),
				DownloadLimit:        viper.GetInt64("download_limit"),
				StrictRenameMetadata: viper.GetBool("strict_rename_metadata"),
				JournalPath:          viper.GetString("journal_path"),
			}
			if cfg.JournalPath == "" {
				cfg.JournalPath = filepath.Join(config.DefaultJournalDir, "journal.db")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			showHeader()
			slog.Info("davsync", "version", version.Version, "revision", version.Revision)

			lock := flock.New(filepath.Join(filepath.Dir(cfg.JournalPath), "run.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire run lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another davsync run is already in progress on this journal")
			}
			defer lock.Unlock()

			items, err := loadItems(itemsPath)
			if err != nil {
				return err
			}
			sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

			journal, err := propagate.OpenSqliteJournal(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			var opts []webdav.Option
			if cfg.Username != "" {
				opts = append(opts, webdav.WithBasicAuth(cfg.Username, cfg.Password))
			}
			client := webdav.New(cfg.RemoteURL, opts...)
			defer client.Close()

			rc := &propagate.RunContext{
				HTTP:                 client,
				Journal:              journal,
				LocalRoot:            cfg.LocalRoot,
				UploadLimit:          cfg.UploadLimit,
				DownloadLimit:        cfg.DownloadLimit,
				StrictRenameMetadata: cfg.StrictRenameMetadata,
			}

			start := time.Now()
			status, err := propagate.Run(cmd.Context(), rc, items, progressLogger())
			elapsed := time.Since(start)

			slog.Info("run finished", "status", status.String(), "items", len(items), "elapsed", elapsed.Round(time.Millisecond))
			if err != nil {
				return err
			}
			if status == propagate.StatusSuccess {
				fmt.Printf("synced %d items in %s\n", len(items), elapsed.Round(time.Millisecond))
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&itemsPath, "items", "i", "", "path to a JSON reconciliation item list")
	runCmd.MarkFlagRequired("items")

	return runCmd
}

func loadItems(path string) ([]*propagate.SyncItem, error) {
	if !utils.FileExists(path) {
		return nil, fmt.Errorf("items file %q not found", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items %q: %w", path, err)
	}

	var items []*propagate.SyncItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse items %q: %w", path, err)
	}
	return items, nil
}

func progressLogger() propagate.ProgressFunc {
	return func(p propagate.Progress) {
		switch p.Kind {
		case propagate.ProgressStartUpload:
			slog.Debug("upload started", "path", p.Path, "size", humanize.Bytes(uint64(p.Total)))
		case propagate.ProgressStartDownload:
			slog.Debug("download started", "path", p.Path, "size", humanize.Bytes(uint64(p.Total)))
		case propagate.ProgressEndUpload, propagate.ProgressEndDownload:
			slog.Info("transfer finished", "path", p.Path, "bytes", humanize.Bytes(uint64(p.Done)))
		}
	}
}
