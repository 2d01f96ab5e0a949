package main

import (
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/mtzanidakis/agentcrew/internal/backup"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/spf13/cobra"
)

var (
	archivePath      string
	restoreOverwrite bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the database and config file",
	Long: `Writes a zstd-compressed tar with a consistent snapshot of the database
and a copy of the config file. Safe to run while the gateway is up.`,
	Example: "  agentcrew backup -f agentcrew-$(date +%F).tar.zst",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.New(cfg.Store)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		stats, err := backup.Create(cmd.Context(), db, filepath.Base(cfg.Store.Path), configPath, archivePath)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓",
			fmt.Sprintf("Backup complete: %d files, %s", stats.Files, backup.FormatSize(stats.Bytes)), color.FgGreen)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the database and config file from a backup",
	Long: `Extracts an archive written by "agentcrew backup". Stop the gateway first.
Existing files are kept unless --overwrite is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		sections, err := backup.Sections(archivePath)
		if err != nil {
			return fmt.Errorf("scan archive: %w", err)
		}
		if len(sections) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Archive contains nothing to restore.")
			return nil
		}

		dest := map[string]string{
			backup.SectionData:   filepath.Dir(cfg.Store.Path),
			backup.SectionConfig: filepath.Dir(configPath),
		}
		stats, err := backup.Restore(archivePath, dest, restoreOverwrite)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), "✓",
			fmt.Sprintf("Restore complete: %d files, %s", stats.Files, backup.FormatSize(stats.Bytes)), color.FgGreen)
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVarP(&archivePath, "file", "f", "", "output archive (.tar.zst)")
	backupCmd.MarkFlagRequired("file")

	restoreCmd.Flags().StringVarP(&archivePath, "file", "f", "", "archive to restore (.tar.zst)")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace existing files")
	restoreCmd.MarkFlagRequired("file")
}
