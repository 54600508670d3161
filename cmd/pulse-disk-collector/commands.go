package main

import (
	"errors"
	"fmt"

	"github.com/rcourtman/pulse-disk-collector/internal/export"
	"github.com/rcourtman/pulse-disk-collector/internal/rowstore"
	"github.com/spf13/cobra"
)

func newExportCmd(opts *options) *cobra.Command {
	var logPath, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert the collection log to Parquet",
		Long: `Convert the collection log (CSV) to a Parquet file. NA cells become nulls.
Without --log the configured log_path is read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return errors.New("--out is required")
			}
			if !cmd.Flags().Changed("log") {
				cfg, err := opts.load(cmd)
				if err != nil {
					return err
				}
				logPath = cfg.LogPath
			}
			sum, err := export.ToParquet(logPath, outPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d rows, %d columns (%d numeric) to %s\n",
				sum.Rows, sum.Columns, sum.Numeric, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "Collection log to read (default: log_path)")
	cmd.Flags().StringVar(&outPath, "out", "", "Parquet file to write")
	return cmd
}

func newMirrorStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror-stats",
		Short: "Print SQLite row mirror statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.SQLitePath == "" {
				return errors.New("no SQLite mirror configured (use --sqlite)")
			}
			store, err := rowstore.Open(cfg.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := store.GetStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database: %s (%d bytes)\nCycles:   %d\nValues:   %d\n", st.DBPath, st.DBSize, st.Cycles, st.Values)
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration is invalid: %w", err)
			}
			return nil
		},
	}
}
