package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"prism/internal/resultstore"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the result cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newCacheStatsCommand(ctx))
	cmd.AddCommand(newCachePurgeCommand(ctx))
	return cmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached results and retained stream usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.ResultCache.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "result cache is disabled")
				return nil
			}

			store, err := resultstore.Open(cfg.ResultCache.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				rows = append(rows, []string{
					shorten(entry.AssetDigest, 12),
					entry.ExecutorID,
					fmt.Sprint(entry.ScoreKeys),
					entry.UpdatedAt.Local().Format(time.RFC3339),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Asset", "Executor", "Score Keys", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))

			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			vault := resultstore.NewStreamVault(cfg.ResultCache.StreamsDir, cfg.ResultCache.MaxGiB, logger)
			if vault == nil {
				return nil
			}
			stats, err := vault.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retained streams: %d entries, %s of %s used\n",
				stats.Entries, formatBytes(stats.TotalBytes), formatBytes(stats.MaxBytes))
			return nil
		},
	}
}

func newCachePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every cached result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.ResultCache.Enabled {
				fmt.Fprintln(cmd.OutOrStdout(), "result cache is disabled")
				return nil
			}
			store, err := resultstore.Open(cfg.ResultCache.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			purged, err := store.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached results\n", purged)
			return nil
		},
	}
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
