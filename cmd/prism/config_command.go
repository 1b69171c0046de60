package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prism/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and bootstrap configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigShowCommand(ctx))
	cmd.AddCommand(newConfigInitCommand())
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.configPath != "" {
				fmt.Fprintf(out, "config file: %s\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "config file: (defaults)")
			}
			fmt.Fprintf(out, "work dir: %s\n", cfg.Paths.WorkDir)
			fmt.Fprintf(out, "log dir: %s\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "result cache: enabled=%t path=%s lock=%s\n",
				cfg.ResultCache.Enabled, cfg.ResultCache.Path, cfg.ResultCache.LockMode)
			fmt.Fprintf(out, "pipeline: fifo=%t delete_workdir=%t save_workfiles=%t\n",
				cfg.Pipeline.FifoMode, cfg.Pipeline.DeleteWorkdir, cfg.Pipeline.SaveWorkfiles)
			fmt.Fprintf(out, "scheduler: parallel=%t workers=%d\n",
				cfg.Scheduler.Parallel, cfg.Scheduler.MaxWorkers)
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var forceFlag bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			if _, statErr := os.Stat(path); statErr == nil && !forceFlag {
				fmt.Fprintf(cmd.OutOrStdout(), "config already exists at %s (use --force to overwrite)\n", path)
				return nil
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&forceFlag, "force", false, "Overwrite an existing config file")
	return cmd
}
