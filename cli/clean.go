package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newCleanCmd(cfg *Config) *cobra.Command {
	var (
		all        bool
		cacheOnly  bool
		historyOnly bool
		toolchains bool
		plugins    bool
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove persisted state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := cleanTargets(cfg, all, cacheOnly, historyOnly, toolchains, plugins)
			for _, t := range targets {
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "would remove %s\n", t)
					continue
				}
				if err := os.RemoveAll(t); err != nil {
					return fmt.Errorf("removing %s: %w", t, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", t)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "remove every persisted state directory")
	cmd.Flags().BoolVar(&cacheOnly, "cache", false, "remove only the result cache")
	cmd.Flags().BoolVar(&historyOnly, "history", false, "remove only the history log")
	cmd.Flags().BoolVar(&toolchains, "toolchains", false, "remove installed toolchains")
	cmd.Flags().BoolVar(&plugins, "plugins", false, "remove installed plugins")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be removed without removing it")
	return cmd
}

func cleanTargets(cfg *Config, all, cache, history, toolchains, plugins bool) []string {
	if all {
		return []string{cfg.CacheDir, filepath.Join(cfg.StateDir, "history.log"), filepath.Join(cfg.StateDir, "toolchains"), filepath.Join(cfg.StateDir, "plugins")}
	}
	var out []string
	if cache {
		out = append(out, cfg.CacheDir)
	}
	if history {
		out = append(out, filepath.Join(cfg.StateDir, "history.log"))
	}
	if toolchains {
		out = append(out, filepath.Join(cfg.StateDir, "toolchains"))
	}
	if plugins {
		out = append(out, filepath.Join(cfg.StateDir, "plugins"))
	}
	return out
}
