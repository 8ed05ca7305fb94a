// Package cli assembles the zr command surface (spec §6) with cobra. This
// is the one layer allowed to read environment variables and os.Args; every
// package beneath it takes explicit parameters.
package cli

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"zr/internal/cachestore"
	"zr/internal/historystore"
	"zr/internal/zrlog"
)

// Config holds the process-wide settings resolved once at startup from
// flags and environment variables (HOME/USERPROFILE, ZR_CACHE_DIR,
// ZR_PARALLEL, NO_COLOR).
type Config struct {
	GraphPath   string
	StateDir    string
	CacheDir    string
	Parallel    int
	NoCache     bool
	JSONOutput  bool
	Verbose     bool

	Cache   *cachestore.Store
	History *historystore.Store
}

// NewRootCmd builds the top-level zr command with every subcommand wired.
func NewRootCmd() *cobra.Command {
	cfg := &Config{}

	root := &cobra.Command{
		Use:           "zr",
		Short:         "zr is a polyglot task runner and build orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.resolve()
		},
	}

	root.PersistentFlags().StringVar(&cfg.GraphPath, "graph", "zr.tasks.json", "path to the task graph definition")
	root.PersistentFlags().StringVar(&cfg.CacheDir, "cache-dir", "", "override the cache root (defaults to $HOME/.zr/cache)")
	root.PersistentFlags().IntVar(&cfg.Parallel, "parallel", 0, "max concurrent tasks (defaults to ZR_PARALLEL or 1)")
	root.PersistentFlags().BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(cfg),
		newListCmd(cfg),
		newGraphCmd(cfg),
		newCacheCmd(cfg),
		newHistoryCmd(cfg),
		newCleanCmd(cfg),
		newBenchCmd(cfg),
	)

	return root
}

// resolve fills in StateDir/CacheDir/Parallel from flags, falling back to
// environment variables, exactly as spec §6 names them.
func (c *Config) resolve() error {
	home := os.Getenv("HOME")
	if home == "" {
		home = os.Getenv("USERPROFILE")
	}
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			home = "."
		}
	}
	c.StateDir = filepath.Join(home, ".zr")

	if c.CacheDir == "" {
		if override := os.Getenv("ZR_CACHE_DIR"); override != "" {
			c.CacheDir = override
		} else {
			c.CacheDir = filepath.Join(c.StateDir, "cache")
		}
	}

	if c.Parallel <= 0 {
		if v := os.Getenv("ZR_PARALLEL"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.Parallel = n
			}
		}
	}
	if c.Parallel <= 0 {
		c.Parallel = 1
	}

	c.Cache = cachestore.New(c.CacheDir)
	c.History = historystore.New(c.StateDir)
	_ = cachestore.SweepPartial(c.CacheDir)

	return nil
}

func (c *Config) logger() *logrus.Logger {
	noColor := os.Getenv("NO_COLOR") != ""
	return zrlog.New(c.Verbose, noColor)
}
