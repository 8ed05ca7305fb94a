package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"zr/internal/zrerr"
)

func newCacheCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or manage the result cache",
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := cfg.Cache.ClearAll()
			if err != nil {
				return zrerr.Wrap(zrerr.CacheIoError, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)
			return nil
		},
	}

	cmd.AddCommand(clear)
	return cmd
}
