package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"zr/internal/graphio"
)

func newGraphCmd(cfg *Config) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print execution levels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graphio.Load(cfg.GraphPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}

			levels := make(map[int][]string)
			maxLevel := 0
			for _, n := range g.Nodes() {
				depth, _ := g.Depth(n.Name)
				levels[depth] = append(levels[depth], n.Name)
				if depth > maxLevel {
					maxLevel = depth
				}
			}
			for lvl := range levels {
				sort.Strings(levels[lvl])
			}

			if jsonOut {
				out := make([][]string, maxLevel+1)
				for lvl := 0; lvl <= maxLevel; lvl++ {
					out[lvl] = levels[lvl]
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			for lvl := 0; lvl <= maxLevel; lvl++ {
				fmt.Fprintf(cmd.OutOrStdout(), "level %d: %v\n", lvl, levels[lvl])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "print machine-readable output")
	return cmd
}
