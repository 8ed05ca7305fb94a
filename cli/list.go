package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zr/internal/graphio"
)

func newListCmd(cfg *Config) *cobra.Command {
	var tree bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print tasks and workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graphio.Load(cfg.GraphPath)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				os.Exit(1)
			}

			nodes := g.Nodes()
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

			if jsonOut {
				type taskOut struct {
					Name        string   `json:"name"`
					Description string   `json:"description,omitempty"`
					Deps        []string `json:"deps,omitempty"`
				}
				out := make([]taskOut, 0, len(nodes))
				for _, n := range nodes {
					out = append(out, taskOut{Name: n.Name, Description: n.Task.Description, Deps: n.Task.Deps})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if tree {
				fmt.Fprintln(w, "TASK\tDEPTH\tDEPS")
				for _, n := range nodes {
					depth, _ := g.Depth(n.Name)
					fmt.Fprintf(w, "%s\t%d\t%v\n", n.Name, depth, n.Task.Deps)
				}
			} else {
				fmt.Fprintln(w, "TASK\tDESCRIPTION")
				for _, n := range nodes {
					fmt.Fprintf(w, "%s\t%s\n", n.Name, n.Task.Description)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "print dependency depth instead of descriptions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print machine-readable output")
	return cmd
}
