package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wwwzy/wxorca/internal/state"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "列出可用的助手类型",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Type\tName\tDescription")
		fmt.Fprintln(w, "----\t----\t-----------")
		for _, t := range state.AllAgentTypes() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t, t.DisplayName(), t.Description())
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
