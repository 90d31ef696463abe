package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newVersionCmd reports the build version stamped into the binary by main.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the notebridge build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "notebridge version %s\n", GetVersion())
		},
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
