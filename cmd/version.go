package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meetbrief/meetbrief/pkg/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meetbrief %s\n", buildinfo.String())
		},
	}
}
