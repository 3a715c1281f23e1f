package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"commandcenter/internal/version"
)

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			return version.Get().Write(os.Stdout, short)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern.
	rootCmd.AddCommand(newVersionCmd())
}
