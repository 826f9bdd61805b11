// Package cli implements greenpassctl, the operator tool for codes, pricing,
// drawer counts and the background queue.
package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/greenpass/greenpass/internal/app"
)

var version = "dev"

// NewRootCommand assembles the command tree writing to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "greenpassctl",
		Short:         "Operator tools for the GreenPass voucher engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.AddCommand(
		newCodeCommand(),
		newQuoteCommand(loadSettingsConfig),
		newReconcileCommand(),
		newJobsCommand(loadSettingsConfig),
	)
	return root
}

func loadSettingsConfig() (*app.Config, error) {
	return app.LoadConfig()
}
