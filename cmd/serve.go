package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Long: `Serves the capture API until SIGINT or SIGTERM. In-flight batches are
canceled on shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			// Run closes the app on the way out.
			return appInstance.Run(cmd.Context())
		},
	}
}
