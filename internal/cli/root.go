package cli

import (
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(runner.NewLocal())
}

func newRootCmd(r runner.Runner) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vvvprov",
		Short: "Provision a development virtual machine",
		Long: `Vvvprov brings a development VM to its desired state: it installs
OS packages, syncs web and database service configuration, seeds databases,
installs developer tools and discovers per-project sites.

Every step is idempotent and network-dependent steps are skipped when
the VM has no connectivity.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Setup logging
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a TOML manifest (defaults to the stock VM layout)")
	rootCmd.PersistentFlags().Bool("offline", false, "Skip every network-dependent step")

	// Add subcommands
	rootCmd.AddCommand(newProvisionCmd(r))
	rootCmd.AddCommand(newPackagesCmd(r))
	rootCmd.AddCommand(newServicesCmd(r))
	rootCmd.AddCommand(newSitesCmd(r))
	rootCmd.AddCommand(newProbeCmd(r))

	return rootCmd
}
