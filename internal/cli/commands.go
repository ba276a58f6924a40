package cli

import (
	"fmt"
	"strings"

	"github.com/ralt/vvvprov/internal/config"
	"github.com/ralt/vvvprov/internal/models"
	"github.com/ralt/vvvprov/internal/provision"
	"github.com/ralt/vvvprov/internal/runner"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// loadProvisioner reads the manifest named by --config, applies flag
// overrides and builds a provisioner around it
func loadProvisioner(cmd *cobra.Command, r runner.Runner) (*provision.Provisioner, error) {
	path, _ := cmd.Flags().GetString("config")
	m, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if offline, _ := cmd.Flags().GetBool("offline"); offline {
		m.Offline = true
	}
	logrus.Debugf("Manifest: %+v", m)

	return provision.New(m, r, nil)
}

func printResults(cmd *cobra.Command, results []models.StepResult) {
	for _, res := range results {
		fmt.Fprintln(cmd.OutOrStdout(), res.String())
	}
}

func failed(results []models.StepResult) error {
	var names []string
	for _, res := range results {
		if !res.OK() {
			names = append(names, res.Step)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return fmt.Errorf("%d steps failed: %s", len(names), strings.Join(names, ", "))
}

func newProvisionCmd(r runner.Runner) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Run every provisioning step",
		Long: `Runs the connectivity probe, package reconciliation, service
configuration sync, database bootstrap, tool installation and site
discovery, in that order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProvisioner(cmd, r)
			if err != nil {
				return err
			}

			logrus.Info("Starting provisioning...")
			report, err := p.Run(cmd.Context())
			if report != nil {
				report.Print(cmd.OutOrStdout())
			}
			if err != nil {
				return err
			}
			if strict {
				return failed(report.Results)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any external tool failed")

	return cmd
}

func newPackagesCmd(r runner.Runner) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Install missing OS packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProvisioner(cmd, r)
			if err != nil {
				return err
			}

			if dryRun {
				plan, err := p.Reconciler().Plan(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d installed, %d missing\n", len(plan.Installed), len(plan.Missing)+len(plan.Files))
				for _, name := range plan.Missing {
					fmt.Fprintf(out, "  %s\n", name)
				}
				for _, pkg := range plan.Files {
					fmt.Fprintf(out, "  %s (%s)\n", pkg.Name, pkg.Filename)
				}
				return nil
			}

			results, err := p.Packages(cmd.Context(), p.Online(cmd.Context()))
			printResults(cmd, results)
			if err != nil {
				return err
			}
			return failed(results)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Only list the packages that would be installed")

	return cmd
}

func newServicesCmd(r runner.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Sync service configuration and bootstrap the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProvisioner(cmd, r)
			if err != nil {
				return err
			}

			results := p.ServiceConfig(cmd.Context())
			results = append(results, p.Database(cmd.Context())...)
			printResults(cmd, results)
			return failed(results)
		},
	}
}

func newSitesCmd(r runner.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "Run init hooks and regenerate vhosts and host entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProvisioner(cmd, r)
			if err != nil {
				return err
			}

			results, err := p.Sites(cmd.Context())
			printResults(cmd, results)
			if err != nil {
				return err
			}
			return failed(results)
		},
	}
}

func newProbeCmd(r runner.Runner) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check external network connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProvisioner(cmd, r)
			if err != nil {
				return err
			}

			if !p.Online(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "External network connection: down")
				return models.NewError(models.ErrNetwork, p.Manifest.Probe.URL, fmt.Errorf("unreachable"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "External network connection: up")
			return nil
		},
	}
}
