package cli

import (
	"os"

	"github.com/kvesta/vulnmap/config"
	"github.com/kvesta/vulnmap/internal"
	"github.com/kvesta/vulnmap/internal/report"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func scan() {
	opts := internal.Options{}

	scanCmd := &cobra.Command{
		Use:   "scan [OPTIONS]",
		Short: "Scan the machines of an inventory file",
		Long: `Examples:
  # Scan every machine of the inventory
  $ vulnmap scan --inventory inventory.yaml

  # Scan through docker exec instead of ssh
  $ vulnmap scan --inventory containers.yaml --source docker

  # Start from empty caches
  $ vulnmap scan --inventory inventory.yaml --flush-cache

  # Re-fetch everything, falling back to the cache on failure
  $ vulnmap scan --inventory inventory.yaml --force-check

  # Print the last results without contacting anything
  $ vulnmap scan --inventory inventory.yaml --report-only`,
		Args: NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Inventory = cfg.Inventory.Path
			opts.Source = cfg.Inventory.Source
			opts.Out = os.Stdout

			summary, err := internal.DoScan(cmd.Context(), cfg, opts, log)
			if summary != nil {
				report.ResolveSummary(os.Stdout, summary)
			}
			if err != nil {
				return err
			}

			log.Info(config.Green("Scan finished"))
			return nil
		},
	}

	flags := scanCmd.Flags()
	flags.StringP("inventory", "i", "", "inventory file listing the machines")
	flags.StringP("source", "s", "", "override the acquisition source of every machine (ssh, docker, kubernetes, local)")
	flags.BoolVar(&opts.FlushCache, "flush-cache", false, "clear the identifier and vulnerability caches first")
	flags.BoolVar(&opts.ForceCheck, "force-check", false, "regenerate identifiers and re-fetch cached vulnerabilities")
	flags.BoolVar(&opts.ReportOnly, "report-only", false, "rebuild reports from stored snapshots and caches only")
	flags.BoolVar(&opts.Sync, "sync", false, "refresh stale vulnerability cache entries before scanning")
	flags.BoolVar(&opts.SkipPreflight, "skip-preflight", false, "skip the vulnerability source connectivity check")

	viper.BindPFlag("inventory.path", flags.Lookup("inventory"))
	viper.BindPFlag("inventory.source", flags.Lookup("source"))

	rootCmd.AddCommand(scanCmd)
}
