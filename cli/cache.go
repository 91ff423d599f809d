package cli

import (
	"github.com/kvesta/vulnmap/config"
	"github.com/kvesta/vulnmap/internal"

	"github.com/spf13/cobra"
)

func cache() {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the identifier and vulnerability caches",
		Long: `Examples:
  # Remove every cached identifier and vulnerability
  $ vulnmap cache flush

  # Refresh vulnerability entries older than nvd.sync_window
  $ vulnmap cache sync`,
		Args: NoArgs,
	}

	flushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Clear both caches",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := internal.OpenSession(cfg, log)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.Flush(); err != nil {
				return err
			}

			log.Info(config.Green("Caches flushed"))
			return nil
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh stale vulnerability cache entries",
		Args:  NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := internal.OpenSession(cfg, log)
			if err != nil {
				return err
			}
			defer sess.Close()

			n, err := sess.Sync(cmd.Context())
			if err != nil {
				return err
			}

			log.Infof("Refreshed %s cached identifiers", config.Yellow(n))
			return nil
		},
	}

	cacheCmd.AddCommand(flushCmd)
	cacheCmd.AddCommand(syncCmd)

	rootCmd.AddCommand(cacheCmd)
}
