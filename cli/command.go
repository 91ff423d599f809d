package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kvesta/vulnmap/config"
	scanerr "github.com/kvesta/vulnmap/internal/errors"
	"github.com/kvesta/vulnmap/internal/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// set with -ldflags "-X github.com/kvesta/vulnmap/cli.version=..."
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "vulnmap [OPTIONS]",
		Short: "Map machine inventory to known vulnerabilities",
		Long: `vulnmap collects installed packages and hardware of remote Linux machines,
generates CPE identifiers for them and looks the identifiers up in the NVD.
Results are cached so that repeated runs only pay for what changed.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if closeLog != nil {
				closeLog()
			}
		},
	}

	cfgFile  string
	cfg      *config.Config
	log      logrus.FieldLogger
	closeLog func() error
)

func setup(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return scanerr.Configuration("load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return scanerr.Configuration("validate config", err)
	}

	l, closer, err := logger.New(logger.Options{
		Level: cfg.Logging.Level,
		Dir:   cfg.Logging.Dir,
	})
	if err != nil {
		return scanerr.Configuration("logging", err)
	}
	log, closeLog = l, closer

	return nil
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and quit",
		Args:  NoArgs,
		// no config needed
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("vulnmap " + version)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.vulnmap/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("cache-dir", "", "directory of the caches, snapshots and reports")

	viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	viper.BindPFlag("cache.dir", flags.Lookup("cache-dir"))

	scan()
	cache()
	rootCmd.AddCommand(versionCmd)

	return rootCmd.ExecuteContext(ctx)
}
