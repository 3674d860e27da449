// Command amsportal runs the AMS Portal admin back office and its
// maintenance tasks.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"amsportal/internal/config"
	"amsportal/internal/database"
	"amsportal/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// configFile is set by the --config flag.
var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "amsportal",
	Short: "AMS Portal is the back office for application processing",
	Long: `AMS Portal tracks applications received from agents and walk-in
applicants, their payments and work logs, behind a single admin login.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: ./"+config.FileName+")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

// bootstrap loads the configuration, builds the logger and opens the seeded
// database. The caller closes the database.
func bootstrap(ctx context.Context) (config.Config, *logrus.Logger, *sql.DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return config.Config{}, nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Seed(ctx, db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		db.Close()
		return config.Config{}, nil, nil, fmt.Errorf("seed database: %w", err)
	}
	return cfg, log, db, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the amsportal version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "amsportal", version)
	},
}
