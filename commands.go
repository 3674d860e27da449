package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"amsportal/internal/config"
	"amsportal/internal/export"
	"amsportal/internal/models"
	"amsportal/internal/server"
	"amsportal/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, log, db, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		log.WithFields(logrus.Fields{
			"db":       cfg.DBPath,
			"timezone": cfg.Location().String(),
			"version":  version,
		}).Info("starting AMS portal")
		return server.New(cfg, db, log).Serve(ctx)
	},
}

var forceConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the portal configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFile
		if path == "" {
			path = config.FileName
		}
		if err := config.WriteDefault(path, forceConfig); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
		return nil
	},
}

var (
	exportFormat string
	exportOut    string
	exportStatus string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export applications as CSV or XLSX",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cfg, _, db, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		st := store.New(db, cfg.Location(), cfg.CurrencySymbol, cfg.AppTypes)
		apps, err := st.ListApplications(ctx, models.ApplicationFilter{Status: exportStatus})
		if err != nil {
			return err
		}

		var out io.Writer = cmd.OutOrStdout()
		if exportOut != "" && exportOut != "-" {
			f, err := os.Create(exportOut)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := export.Write(out, format, apps); err != nil {
			return err
		}
		if exportOut != "" && exportOut != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d applications to %s\n", len(apps), exportOut)
		}
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceConfig, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)

	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "-", "output file, - for stdout")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", `status filter: "", active, or a status name`)
}
