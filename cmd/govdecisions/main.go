package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stake-plus/govdecisions/src/config"
	"github.com/stake-plus/govdecisions/src/data"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const programName = "govdecisions"

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFile string
	debug      bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Group decision lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "D", false, "log SQL statements")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(sweepCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(tokenCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}

// open loads configuration, connects and migrates. Settings stored in the
// database are applied last, so the config is validated after the overlay.
func open() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}

	level := logger.Warn
	if debug {
		level = logger.Info
	}
	db, err := data.Connect(strings.ToLower(cfg.Database.Driver), cfg.Database.DSN, data.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        level,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	if err := data.Migrate(db); err != nil {
		_ = data.Close(db)
		return nil, nil, fmt.Errorf("db: %w", err)
	}

	config.ApplySettings(db, cfg)
	if err := cfg.Validate(); err != nil {
		_ = data.Close(db)
		return nil, nil, err
	}
	return cfg, db, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", programName, version)
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, db, err := open()
			if err != nil {
				return err
			}
			defer data.Close(db)
			log.Printf("migrate: schema is up to date")
			return nil
		},
	}
}
