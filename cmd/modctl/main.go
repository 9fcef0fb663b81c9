// Command modctl is the operator tool for IP bans, the flag queue, the
// session audit trail and demo data. It talks to the database directly; a
// running server applies ban changes on its next request.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/sujalbistaa/entrenous/internal/audit"
	"github.com/sujalbistaa/entrenous/internal/auth"
	"github.com/sujalbistaa/entrenous/internal/banguard"
	"github.com/sujalbistaa/entrenous/internal/config"
	"github.com/sujalbistaa/entrenous/internal/content"
	"github.com/sujalbistaa/entrenous/internal/db"
	"github.com/sujalbistaa/entrenous/internal/keylock"
	"github.com/sujalbistaa/entrenous/internal/logger"
	"github.com/sujalbistaa/entrenous/internal/moderation"
	"github.com/sujalbistaa/entrenous/internal/store"
)

var (
	configPath string
	verbose    bool
	settings   = newSettings()
)

var rootCmd = &cobra.Command{
	Use:   "modctl",
	Short: "Entre Nous moderation tooling",
	Long: `modctl manages IP prefix bans, reviews the pending flag queue and
seeds demo data. Settings come from flags, then the environment (.env is
honoured), then an optional config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		if configPath != "" {
			settings.SetConfigFile(configPath)
			if err := settings.ReadInConfig(); err != nil {
				return fmt.Errorf("reading %s: %w", configPath, err)
			}
		}
		level := settings.GetString(config.KeyLogLevel)
		if verbose {
			level = "debug"
		}
		return logger.Initialize(level, settings.GetString(config.KeyLogFile))
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("database-url", "", "Database URL (defaults to DATABASE_URL)")
	_ = settings.BindPFlag(config.KeyDatabaseURL, rootCmd.PersistentFlags().Lookup("database-url"))

	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(banCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// newSettings is the server's setting layer with quieter logging defaults.
func newSettings() *viper.Viper {
	v := config.NewViper()
	v.SetDefault(config.KeyLogLevel, "warn")
	v.SetDefault(config.KeyLogFile, "modctl.log")
	return v
}

// app holds the services a command runs against.
type app struct {
	db       *gorm.DB
	store    *store.Store
	guard    *banguard.Guard
	pipeline *moderation.Pipeline
	content  *content.Service
	auth     *auth.Service
	audit    *audit.Recorder
}

// newApp needs CONTENT_ENC_KEY to read or write sealed rows; the server's
// other secrets are optional here.
func newApp(cfg config.Config, gdb *gorm.DB) (*app, error) {
	box, err := cfg.ContentBox()
	if err != nil {
		return nil, err
	}
	st := store.New(gdb, box)
	locks := keylock.New()
	pipeline := moderation.NewPipeline(st, locks, cfg.Moderation, nil)
	guard := banguard.New(st, cfg.Bans)
	return &app{
		db:       gdb,
		store:    st,
		guard:    guard,
		pipeline: pipeline,
		content:  content.NewService(st, pipeline, locks, cfg.MaxBodyLength),
		auth:     auth.NewService(st, &cfg),
		audit:    audit.NewRecorder(st, guard, cfg.IPLookupPepper),
	}, nil
}

// openApp connects to the configured database and migrates it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.FromViper(settings)
	if err != nil {
		return nil, err
	}
	gdb, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb.WithContext(ctx)); err != nil {
		return nil, err
	}
	a, err := newApp(cfg, gdb)
	if err != nil {
		if sqlDB, dbErr := gdb.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
