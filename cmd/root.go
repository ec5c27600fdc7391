package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MJE43/studio-analyzer/internal/config"
	"github.com/MJE43/studio-analyzer/internal/logging"
	"github.com/MJE43/studio-analyzer/internal/roundstore"
	"github.com/MJE43/studio-analyzer/internal/secrets"
	"github.com/MJE43/studio-analyzer/internal/tracker"
)

const appName = "studio-analyzer"

var rootCmd = &cobra.Command{
	Use:           "studio",
	Short:         "Round-sequence forecaster for three-outcome tables",
	Long:          "studio records round outcomes per table, forecasts the next one and suggests when to act or wait.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides STUDIO_DB)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the persistent flag
// overrides, then configures logging.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Database.Path = p
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// app bundles what every data command needs.
type app struct {
	cfg     config.Config
	store   *roundstore.Store
	tracker *tracker.Tracker
}

// openApp loads the config, opens the store and builds the tracker.
// Logging is initialised before any component logger is created.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("resolve DB path: %w", err)
	}
	engine, err := cfg.Engine.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	st, err := roundstore.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, store: st, tracker: tracker.New(engine, st, nil)}, nil
}

func (a *app) Close() {
	a.store.Close()
	logging.Close()
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// secretStore returns the token store, with its file fallback under the
// user config directory.
func secretStore() *secrets.Store {
	fallback := ""
	if dir, err := os.UserConfigDir(); err == nil {
		fallback = filepath.Join(dir, appName, "secrets.json")
	}
	return secrets.NewStore(appName, fallback)
}

func addSessionFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("session", "s", "", "Session ID (required)")
	_ = cmd.MarkFlagRequired("session")
}

func sessionFlag(cmd *cobra.Command) (uuid.UUID, error) {
	v, _ := cmd.Flags().GetString("session")
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --session %q: %w", v, err)
	}
	return id, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
