package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"turnocal/internal/catalog"
	"turnocal/internal/config"
	"turnocal/internal/ics"
	appLog "turnocal/internal/log"
	"turnocal/internal/service"
	"turnocal/internal/store"
)

const version = "0.1.0"

// options holds global flag values.
type options struct {
	configPath string
	verbose    bool
	dataDir    string
}

// app bundles everything a command needs once config is resolved.
type app struct {
	cfg     *config.Config
	svc     *service.Service
	catalog *catalog.Catalog
}

// Close releases the catalog. It is safe to call more than once.
func (a *app) Close() {
	if a.catalog == nil {
		return
	}
	if err := a.catalog.Close(); err != nil {
		appLog.Error("failed to close catalog", err)
	}
	a.catalog = nil
}

func newRootCmd() (*cobra.Command, *app) {
	opts := &options{}
	a := &app{}

	root := &cobra.Command{
		Use:   "turnocal",
		Short: "Decode shift rosters, keep monthly history, publish per-person calendars",
		Long: `turnocal imports tabulated shift rosters, decodes each cell into a
start time and duration, merges the result into a per-month history
and writes one iCalendar feed per person.

Documents are de-duplicated by content hash, so importing the same file
twice changes nothing.`,
		SilenceUsage: true,
		Version:      version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if err := a.open(); err != nil {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "./config.yaml", "Path to config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Historical store directory (overrides config)")

	root.AddCommand(
		newServeCmd(a),
		newImportCmd(a),
		newPartitionsCmd(a),
		newLookupCmd(a),
		newSwapCmd(a),
		newCalendarCmd(a),
		newImportsCmd(a),
	)
	return root, a
}

// execute runs root and always releases what the command opened; cobra
// skips post-run hooks when RunE fails.
func execute(root *cobra.Command, a *app) error {
	defer appLog.Sync()
	defer a.Close()
	return root.Execute()
}

// loadConfig resolves configuration: file, then .env/environment, then flags.
func loadConfig(opts *options) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		appLog.Debug(".env file not found")
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", opts.configPath, err)
	}
	cfg.ApplyEnv()
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.verbose {
		cfg.LogLevel = "DEBUG"
	}

	appLog.Configure(appLog.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	appLog.Debug("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"data_dir", cfg.DataDir,
		"calendar_dir", cfg.CalendarDir,
		"inbox_dir", cfg.InboxDir,
		"catalog_path", cfg.CatalogPath,
		"cleanup_interval", cfg.CleanupInterval,
	)
	return cfg, nil
}

func (a *app) open() error {
	st, err := store.New(a.cfg.DataDir)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(a.cfg.CatalogPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	cat, err := catalog.Open(a.cfg.CatalogPath)
	if err != nil {
		return err
	}
	a.catalog = cat

	a.svc = service.New(service.Options{
		Store:       st,
		Catalog:     cat,
		Feeds:       ics.Writer{Dir: a.cfg.CalendarDir, Location: a.cfg.Location()},
		FeedWorkers: a.cfg.FeedWorkers,
	})
	return nil
}

func main() {
	if err := execute(newRootCmd()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
