package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"propwatch-backend/lib/configutil"
	configsqlite "propwatch-backend/lib/configutil/sqlite"
	"propwatch-backend/lib/historystore"
	"propwatch-backend/lib/sources"
	"propwatch-backend/services/monitor"
	"propwatch-backend/services/monitor/enrich"
	"propwatch-backend/services/monitor/notifiers"

	"github.com/spf13/cobra"

	// county adapters register themselves by name
	_ "propwatch-backend/lib/sources/miamidade"
	_ "propwatch-backend/lib/sources/sandiego"
	_ "propwatch-backend/lib/sources/static"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "monitor",
	Short: "monitor watches county property records and notifies on changes.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(
		&configPath, "config", "c", "monitor.json5",
		"path to the monitor configuration file",
	)
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type CountyConfig struct {
	Name         string          `json:"name"`
	Source       string          `json:"source"`
	SourceConfig sources.Config  `json:"source_config"`
	Mapping      monitor.Mapping `json:"mapping"`
}

type Config struct {
	Database             configsqlite.Struct  `json:"database"`
	Counties             []CountyConfig       `json:"counties"`
	Filters              monitor.FilterConfig `json:"filters"`
	Notifiers            notifiers.Config     `json:"notifiers"`
	SnapshotDir          string               `json:"snapshot_dir"`
	IntervalMinutes      int                  `json:"interval_minutes"`
	CountyTimeoutSeconds int                  `json:"county_timeout_seconds"`
	StatusPort           int                  `json:"status_port"`
}

func loadConfig() (Config, error) {
	return configutil.ReadConfig[Config](configPath)
}

func buildRunner(config Config, dryRun bool) (monitor.Runner, historystore.Store, error) {
	db, err := config.Database.OpenDB(historystore.Schema())
	if err != nil {
		return monitor.Runner{}, historystore.Store{}, fmt.Errorf("open history database: %w", err)
	}
	store := historystore.NewStore(db)

	counties := make([]monitor.CountyPipeline, 0, len(config.Counties))
	for _, c := range config.Counties {
		source, err := sources.New(c.Source, c.SourceConfig)
		if err != nil {
			return monitor.Runner{}, historystore.Store{}, fmt.Errorf("county %s: %w", c.Name, err)
		}
		counties = append(counties, monitor.CountyPipeline{
			County:  monitor.County(c.Name),
			Source:  source,
			Mapping: c.Mapping,
		})
	}

	var dispatchers []monitor.Dispatcher
	var enricher monitor.Enricher
	if !dryRun {
		dispatchers = notifiers.FromConfig(config.Notifiers)
		if config.SnapshotDir != "" {
			enricher, err = enrich.NewPageSnapshot(config.SnapshotDir)
			if err != nil {
				return monitor.Runner{}, historystore.Store{}, fmt.Errorf("snapshot dir: %w", err)
			}
		}
	}

	runner := monitor.Runner{
		Store:         store,
		Counties:      counties,
		Filter:        config.Filters,
		Dispatchers:   dispatchers,
		Enricher:      enricher,
		CountyTimeout: time.Duration(config.CountyTimeoutSeconds) * time.Second,
	}
	return runner, store, nil
}
