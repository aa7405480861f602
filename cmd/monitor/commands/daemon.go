package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"propwatch-backend/lib/serviceutil"
	"propwatch-backend/lib/telemetry"
	"propwatch-backend/services/monitor"

	"github.com/spf13/cobra"
)

var intervalFlag time.Duration

func init() {
	daemonCmd.Flags().DurationVar(&intervalFlag, "interval", 0, "poll interval, overrides interval_minutes from the config")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Polls the configured counties on an interval until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		config, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		telemetry.InitSlog(false)
		t, err := telemetry.SetupFromEnv(ctx, "monitor")
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer t.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)

		runner, _, err := buildRunner(config, false)
		if err != nil {
			serviceutil.Fatal("failed to build pipeline", err)
		}

		interval := time.Duration(config.IntervalMinutes) * time.Minute
		if intervalFlag > 0 {
			interval = intervalFlag
		}
		if interval <= 0 {
			interval = time.Hour
		}

		var latest latestSummary
		if config.StatusPort != 0 {
			mux := http.NewServeMux()
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			mux.HandleFunc("/summary", latest.serve)
			go serviceutil.StartHttpServer(config.StatusPort, mux)
		}

		// first cycle immediately, then on the interval
		latest.set(runner.RunCycle(ctx))
		runner.Since = latest.get().StartedAt

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				summary := runner.RunCycle(ctx)
				latest.set(summary)
				runner.Since = summary.StartedAt
			}
		}
	},
}

type latestSummary struct {
	mu      sync.RWMutex
	summary *monitor.CycleSummary
}

func (l *latestSummary) set(summary monitor.CycleSummary) {
	l.mu.Lock()
	l.summary = &summary
	l.mu.Unlock()
}

func (l *latestSummary) get() monitor.CycleSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.summary == nil {
		return monitor.CycleSummary{}
	}
	return *l.summary
}

func (l *latestSummary) serve(w http.ResponseWriter, r *http.Request) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.summary == nil {
		http.Error(w, "no cycle has finished yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("content-type", "application/json")
	json.NewEncoder(w).Encode(l.summary)
}
