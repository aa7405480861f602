package commands

import (
	"context"
	"fmt"
	"os"

	"propwatch-backend/lib/serviceutil"
	"propwatch-backend/lib/telemetry"
	"propwatch-backend/services/monitor"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var dryRun bool
var onlySources []string

func init() {
	runCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "don't send notifications")
	runCmd.Flags().StringSliceVar(&onlySources, "source", nil, "limit the cycle to counties using these sources")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Executes one poll cycle across the configured counties.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if len(onlySources) > 0 {
			config.Counties = selectCounties(config.Counties, onlySources)
			if len(config.Counties) == 0 {
				serviceutil.Fatal("no configured county matches", fmt.Errorf("--source %v", onlySources))
			}
		}

		telemetry.InitSlog(false)
		t, err := telemetry.SetupFromEnv(cmd.Context(), "monitor")
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer t.Shutdown(context.Background())

		runner, _, err := buildRunner(config, dryRun)
		if err != nil {
			serviceutil.Fatal("failed to build pipeline", err)
		}

		summary := runner.RunCycle(cmd.Context())
		renderSummary(summary)
	},
}

// matches either the adapter name or the county name, so
// `--source miami_dade` works regardless of which one the config used
func selectCounties(counties []CountyConfig, wanted []string) []CountyConfig {
	allowed := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		allowed[name] = true
	}

	var selected []CountyConfig
	for _, c := range counties {
		if allowed[c.Source] || allowed[c.Name] {
			selected = append(selected, c)
		}
	}
	return selected
}

func renderSummary(summary monitor.CycleSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"County", "New", "Updated", "Unchanged", "Removed", "Dropped", "Notified", "Error"})

	for _, c := range summary.Counties {
		t.AppendRow(table.Row{
			c.County, c.New, c.Updated, c.Unchanged, c.Removed, c.Dropped, c.Notified, c.Err,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
