package commands

import (
	"os"

	"propwatch-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints history store statistics.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		_, store, err := buildRunner(config, true)
		if err != nil {
			serviceutil.Fatal("failed to open store", err)
		}

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to read stats", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Metric", "Value"})
		t.AppendRow(table.Row{"total records", stats.Total})
		t.AppendRow(table.Row{"notified", stats.Notified})
		t.AppendRow(table.Row{"removed", stats.Removed})
		t.AppendSeparator()
		for county, count := range stats.ByCounty {
			t.AppendRow(table.Row{"county: " + county, count})
		}
		t.AppendSeparator()
		for recordType, count := range stats.ByType {
			t.AppendRow(table.Row{"type: " + recordType, count})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
