package commands

import (
	"os"

	"propwatch-backend/lib/sources"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Prints the available county source adapters.",
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Source"})

		for _, name := range sources.Names() {
			t.AppendRow(table.Row{name})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
