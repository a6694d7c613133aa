package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/magicmac/myday/internal/schema"
	"github.com/magicmac/myday/internal/ui"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "tasks",
	Short:   "Show today's activity rings",
	Long: `Show three activity measures:

  Today        share of today's tasks that are completed
  Consistency  days of the last 7 with at least 70% completed
  Volume       completed tasks today against a goal of 6`,
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")

		a := openApp(appOptions{})
		defer a.close()

		tasks := a.load(context.Background())
		stats, err := schema.ComputeStats(tasks, schema.TodayKey())
		if err != nil {
			a.close()
			fatalf("%v", err)
		}
		if asJSON {
			printJSON(stats)
			return
		}

		fmt.Printf("\n%s\n", ui.RenderTitle("Activity"))
		fmt.Println(ui.RenderBar("Today", stats.DailyCompletionPct))
		fmt.Println(ui.RenderBar("Consistency", stats.ConsistencyPct))
		fmt.Println(ui.RenderBar("Volume", stats.VolumePct))
		fmt.Println()
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(statsCmd)
}
