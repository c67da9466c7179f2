package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints run and row statistics per batch kind.",
	Long:  "Prints run and row statistics per batch kind from the run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No runs in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "KIND\tRUNS\tBLOCKED\tFAILED\tROWS OK\tROWS FAILED\t")

		var runs, blocked, failed, rowsOK, rowsFailed int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t\n", s.Kind, s.Runs, s.Blocked, s.Failed, s.RowsOK, s.RowsFailed)
			runs += s.Runs
			blocked += s.Blocked
			failed += s.Failed
			rowsOK += s.RowsOK
			rowsFailed += s.RowsFailed
		}

		fmt.Fprintln(w, " \t \t \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t%d\t%d\t\n", runs, blocked, failed, rowsOK, rowsFailed)

		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
