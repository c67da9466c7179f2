package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent batch runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRecentRuns(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tGROUP\tSTARTED\tROWS\tSTATUS")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.Kind, r.GroupID, r.StartedAt.Local().Format(time.DateTime), r.Count, runStatus(r.OK, r.Blocked, r.Reason, r.Error))
		}
		return w.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one run with its row results as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(context.Background(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recent runs and their rows to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := db.ExportRuns(context.Background(), f, limit); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("Exported runs to %s\n", out)
		return nil
	},
}

func runStatus(ok, blocked bool, reason, errMsg string) string {
	switch {
	case blocked:
		return "blocked (" + reason + ")"
	case errMsg != "":
		return "failed: " + errMsg
	case ok:
		return "ok"
	}
	return "failed"
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)

	runsCmd.Flags().IntP("limit", "n", 20, "Number of runs to list")
	runsExportCmd.Flags().StringP("out", "o", "runs.xlsx", "Output workbook")
	runsExportCmd.Flags().IntP("limit", "n", 500, "Number of runs to export")
}
