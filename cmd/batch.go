package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/batch"
	"github.com/spf13/cobra"
)

func newBatchCmd(kind batch.Kind, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   string(kind),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			group, _ := cmd.Flags().GetString("group")
			user, _ := cmd.Flags().GetInt64("user")
			sentinel, _ := cmd.Flags().GetInt64("sentinel")

			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			unlock, err := a.runLock(ctx, kind)
			if err != nil {
				return err
			}
			defer unlock()

			res, err := a.orch.Process(ctx, kind, batch.Trigger{GroupID: group, UserID: user, SentinelItemID: sentinel})
			if res != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(res)
			}
			if err != nil {
				return err
			}
			if sentinel != 0 && (kind == batch.KindExit || !res.Blocked) {
				if err := a.orch.RemoveSentinel(ctx, kind, sentinel); err != nil {
					utils.Log.Warnf("%v", err)
				}
			}
			if res.Blocked {
				return fmt.Errorf("%s batch blocked: %d rows are missing QC or count", kind, res.MissingCount)
			}
			return nil
		},
	}
	c.Flags().StringP("group", "g", "", "Group to process (default is the configured group)")
	c.Flags().Int64("user", 0, "User id credited as the trigger user on report rows")
	c.Flags().Int64("sentinel", 0, "Completion row to remove after the run")
	return c
}

func init() {
	rootCmd.AddCommand(newBatchCmd(batch.KindEntry, "Process the entry batch: QC gate, add stock, mirror and archive rows"))
	rootCmd.AddCommand(newBatchCmd(batch.KindExit, "Process the exit batch: take stock out, mirror and remove rows"))
}
