package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/config"
	"github.com/acostock/stocksuite/pkg/monday"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// inspectClient builds a client for the lookups, which only need the token.
func inspectClient() (*monday.Client, error) {
	m, err := config.LoadMonday(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return newClient(m)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Look up monday boards, groups, columns and items while setting up",
}

var inspectMeCmd = &cobra.Command{
	Use:   "me",
	Short: "Check the API token and show whose it is",
	RunE: func(cmd *cobra.Command, args []string) error {
		api, err := inspectClient()
		if err != nil {
			return err
		}
		me, err := api.Me(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%d\t%s\t%s\n", me.ID, me.Name, me.Email)
		return nil
	},
}

var inspectBoardsCmd = &cobra.Command{
	Use:   "boards [search]",
	Short: "List boards, optionally filtered by name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		search := ""
		if len(args) == 1 {
			search = args[0]
		}
		api, err := inspectClient()
		if err != nil {
			return err
		}
		boards, err := api.Boards(context.Background(), search)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tWORKSPACE\tSTATE")
		for _, b := range boards {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", b.ID, b.Name, b.WorkspaceName, b.State)
		}
		return w.Flush()
	},
}

var inspectGroupsCmd = &cobra.Command{
	Use:   "groups <board>",
	Short: "List the groups of a board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		boardID, err := utils.ParseID(args[0])
		if err != nil {
			return fmt.Errorf("invalid board id %q: %w", args[0], err)
		}
		api, err := inspectClient()
		if err != nil {
			return err
		}
		groups, err := api.Groups(context.Background(), boardID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE")
		for _, g := range groups {
			fmt.Fprintf(w, "%s\t%s\n", g.ID, g.Title)
		}
		return w.Flush()
	},
}

var inspectColumnsCmd = &cobra.Command{
	Use:   "columns <board>",
	Short: "List the columns of a board with their types",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		boardID, err := utils.ParseID(args[0])
		if err != nil {
			return fmt.Errorf("invalid board id %q: %w", args[0], err)
		}
		api, err := inspectClient()
		if err != nil {
			return err
		}
		cols, err := api.Columns(context.Background(), boardID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTYPE\tKIND")
		for _, c := range cols {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Title, c.Type, c.Kind())
		}
		return w.Flush()
	},
}

var inspectItemCmd = &cobra.Command{
	Use:   "item <id>",
	Short: "Print an item with its column values as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID, err := utils.ParseID(args[0])
		if err != nil {
			return fmt.Errorf("invalid item id %q: %w", args[0], err)
		}
		api, err := inspectClient()
		if err != nil {
			return err
		}
		it, err := api.Item(context.Background(), itemID)
		if err != nil {
			return err
		}
		if it == nil {
			return fmt.Errorf("item %d not found", itemID)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(it)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.AddCommand(inspectMeCmd)
	inspectCmd.AddCommand(inspectBoardsCmd)
	inspectCmd.AddCommand(inspectGroupsCmd)
	inspectCmd.AddCommand(inspectColumnsCmd)
	inspectCmd.AddCommand(inspectItemCmd)
}
