package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"

	"github.com/acostock/stocksuite/internal/utils"
	"github.com/acostock/stocksuite/pkg/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the run history database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := utils.GetAbsDBPath(viper.GetString("storage.dbpath"))
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Prefer the real sqlite3 client when it is installed.
		if sqlitePath, err := exec.LookPath("sqlite3"); err == nil {
			fmt.Println("--> Database schema:")
			schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
			schemaCmd.Stdout = os.Stdout
			schemaCmd.Stderr = os.Stderr
			if err := schemaCmd.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
			}
			fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

			c := exec.Command(sqlitePath, dbPath)
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			return c.Run()
		}

		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Println("--> sqlite3 not found, using the built-in shell. End statements with ';' (Ctrl+D to exit)")
		return builtinShell(context.Background(), db, os.Stdin, os.Stdout)
	},
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one SQL statement against the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()
		return runStatement(context.Background(), db, args[0], os.Stdout)
	},
}

// builtinShell reads statements terminated by ';' and prints their results.
func builtinShell(ctx context.Context, db *storage.DB, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	var stmt strings.Builder
	fmt.Fprint(out, "sqlite> ")
	for sc.Scan() {
		stmt.WriteString(sc.Text())
		stmt.WriteString("\n")
		if !strings.HasSuffix(strings.TrimSpace(stmt.String()), ";") {
			fmt.Fprint(out, "   ...> ")
			continue
		}
		if err := runStatement(ctx, db, stmt.String(), out); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
		stmt.Reset()
		fmt.Fprint(out, "sqlite> ")
	}
	fmt.Fprintln(out)
	return sc.Err()
}

func runStatement(ctx context.Context, db *storage.DB, stmt string, out io.Writer) error {
	stmt = strings.TrimSpace(stmt)
	if stmt == "" {
		return nil
	}
	verb := strings.ToUpper(strings.Fields(stmt)[0])
	if verb != "SELECT" && verb != "PRAGMA" && verb != "WITH" && verb != "EXPLAIN" {
		n, err := db.Exec(ctx, stmt)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d rows affected\n", n)
		return nil
	}

	cols, rows, err := db.Query(ctx, stmt)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	for _, r := range rows {
		fmt.Fprintln(w, strings.Join(r, "\t"))
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(queryCmd)
}
