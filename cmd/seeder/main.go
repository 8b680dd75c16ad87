// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
)

var cfgFile string

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "seeder",
		Short:         "Apply the database schema and seed data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("CONFIG_PATH"), "config file (YAML)")

	root.AddCommand(sqlDirCommand("migrate", "Apply schema migrations", "migrations"))
	root.AddCommand(sqlDirCommand("seed", "Load seed data", "seed"))
	return root
}

func sqlDirCommand(use, short, defaultDir string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			database, err := db.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer database.Close()

			return applyDir(cmd.Context(), database, os.DirFS(dir), func(name string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Applied: %s\n", filepath.Join(dir, name))
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultDir, "directory of .sql files, applied in name order")
	return cmd
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applyDir executes every .sql file at the root of fsys in lexical order and
// stops at the first failure.
func applyDir(ctx context.Context, db execer, fsys fs.FS, applied func(name string)) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no .sql files found")
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", name, err)
		}
		applied(name)
	}
	return nil
}
