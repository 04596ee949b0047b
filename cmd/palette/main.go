// Command palette administers the colour palette from the shell: it edits
// entries, bulk-imports them and renders avatars without going through chat.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"avatarbot/internal/bot"
	"avatarbot/internal/colorspec"
	"avatarbot/internal/config"
	"avatarbot/internal/db"
	"avatarbot/internal/palette"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "palette: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	a := &app{out: out}
	defer a.close()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

type app struct {
	databaseURL string
	out         io.Writer
	database    *gorm.DB
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "palette",
		Short:         "Manage the avatar bot colour palette",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Database connection URL (postgres://, sqlite:// or a file path)")

	root.AddCommand(a.setCommand())
	root.AddCommand(a.removeCommand())
	root.AddCommand(a.listCommand())
	root.AddCommand(a.importCommand())
	root.AddCommand(a.renderCommand())
	return root
}

// store opens and migrates the database on first use.
func (a *app) store() (*palette.Store, error) {
	if a.database == nil {
		if strings.TrimSpace(a.databaseURL) == "" {
			return nil, errors.New("database URL is required (--database-url or DATABASE_URL)")
		}
		database, err := db.Configure(config.DatabaseConfig{URL: a.databaseURL})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.database = database
	}
	return palette.NewStore(a.database), nil
}

func (a *app) close() {
	if a.database == nil {
		return
	}
	if sqlDB, err := a.database.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) setCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set NAME [COLOR...]",
		Short: "Add a colour, change it, or reactivate a removed one",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bot.IsReservedName(args[0]) {
				return fmt.Errorf("%q is reserved for the refresh button", args[0])
			}
			var rgb *colorspec.RGB
			if len(args) > 1 {
				parsed, err := colorspec.Parse(args[1:])
				if err != nil {
					return err
				}
				rgb = &parsed
			}

			store, err := a.store()
			if err != nil {
				return err
			}
			color, err := store.Upsert(cmd.Context(), args[0], rgb)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s active\n", color.Name, color.RGB().Hex())
			return nil
		},
	}
}

func (a *app) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm NAME",
		Short: "Hide a colour from the selector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			color, err := store.Deactivate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s %s inactive\n", color.Name, color.RGB().Hex())
			return nil
		},
	}
}

func (a *app) listCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the palette",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store()
			if err != nil {
				return err
			}
			list := store.ListActive
			if all {
				list = store.List
			}
			colors, err := list(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCOLOR\tACTIVE")
			for _, c := range colors {
				fmt.Fprintf(w, "%s\t%s\t%t\n", c.Name, c.RGB().Hex(), c.Active)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive colours")
	return cmd
}
