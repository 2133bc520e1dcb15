// Command ctl is the operator CLI for the accounting service: schema
// migrations and read-only account inspection. Grounded on the teacher's
// root main.go (a cobra.Command tree with persistent --postgres-url/--verbose
// flags and a printJSON helper), generalizing its customer/balance/admin
// command groups into migrate/account groups for this domain.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	"github.com/gridledger/accounting/migrations"
)

// Version is set during build.
var Version = "dev"

var (
	databaseURL string
	verbose     bool

	db *sql.DB
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	rootCmd := &cobra.Command{
		Use:           "accounting-ctl",
		Short:         "accounting-ctl administers the accounting ledger database",
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			if cmd.Name() == "help" {
				return nil
			}
			var err error
			db, err = sql.Open("postgres", databaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			return db.PingContext(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				db.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", getEnv("DATABASE_URL", ""), "PostgreSQL connection URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(migrateCmd(), accountCmd(), seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("build postgres driver: %w", err)
	}
	return migrate.NewWithInstance("iofs", src, "postgres", driver)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back schema migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			if err := m.Up(); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "roll back one migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			if err := m.Steps(-1); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Println("one migration rolled back")
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "print the currently applied migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := migrator()
			if err != nil {
				return err
			}
			v, dirty, err := m.Version()
			if err != nil && err != migrate.ErrNilVersion {
				return err
			}
			printJSON(map[string]any{"version": v, "dirty": dirty})
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

// seedCmd creates the singleton SYS account a fresh database needs before
// any top-up or reservation can be posted (virtual labs are created with no
// parent; SYS is the counterparty of top-ups and is part of every project's
// account set). It is idempotent: a second run finds the existing row and
// does nothing.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "create the root SYS account if it does not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts := storeaccount.New()
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			var existing uuid.UUID
			err := db.QueryRowContext(ctx, `SELECT id FROM accounts WHERE type = 'SYS'`).Scan(&existing)
			if err == nil {
				fmt.Println("SYS account already exists:", existing)
				return nil
			}
			if err != sql.ErrNoRows {
				return fmt.Errorf("check existing SYS account: %w", err)
			}

			var created *model.Account
			txErr := dbx.RunSerializable(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
				a, err := accounts.Create(ctx, tx, model.AccountSYS, nil, "system")
				created = a
				return err
			})
			if txErr != nil {
				return fmt.Errorf("create SYS account: %w", txErr)
			}
			fmt.Println("created SYS account:", created.ID)
			return nil
		},
	}
}

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "inspect accounts",
	}

	accounts := storeaccount.New()

	get := &cobra.Command{
		Use:   "get <account-id>",
		Short: "show one account and its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			a, err := accounts.Get(ctx, db, id)
			if err != nil {
				return err
			}
			printJSON(accountJSON(a))
			return nil
		},
	}

	children := &cobra.Command{
		Use:   "children <account-id>",
		Short: "list an account's direct children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid account id: %w", err)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			kids, err := accounts.ListChildren(ctx, db, id)
			if err != nil {
				return err
			}
			out := make([]map[string]any, 0, len(kids))
			for _, k := range kids {
				out = append(out, accountJSON(k))
			}
			printJSON(out)
			return nil
		},
	}

	cmd.AddCommand(get, children)
	return cmd
}

func accountJSON(a *model.Account) map[string]any {
	m := map[string]any{
		"id":      a.ID,
		"type":    a.Type,
		"name":    a.Name,
		"balance": a.Balance.StringFixed(5),
		"enabled": a.Enabled,
	}
	if a.ParentID != nil {
		m["parent_id"] = a.ParentID.String()
	}
	return m
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
