package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/db"
	authmigrations "github.com/md-rashed-zaman/dentalcare/services/auth-service/migrations"
	billingmigrations "github.com/md-rashed-zaman/dentalcare/services/billing-service/migrations"
	clinicmigrations "github.com/md-rashed-zaman/dentalcare/services/clinic-service/migrations"
	"github.com/spf13/cobra"
)

type schema struct {
	fsys    fs.FS
	lockKey int64
}

// LuzIA tables are managed by gorm on service start and are not listed here.
var schemas = map[string]schema{
	"auth":    {fsys: authmigrations.FS, lockKey: authmigrations.LockKey},
	"clinic":  {fsys: clinicmigrations.FS, lockKey: clinicmigrations.LockKey},
	"billing": {fsys: billingmigrations.FS, lockKey: billingmigrations.LockKey},
}

func schemaNames() []string {
	names := make([]string, 0, len(schemas))
	for n := range schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupSchema(service string) (schema, error) {
	s, ok := schemas[strings.ToLower(strings.TrimSpace(service))]
	if !ok {
		return schema{}, fmt.Errorf("unknown service %q, want one of %s", service, strings.Join(schemaNames(), ", "))
	}
	return s, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations of one service database",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _ := cmd.Flags().GetString("service")
			dbURL, _ := cmd.Flags().GetString("database-url")
			s, err := lookupSchema(service)
			if err != nil {
				return err
			}
			if dbURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}

			ctx := cmd.Context()
			pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			applied, err := db.Migrate(ctx, pool, s.fsys, s.lockKey, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s)\n", service, applied)
			return nil
		},
	}
	upCmd.Flags().String("service", "", "Service whose schema to migrate ("+strings.Join(schemaNames(), "|")+")")
	upCmd.Flags().String("database-url", config.String("DATABASE_URL", ""), "Postgres connection string")
	cmd.AddCommand(upCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the embedded migrations of one service",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _ := cmd.Flags().GetString("service")
			return listMigrations(cmd, service)
		},
	}
	listCmd.Flags().String("service", "", "Service whose migrations to list")
	cmd.AddCommand(listCmd)

	return cmd
}

func listMigrations(cmd *cobra.Command, service string) error {
	s, err := lookupSchema(service)
	if err != nil {
		return err
	}
	migrations, err := db.LoadMigrations(s.fsys)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		fmt.Fprintf(cmd.OutOrStdout(), "%03d  %s\n", m.Version, m.Name)
	}
	return nil
}
