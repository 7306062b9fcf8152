package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/dentalcare/libs/config"
	"github.com/md-rashed-zaman/dentalcare/libs/db"
	"github.com/md-rashed-zaman/dentalcare/libs/insurance"
	"github.com/spf13/cobra"
)

const (
	upsertInsurerSQL = `INSERT INTO insurers (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`
	upsertPlanSQL = `INSERT INTO insurance_plans (id, insurer_id, name) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET insurer_id = EXCLUDED.insurer_id, name = EXCLUDED.name`
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	insurersCmd := &cobra.Command{
		Use:   "insurers",
		Short: "Upsert the built-in insurer and plan catalog into the clinic database",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, _ := cmd.Flags().GetString("database-url")
			if dbURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}
			ctx := cmd.Context()
			pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			batch := catalogBatch()
			if err := sendBatch(ctx, pool, batch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d insurers, %d plans\n", len(insurance.Insurers()), len(insurance.Plans()))
			return nil
		},
	}
	insurersCmd.Flags().String("database-url", config.String("DATABASE_URL", ""), "Clinic Postgres connection string")
	cmd.AddCommand(insurersCmd)

	return cmd
}

// catalogBatch queues insurers before plans so plan foreign keys resolve.
func catalogBatch() *pgx.Batch {
	batch := &pgx.Batch{}
	for _, in := range insurance.Insurers() {
		batch.Queue(upsertInsurerSQL, in.ID, in.Name)
	}
	for _, p := range insurance.Plans() {
		batch.Queue(upsertPlanSQL, p.ID, p.InsurerID, p.Name)
	}
	return batch
}

func sendBatch(ctx context.Context, pool *db.Pool, batch *pgx.Batch) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("seed statement %d: %w", i, err)
			}
		}
		return results.Close()
	})
}
