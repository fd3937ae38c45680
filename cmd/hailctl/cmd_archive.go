package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/archive"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Manage the Postgres hail report archive",
	}
	cmd.PersistentFlags().String(keyDatabaseURL, "", "Postgres connection URL (or HAILCTL_DATABASE_URL)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the archive schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := a.openArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := archive.RunMigrations(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "archive schema is up to date")
			return nil
		},
	}

	var in inputFlags
	importCmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Normalize report files and insert them into the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger(cmd)
			pool, err := a.openArchive(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := archive.RunMigrations(cmd.Context(), pool); err != nil {
				return err
			}

			src := archive.NewSource(pool, logger)
			total, inserted := 0, 0
			for _, path := range args {
				reports, _, err := in.readReports(path, logger)
				if err != nil {
					return err
				}
				n, err := src.Insert(cmd.Context(), reports)
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
				total += len(reports)
				inserted += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d of %d reports (%d already archived)\n", inserted, total, total-inserted)
			return nil
		},
	}
	f := importCmd.Flags()
	f.StringVar(&in.source, "source", domain.SourceArchive, "source name for JSON records that carry none")
	f.StringVar(&in.day, "day", "", "convective day of SPC CSVs (YYYY-MM-DD); default from each file name")

	cmd.AddCommand(migrate, importCmd)
	return cmd
}

func (a *app) openArchive(ctx context.Context) (*pgxpool.Pool, error) {
	url := a.v.GetString(keyDatabaseURL)
	if url == "" {
		return nil, errors.New("archive: --database-url or HAILCTL_DATABASE_URL is required")
	}
	return archive.Open(ctx, url)
}
