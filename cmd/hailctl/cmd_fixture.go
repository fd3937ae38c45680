package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

type fixtureFile struct {
	Reports []domain.HailReport `json:"reports"`
}

func newFixtureCmd(a *app) *cobra.Command {
	var (
		in  inputFlags
		out string
	)
	cmd := &cobra.Command{
		Use:   "fixture FILE...",
		Short: "Convert SPC hail CSVs or raw JSON into a normalized fixture",
		Long: "Fixture normalizes every input file, drops invalid and duplicate records,\n" +
			"and writes a {\"reports\": [...]} file the service and render can load.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := a.logger(cmd)

			var all []domain.RawReport
			for _, path := range args {
				raws, source, err := in.readRaw(path)
				if err != nil {
					return err
				}
				for i := range raws {
					if raws[i].Source == "" {
						raws[i].Source = source
					}
				}
				all = append(all, raws...)
			}

			reports, stats := domain.NormalizeReports(in.source, all, logger)
			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			err = writeJSON(w, fixtureFile{Reports: reports}, true)
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("write fixture: %w", err)
			}
			logger.Info("fixture written",
				"files", len(args),
				"kept", stats.Kept,
				"duplicates", stats.Duplicates,
				"dropped", stats.Dropped,
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.source, "source", domain.SourceFixture, "source name for records that carry none")
	f.StringVar(&in.day, "day", "", "convective day of the SPC CSVs (YYYY-MM-DD); default from each file name")
	f.StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
