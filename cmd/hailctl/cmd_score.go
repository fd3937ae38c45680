package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-hailgrid/internal/adapter/fixture"
	"github.com/couchcryptid/storm-data-hailgrid/internal/domain"
)

// scoreMargin pads the derived box so edge reports stay inside it.
const scoreMargin = 0.01

type scoreOutput struct {
	Count   int                   `json:"count"`
	Stats   domain.NormalizeStats `json:"stats"`
	Bounds  domain.Bounds         `json:"bounds"`
	Reports []domain.HailReport   `json:"reports"`
}

func newScoreCmd(a *app) *cobra.Command {
	var (
		in     inputFlags
		out    string
		asOf   string
		pretty bool
	)
	cmd := &cobra.Command{
		Use:   "score FILE",
		Short: "Print the scored reports a render would draw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setAsOf(asOf); err != nil {
				return err
			}
			logger := a.logger(cmd)

			q, err := in.query()
			if err != nil {
				return err
			}
			reports, stats, err := in.readReports(args[0], logger)
			if err != nil {
				return err
			}
			if q.Bounds == (domain.Bounds{}) {
				b, ok := domain.BoundsOf(reports)
				if !ok {
					return fmt.Errorf("%s: no usable reports", args[0])
				}
				q.Bounds = b.Pad(scoreMargin)
			}

			r, err := a.renderer(cmd, fixture.NewSource(reports))
			if err != nil {
				return err
			}
			scored, err := r.Reports(cmd.Context(), q)
			if err != nil {
				return err
			}

			w, closeFn, err := output(cmd, out)
			if err != nil {
				return err
			}
			err = writeJSON(w, scoreOutput{Count: len(scored), Stats: stats, Bounds: q.Bounds, Reports: scored}, pretty)
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			return err
		},
	}
	in.register(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "score recency as of this time (RFC 3339)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")
	return cmd
}
