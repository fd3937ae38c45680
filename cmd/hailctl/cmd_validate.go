package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-hailgrid/internal/contour"
)

var errValidationFailed = errors.New("validation failed")

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func newValidateCmd(_ *app) *cobra.Command {
	var minNesting float64
	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a rendered swath GeoJSON for geometry defects",
		Long: "Validate runs phased checks over a FeatureCollection written by render:\n" +
			"feature properties, ring geometry and winding, level order, and nesting.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			fc, err := geojson.UnmarshalFeatureCollection(data)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			return runValidation(cmd.OutOrStdout(), fc, minNesting)
		},
	}
	cmd.Flags().Float64Var(&minNesting, "min-nesting", 1, "fraction of each level that must lie inside the next lower one")
	return cmd
}

func runValidation(w io.Writer, fc *geojson.FeatureCollection, minNesting float64) error {
	levels := contour.LevelsFromFeatures(fc)
	problems := contour.Check(levels)

	phases := []*phase{
		validateFeatures(fc),
		validateRings(problems),
		validateOrder(problems),
		validateNesting(levels, minNesting),
	}

	fmt.Fprintln(w, "=== Hail Swath Validation ===")
	fmt.Fprintln(w)
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-28s %s\n", p.name, status)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Features: %d, levels: %d, polygons: %d\n", len(fc.Features), len(levels), countPolygons(levels))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Fprintf(w, "  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	if !allPassed {
		return errValidationFailed
	}
	return nil
}

// validateFeatures checks every feature is a polygon level with a positive
// threshold and a color.
func validateFeatures(fc *geojson.FeatureCollection) *phase {
	p := &phase{name: "Feature properties"}
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			p.errorf("feature %d: geometry %T is not a polygon", i, f.Geometry)
			continue
		}
		level := f.Properties.MustFloat64(contour.PropLevel, math.NaN())
		if !(level > 0) {
			p.errorf("feature %d: missing or non-positive %q", i, contour.PropLevel)
		}
		if f.Properties.MustString(contour.PropColor, "") == "" {
			p.errorf("feature %d: missing %q", i, contour.PropColor)
		}
	}
	return p
}

func validateRings(problems []contour.Problem) *phase {
	p := &phase{name: "Ring geometry"}
	for _, prob := range problems {
		if prob.Polygon >= 0 {
			p.errorf("%s", prob)
		}
	}
	return p
}

func validateOrder(problems []contour.Problem) *phase {
	p := &phase{name: "Level order"}
	for _, prob := range problems {
		if prob.Polygon < 0 {
			p.errorf("%s", prob)
		}
	}
	return p
}

func validateNesting(levels []contour.Level, minNesting float64) *phase {
	p := &phase{name: "Level nesting"}
	nesting := contour.Nesting(levels)
	thresholds := make([]float64, 0, len(nesting))
	for t := range nesting {
		thresholds = append(thresholds, t)
	}
	slices.Sort(thresholds)
	for _, t := range slices.Backward(thresholds) {
		if frac := nesting[t]; frac+1e-9 < minNesting {
			p.errorf("level %.2f: %.1f%% of vertices inside the next level, want %.1f%%", t, frac*100, minNesting*100)
		}
	}
	return p
}

func countPolygons(levels []contour.Level) int {
	n := 0
	for _, l := range levels {
		n += len(l.Polygons)
	}
	return n
}
