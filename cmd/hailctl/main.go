// Command hailctl runs the hail swath engine offline: it renders and scores
// report files, converts SPC hail CSVs into fixtures, validates rendered
// GeoJSON, and loads reports into the archive database.
//
// Settings come from flags, HAILCTL_* environment variables, and a YAML config
// file (--config), in that order of precedence.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/couchcryptid/storm-data-hailgrid/internal/contour"
	"github.com/couchcryptid/storm-data-hailgrid/internal/grid"
	"github.com/couchcryptid/storm-data-hailgrid/internal/observability"
	"github.com/couchcryptid/storm-data-hailgrid/internal/render"
)

// version is set at build time via -ldflags.
var version = "dev"

// Setting keys shared by flags, the config file, and the environment.
const (
	keyLogLevel        = "log-level"
	keyLogFormat       = "log-format"
	keyResolution      = "resolution"
	keySigma           = "sigma"
	keyInfluenceRadius = "influence-radius"
	keyMaxCells        = "max-cells"
	keyStrategy        = "strategy"
	keyThresholds      = "thresholds"
	keyPalette         = "palette"
	keyMinConfidence   = "min-confidence"
	keySimplify        = "simplify"
	keyAutoHullBelow   = "auto-hull-below"
	keyDatabaseURL     = "database-url"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the state shared by subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	clock      clockwork.Clock
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), clock: clockwork.NewRealClock()}

	root := &cobra.Command{
		Use:           "hailctl",
		Short:         "Render, score, and validate hail swaths offline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadSettings(cmd)
		},
	}

	defaults := render.DefaultOptions()
	f := root.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "YAML settings file")
	f.String(keyLogLevel, "warn", "log level: debug, info, warn, error")
	f.String(keyLogFormat, "text", "log format: text or json")
	f.Float64(keyResolution, defaults.Grid.Resolution, "grid cell size in degrees")
	f.Float64(keySigma, defaults.Sigma, "Gaussian smoothing sigma in cells")
	f.Int(keyInfluenceRadius, defaults.Grid.InfluenceRadius, "report reach in cells")
	f.Int(keyMaxCells, defaults.Grid.MaxCells, "largest grid allowed")
	f.String(keyStrategy, string(defaults.Strategy), "grid, hull, or auto")
	f.StringSlice(keyThresholds, formatFloats(defaults.Palette.Thresholds()), "contour thresholds in inches")
	f.String(keyPalette, "", "YAML palette file, overrides --thresholds")
	f.Float64(keyMinConfidence, 0, "drop reports scoring below this")
	f.Float64(keySimplify, 0, "Douglas-Peucker tolerance in degrees")
	f.Int(keyAutoHullBelow, defaults.AutoHullBelow, "report count under which auto draws hulls")

	root.AddCommand(
		newRenderCmd(a),
		newScoreCmd(a),
		newFixtureCmd(a),
		newValidateCmd(a),
		newArchiveCmd(a),
	)
	return root
}

func (a *app) loadSettings(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("HAILCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	if a.configFile != "" {
		a.v.SetConfigFile(a.configFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	return observability.NewLogger(cmd.ErrOrStderr(), a.v.GetString(keyLogLevel), a.v.GetString(keyLogFormat))
}

// renderOptions builds engine options from the merged settings.
func (a *app) renderOptions() (render.Options, error) {
	opts := render.DefaultOptions()
	opts.Grid = grid.Options{
		Resolution:      a.v.GetFloat64(keyResolution),
		InfluenceRadius: a.v.GetInt(keyInfluenceRadius),
		MaxCells:        a.v.GetInt(keyMaxCells),
	}
	opts.Sigma = a.v.GetFloat64(keySigma)
	opts.MinConfidence = a.v.GetFloat64(keyMinConfidence)
	opts.Simplify = a.v.GetFloat64(keySimplify)
	opts.AutoHullBelow = a.v.GetInt(keyAutoHullBelow)

	strategy, err := render.ParseStrategy(a.v.GetString(keyStrategy))
	if err != nil {
		return render.Options{}, err
	}
	opts.Strategy = strategy

	if path := a.v.GetString(keyPalette); path != "" {
		palette, err := contour.LoadPalette(path)
		if err != nil {
			return render.Options{}, err
		}
		opts.Palette = palette
	} else {
		thresholds, err := a.thresholds()
		if err != nil {
			return render.Options{}, err
		}
		opts.Palette = contour.DefaultPalette().WithThresholds(thresholds)
	}
	return opts, opts.Validate()
}

// thresholds reads the threshold list. Flags and YAML give a list; the
// environment gives one comma separated string.
func (a *app) thresholds() ([]float64, error) {
	var out []float64
	for _, item := range a.v.GetStringSlice(keyThresholds) {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			f, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid threshold %q", part)
			}
			out = append(out, f)
		}
	}
	return out, nil
}

func formatFloats(vals []float64) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

func (a *app) renderer(cmd *cobra.Command, source render.ReportSource) (*render.Renderer, error) {
	opts, err := a.renderOptions()
	if err != nil {
		return nil, err
	}
	return render.New(source, opts, a.logger(cmd), nil, a.clock)
}
