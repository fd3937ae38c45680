package contour

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Band maps a contour threshold to its display color and label.
type Band struct {
	Threshold   float64 `yaml:"threshold" json:"threshold"`
	Color       string  `yaml:"color" json:"color"`
	Label       string  `yaml:"label" json:"label"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

// Describe returns the band's description, or one built from the threshold and label.
func (b Band) Describe() string {
	if b.Description != "" {
		return b.Description
	}
	if b.Label == "" {
		return fmt.Sprintf("%.2f in+ hail", b.Threshold)
	}
	return fmt.Sprintf("%.2f in+ hail (%s)", b.Threshold, b.Label)
}

// Palette is a set of bands ordered by threshold descending.
type Palette []Band

// DefaultPalette returns the standard hail-size table, named after the
// objects spotters compare stones to.
func DefaultPalette() Palette {
	return Palette{
		{Threshold: 4.00, Color: "rgba(128, 0, 128, 0.80)", Label: "Softball"},
		{Threshold: 3.00, Color: "rgba(139, 0, 0, 0.75)", Label: "Baseball"},
		{Threshold: 2.50, Color: "rgba(220, 20, 60, 0.70)", Label: "Tennis Ball"},
		{Threshold: 2.00, Color: "rgba(255, 0, 0, 0.65)", Label: "Hen Egg"},
		{Threshold: 1.75, Color: "rgba(255, 69, 0, 0.60)", Label: "Golf Ball"},
		{Threshold: 1.50, Color: "rgba(255, 140, 0, 0.55)", Label: "Walnut-Egg"},
		{Threshold: 1.25, Color: "rgba(255, 165, 0, 0.50)", Label: "Half Dollar"},
		{Threshold: 1.00, Color: "rgba(255, 215, 0, 0.45)", Label: "Quarter"},
		{Threshold: 0.75, Color: "rgba(173, 255, 47, 0.40)", Label: "Penny"},
	}
}

// ErrInvalidPalette is returned when a palette has no usable bands.
var ErrInvalidPalette = errors.New("invalid palette")

type paletteFile struct {
	Levels []Band `yaml:"levels"`
}

// LoadPalette reads a YAML palette file of the form
//
//	levels:
//	  - threshold: 1.5
//	    color: "rgba(255, 140, 0, 0.55)"
//	    label: Walnut-Egg
func LoadPalette(path string) (Palette, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}
	var f paletteFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse palette %s: %w", path, err)
	}
	p := Palette(f.Levels)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p.sorted(), nil
}

// Validate checks that every band has a positive finite threshold and a color,
// and that no threshold repeats.
func (p Palette) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: no levels", ErrInvalidPalette)
	}
	seen := make(map[float64]bool, len(p))
	for i, b := range p {
		if !(b.Threshold > 0) || math.IsInf(b.Threshold, 0) {
			return fmt.Errorf("%w: level %d threshold %v must be positive", ErrInvalidPalette, i, b.Threshold)
		}
		if strings.TrimSpace(b.Color) == "" {
			return fmt.Errorf("%w: level %d has no color", ErrInvalidPalette, i)
		}
		if seen[b.Threshold] {
			return fmt.Errorf("%w: duplicate threshold %v", ErrInvalidPalette, b.Threshold)
		}
		seen[b.Threshold] = true
	}
	return nil
}

// Lookup returns the band a hail size falls into: the one with the largest
// threshold not above size.
func (p Palette) Lookup(size float64) (Band, bool) {
	var best Band
	found := false
	for _, b := range p {
		if b.Threshold <= size && (!found || b.Threshold > best.Threshold) {
			best, found = b, true
		}
	}
	return best, found
}

// WithThresholds returns a palette containing exactly the given thresholds.
// Thresholds missing from p borrow the color and label of the band they fall
// into, or of the lowest band when they sit below all of them. Non-positive
// and repeated thresholds are skipped.
func (p Palette) WithThresholds(thresholds []float64) Palette {
	if len(thresholds) == 0 {
		return p.sorted()
	}
	lowest, hasLowest := p.lowest()

	out := make(Palette, 0, len(thresholds))
	seen := make(map[float64]bool, len(thresholds))
	for _, t := range thresholds {
		if !(t > 0) || math.IsInf(t, 0) || seen[t] {
			continue
		}
		seen[t] = true

		b, ok := p.Lookup(t)
		if !ok && hasLowest {
			b, ok = lowest, true
		}
		if !ok {
			b = Band{Color: "rgba(128, 128, 128, 0.5)"}
		}
		if b.Threshold != t {
			b.Description = ""
		}
		b.Threshold = t
		out = append(out, b)
	}
	return out.sorted()
}

// Thresholds lists the palette thresholds, descending.
func (p Palette) Thresholds() []float64 {
	s := p.sorted()
	out := make([]float64, len(s))
	for i, b := range s {
		out[i] = b.Threshold
	}
	return out
}

func (p Palette) lowest() (Band, bool) {
	if len(p) == 0 {
		return Band{}, false
	}
	low := p[0]
	for _, b := range p[1:] {
		if b.Threshold < low.Threshold {
			low = b
		}
	}
	return low, true
}

func (p Palette) sorted() Palette {
	out := slices.Clone(p)
	slices.SortStableFunc(out, func(a, b Band) int {
		switch {
		case a.Threshold > b.Threshold:
			return -1
		case a.Threshold < b.Threshold:
			return 1
		default:
			return 0
		}
	})
	return out
}
