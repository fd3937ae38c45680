package contour

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"
)

// Feature property keys read by the map client.
const (
	PropLevel       = "level"
	PropColor       = "color"
	PropLabel       = "label"
	PropDescription = "description"
)

// FeatureCollection converts levels into GeoJSON, one feature per level in
// the order given. A level with one polygon becomes a Polygon, otherwise a
// MultiPolygon.
func FeatureCollection(levels []Level) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, l := range levels {
		if len(l.Polygons) == 0 {
			continue
		}
		var geom orb.Geometry = l.Polygons
		if len(l.Polygons) == 1 {
			geom = l.Polygons[0]
		}
		f := geojson.NewFeature(geom)
		f.Properties[PropLevel] = l.Threshold
		f.Properties[PropColor] = l.Color
		f.Properties[PropLabel] = l.Label
		f.Properties[PropDescription] = l.Describe()
		fc.Append(f)
	}
	return fc
}

// LevelsFromFeatures reads levels back out of a feature collection written by
// FeatureCollection. Features without polygon geometry are skipped.
func LevelsFromFeatures(fc *geojson.FeatureCollection) []Level {
	var levels []Level
	for _, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		levels = append(levels, Level{
			Band: Band{
				Threshold:   f.Properties.MustFloat64(PropLevel, 0),
				Color:       f.Properties.MustString(PropColor, ""),
				Label:       f.Properties.MustString(PropLabel, ""),
				Description: f.Properties.MustString(PropDescription, ""),
			},
			Polygons: mp,
		})
	}
	return levels
}

// Simplify applies Douglas-Peucker simplification, tolerance in degrees, to
// every ring. A ring is kept as is when simplifying would leave it with fewer
// than three vertices or flip its winding.
func Simplify(levels []Level, tolerance float64) []Level {
	if tolerance <= 0 {
		return levels
	}
	out := make([]Level, len(levels))
	for i, l := range levels {
		mp := make(orb.MultiPolygon, len(l.Polygons))
		for j, poly := range l.Polygons {
			p := make(orb.Polygon, len(poly))
			for k, ring := range poly {
				p[k] = simplifyRing(ring, tolerance)
			}
			mp[j] = p
		}
		out[i] = Level{Band: l.Band, Polygons: mp}
	}
	return out
}

func simplifyRing(ring orb.Ring, tolerance float64) orb.Ring {
	ls := orb.LineString(ring)
	s := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone())
	result, ok := s.(orb.LineString)
	if !ok || len(result) < 4 {
		return ring
	}
	r := orb.Ring(result)
	if r.Orientation() != ring.Orientation() {
		return ring
	}
	return r
}
