// Package domain models hail reports and the rules that turn heterogeneous
// upstream payloads into scored, canonical records.
//
// # Upstream shapes
//
// Reports arrive from several feeds that disagree on field names and units:
//
//	MRMS proxy:  {"lat": 35.1, "lon": -97.4, "mesh_mm": 44.5, "time_utc": "2024-04-26T22:10:00Z"}
//	IEM LSR:     {"latitude": "35.1", "longitude": "-97.4", "magnitude": "1.75", "valid": "2024-04-26 22:10"}
//	SPC CSV:     {"Lat": "35.1", "Lon": "-97.4", "Size": "175"}
//
// [RawReport] absorbs these variants: coordinates under lat/latitude and
// lon/lng/longitude, sizes in inches (size, size_in, hailSize, magnitude) or in
// millimeters (mesh_mm, meshValue, mesh). Numbers may be JSON numbers or numeric
// strings; "UNK" and empty strings mean unknown.
//
// # Normalization
//
// [NormalizeReport] converts one raw record and [NormalizeReports] a batch:
//
//	mm → in:        size_in = mm / 25.4
//	hundredths:     sizes ≥ 10in are read as hundredths of an inch (175 → 1.75),
//	                since the largest US hail on record is about 8 inches.
//	dedupe:         lat/lon rounded to 3 decimals (~100 m); the first record wins.
//	drop:           missing, zero, or non-finite size or coordinates.
//	baseline:       confidence defaults per source before scoring, see [BaselineConfidence].
//
// # Confidence
//
// A [Scorer] turns the baseline into a 0–100 score from three factors: a size
// bonus, a density bonus from corroborating reports within a fixed radius, and
// a recency weight that decays with age down to a floor. See [ConfidenceFactors].
package domain
