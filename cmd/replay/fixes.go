package main

import (
	"errors"
	"fmt"

	"backend-tourguide/internal/shared/geo"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// defaultStepMs spaces fixes that carry no timestamp of their own.
const defaultStepMs = 1000

var errNoFixes = errors.New("replay: no fixes in file")

// loadFixes reads a GeoJSON FeatureCollection. Point features become one fix
// each and may carry "timestampMs" and "accuracyM" properties. LineString
// features become one fix per vertex.
func loadFixes(data []byte) ([]geo.Point, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("replay: parse geojson: %w", err)
	}

	var fixes []geo.Point
	var last int64
	next := func(p orb.Point, ts int64, accuracy float64) {
		if ts <= 0 {
			ts = last + defaultStepMs
		}
		last = ts
		fix := geo.FromOrb(p)
		fix.TimestampMillis = ts
		fix.AccuracyM = accuracy
		fixes = append(fixes, fix)
	}

	for i, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.Point:
			next(g, int64(f.Properties.MustFloat64("timestampMs", 0)), f.Properties.MustFloat64("accuracyM", 0))
		case orb.LineString:
			for _, p := range g {
				next(p, 0, 0)
			}
		case nil:
			return nil, fmt.Errorf("replay: feature %d has no geometry", i)
		default:
			return nil, fmt.Errorf("replay: feature %d: unsupported geometry %s", i, g.GeoJSONType())
		}
	}
	if len(fixes) == 0 {
		return nil, errNoFixes
	}
	for i, p := range fixes {
		if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
			return nil, fmt.Errorf("replay: fix %d out of range", i)
		}
	}
	return fixes, nil
}
