package geo

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	geojson "github.com/paulmach/go.geojson"
)

var ErrNoPath = errors.New("geojson: no path geometry")

// FinishPoint returns the last coordinate of a route's path geometry.
// data may be a FeatureCollection, a Feature or a bare Geometry; the first
// feature carrying a line geometry wins.
func FinishPoint(data []byte) (Point, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Point{}, fmt.Errorf("geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Point{}, fmt.Errorf("geojson: feature collection: %w", err)
		}
		for _, f := range fc.Features {
			if p, err := lastOf(f.Geometry); err == nil {
				return p, nil
			}
		}
		return Point{}, ErrNoPath
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Point{}, fmt.Errorf("geojson: feature: %w", err)
		}
		return lastOf(f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Point{}, fmt.Errorf("geojson: geometry: %w", err)
		}
		return lastOf(g)
	}
}

func lastOf(g *geojson.Geometry) (Point, error) {
	if g == nil {
		return Point{}, ErrNoPath
	}

	var coords [][]float64
	switch {
	case g.IsLineString():
		coords = g.LineString
	case g.IsMultiLineString():
		if n := len(g.MultiLineString); n > 0 {
			coords = g.MultiLineString[n-1]
		}
	case g.IsMultiPoint():
		coords = g.MultiPoint
	}
	if len(coords) == 0 {
		return Point{}, ErrNoPath
	}

	last := coords[len(coords)-1]
	if len(last) < 2 {
		return Point{}, fmt.Errorf("geojson: short position %v", last)
	}
	p := Point{Lon: last[0], Lat: last[1]}
	if !p.Valid() {
		return Point{}, fmt.Errorf("geojson: position out of range %v", last)
	}

	return p, nil
}
