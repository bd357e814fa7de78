package zones

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultIDProperty is the feature property read as zone id when none is configured.
const DefaultIDProperty = "zoneId"

// NewZone wraps a polygonal geometry as a zone.
func NewZone(id string, g orb.Geometry) (Zone, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		return newZone(id, orb.MultiPolygon{geom}), nil
	case orb.MultiPolygon:
		return newZone(id, geom), nil
	case orb.Bound:
		return newZone(id, orb.MultiPolygon{geom.ToPolygon()}), nil
	default:
		return Zone{}, fmt.Errorf("zones: zone %s has non-polygonal geometry %T", id, g)
	}
}

// NewPolygonSystem assigns points to the first zone, in the given order,
// whose geometry contains them.
func NewPolygonSystem(network Network, zones []Zone) (*System, error) {
	if len(zones) == 0 {
		return nil, fmt.Errorf("zones: polygon system without zones")
	}
	seen := make(map[string]struct{}, len(zones))
	for _, z := range zones {
		if _, dup := seen[z.ID]; dup {
			return nil, fmt.Errorf("zones: duplicate zone id %q", z.ID)
		}
		seen[z.ID] = struct{}{}
	}
	return newSystem(Polygon, network, zones), nil
}

// LoadGeoJSONZones reads a FeatureCollection of polygons from path.
func LoadGeoJSONZones(network Network, path, idProperty string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	zones, err := ParseGeoJSONZones(data, idProperty)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	log.Printf("[zones] loaded %d zones from %s", len(zones), path)
	return NewPolygonSystem(network, zones)
}

// ParseGeoJSONZones converts polygon features into zones in file order.
// The id comes from idProperty, then the feature id, then the 1-based
// feature position. Non-polygonal features are skipped.
func ParseGeoJSONZones(data []byte, idProperty string) ([]Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}
	if idProperty == "" {
		idProperty = DefaultIDProperty
	}
	zones := make([]Zone, 0, len(fc.Features))
	for i, f := range fc.Features {
		id := featureID(f, idProperty, i)
		z, err := NewZone(id, f.Geometry)
		if err != nil {
			log.Printf("[zones] skipping feature %d: %v", i, err)
			continue
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func featureID(f *geojson.Feature, idProperty string, i int) string {
	if v, ok := f.Properties[idProperty]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if f.ID != nil {
		return fmt.Sprint(f.ID)
	}
	return strconv.Itoa(i + 1)
}

// NewSingleZone covers the network extent with one zone named GlobalZoneID.
// Every link maps to it.
func NewSingleZone(network Network) *System {
	b := network.Bound()
	z := newZone(GlobalZoneID, orb.MultiPolygon{b.ToPolygon()})
	z.Centroid = b.Center()
	return newSystem(Single, network, []Zone{z})
}
