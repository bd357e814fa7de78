// Package zones assigns network links to analysis zones.
package zones

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"drt-feedback/internal/spatial"
)

// GlobalZoneID is the identifier of the only zone of a single-zone system.
const GlobalZoneID = "global"

var ErrUnknownKind = errors.New("zones: unknown zone system kind")

// Kind names a zone generation policy.
type Kind int

const (
	SquareGrid Kind = iota
	HexGrid
	Polygon
	Single
)

func (k Kind) String() string {
	switch k {
	case SquareGrid:
		return "SquareGrid"
	case HexGrid:
		return "HexGrid"
	case Polygon:
		return "Polygon"
	case Single:
		return "Single"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{SquareGrid, HexGrid, Polygon, Single} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Network resolves link coordinates and the extent of the road network.
type Network interface {
	LinkCoord(linkID string) (orb.Point, bool)
	Bound() orb.Bound
}

// Zone is one immutable partition unit.
type Zone struct {
	ID       string
	Geometry orb.MultiPolygon
	Centroid orb.Point
	bound    orb.Bound
}

func newZone(id string, mp orb.MultiPolygon) Zone {
	c, _ := planar.CentroidArea(mp)
	return Zone{ID: id, Geometry: mp, Centroid: c, bound: mp.Bound()}
}

// Contains reports whether p lies in the zone, borders included.
func (z Zone) Contains(p orb.Point) bool {
	if !z.bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(z.Geometry, p)
}

// System is a zone partition with a shared link to zone cache.
// Lookups are safe for concurrent use.
type System struct {
	kind    Kind
	network Network
	zones   []Zone
	byID    map[string]int

	// centroids indexes zones by centroid for grid systems.
	centroids *spatial.Tree[int]

	linkZones sync.Map // link id -> zone id, "" when unassigned
	cached    atomic.Int64
}

func newSystem(kind Kind, network Network, zones []Zone) *System {
	s := &System{kind: kind, network: network, zones: zones, byID: make(map[string]int, len(zones))}
	for i, z := range zones {
		s.byID[z.ID] = i
	}
	return s
}

// Config selects and parameterises a zone system.
type Config struct {
	Kind     Kind
	CellSize float64
	// ZonesFile is a GeoJSON FeatureCollection, used by Polygon.
	ZonesFile string
	// IDProperty names the feature property holding the zone id.
	IDProperty string
}

// New builds the configured zone system over network.
func New(cfg Config, network Network) (*System, error) {
	switch cfg.Kind {
	case SquareGrid:
		return NewSquareGrid(network, cfg.CellSize)
	case HexGrid:
		return NewHexGrid(network, cfg.CellSize)
	case Polygon:
		return LoadGeoJSONZones(network, cfg.ZonesFile, cfg.IDProperty)
	case Single:
		return NewSingleZone(network), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, cfg.Kind)
	}
}

func (s *System) Kind() Kind { return s.kind }

// Zones returns the zones in construction order.
func (s *System) Zones() []Zone { return s.zones }

func (s *System) Zone(id string) (Zone, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Zone{}, false
	}
	return s.zones[i], true
}

// ZoneForLink returns the zone of a link. The result, including the absence
// of a zone, is cached for the lifetime of the system.
func (s *System) ZoneForLink(linkID string) (string, bool) {
	if v, ok := s.linkZones.Load(linkID); ok {
		id := v.(string)
		return id, id != ""
	}
	var id string
	if p, ok := s.network.LinkCoord(linkID); ok {
		id, _ = s.ZoneForPoint(p)
	}
	if _, loaded := s.linkZones.LoadOrStore(linkID, id); !loaded {
		s.cached.Add(1)
	}
	return id, id != ""
}

// ZoneForPoint locates p without touching the link cache.
func (s *System) ZoneForPoint(p orb.Point) (string, bool) {
	switch s.kind {
	case Single:
		return GlobalZoneID, true
	case SquareGrid, HexGrid:
		i, ok := s.centroids.Nearest(p.X(), p.Y())
		if !ok {
			return "", false
		}
		return s.zones[i].ID, true
	default:
		for _, z := range s.zones {
			if z.Contains(p) {
				return z.ID, true
			}
		}
		return "", false
	}
}

// CachedLinks is the number of links resolved so far.
func (s *System) CachedLinks() int { return int(s.cached.Load()) }
