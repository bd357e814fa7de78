// Package trips holds the DRT trip data model and turns passenger events
// into per-iteration trip observations.
package trips

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Observation is one DRT trip as seen at the end of an iteration.
// Times are seconds since simulation start.
type Observation struct {
	RequestID   string
	PersonID    string
	StartLinkID string
	EndLinkID   string
	StartCoord  orb.Point
	EndCoord    orb.Point

	StartTime   float64 // request submission
	PickupTime  float64
	ArrivalTime float64
	WaitTime    float64 // PickupTime - StartTime

	EstimatedUnsharedTime float64 // estimate made at request time
	RouterUnsharedTime    float64 // recomputed at pickup time, 0 if unknown
	UnsharedDistance      float64 // meters
	TotalTravelTime       float64 // pickup to drop-off

	Rejected bool

	// Set when the link could not be resolved; the coordinate is then zero.
	StartUnlocated bool
	EndUnlocated   bool
}

// Located reports whether both coordinates come from the network.
func (o Observation) Located() bool { return !o.StartUnlocated && !o.EndUnlocated }

// DelayFactor is the in-vehicle time relative to the unshared ride time.
// The router time is preferred and the request-time estimate is the
// fallback. ok is false when neither is positive.
func (o Observation) DelayFactor() (factor float64, ok bool) {
	switch {
	case o.RouterUnsharedTime > 0:
		return o.TotalTravelTime / o.RouterUnsharedTime, true
	case o.EstimatedUnsharedTime > 0:
		return o.TotalTravelTime / o.EstimatedUnsharedTime, true
	default:
		return 0, false
	}
}

// EuclideanDistance is the straight-line distance between start and end in meters.
func (o Observation) EuclideanDistance() float64 {
	return planar.Distance(o.StartCoord, o.EndCoord)
}

// Route is a candidate DRT trip evaluated by the cost model.
type Route struct {
	StartLinkID string
	EndLinkID   string

	MaxWaitTime    float64 // hard cap used when no estimate exists
	MaxTravelTime  float64 // hard cap used when no estimate exists
	DirectRideTime float64 // unshared in-vehicle time
}

// Link is a network link reduced to its representative coordinate.
type Link struct {
	ID    string
	Coord orb.Point
}

// Network is an immutable in-memory link table.
type Network struct {
	links map[string]orb.Point
	bound orb.Bound
}

func NewNetwork(links []Link) *Network {
	n := &Network{links: make(map[string]orb.Point, len(links))}
	for i, l := range links {
		n.links[l.ID] = l.Coord
		if i == 0 {
			n.bound = l.Coord.Bound()
		} else {
			n.bound = n.bound.Extend(l.Coord)
		}
	}
	return n
}

func (n *Network) LinkCoord(id string) (orb.Point, bool) {
	p, ok := n.links[id]
	return p, ok
}

// Bound is the extent of all link coordinates.
func (n *Network) Bound() orb.Bound { return n.bound }

func (n *Network) Len() int { return len(n.links) }
