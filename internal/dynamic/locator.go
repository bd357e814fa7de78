package dynamic

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"

	"drt-feedback/internal/binning"
	"drt-feedback/internal/spatial"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
)

var ErrUnknownLink = errors.New("dynamic: unknown link")

// Locator keeps one spatial index of trip start points per time bin.
// Rebuild swaps the indexes atomically; queries always see one complete
// generation.
type Locator struct {
	links trips.LinkLocator
	bound orb.Bound
	times binning.TimeBinner
	hood  Neighborhood
	decay stats.Decay

	gen atomic.Pointer[generation]
}

type generation struct {
	trees []*spatial.Tree[int]
	waits [][]float64
}

func NewLocator(links trips.LinkLocator, bound orb.Bound, times binning.TimeBinner, hood Neighborhood, decay stats.Decay) *Locator {
	return &Locator{links: links, bound: bound, times: times, hood: hood, decay: decay}
}

// Rebuild indexes the start points of the given trips. Rejected trips, trips
// without a start coordinate and trips starting outside the time horizon are
// skipped.
func (l *Locator) Rebuild(observations []trips.Observation) time.Duration {
	start := time.Now()

	ext := spatial.NewRect(l.bound.Min.X(), l.bound.Min.Y(), l.bound.Max.X(), l.bound.Max.Y())
	for _, o := range observations {
		if !o.StartUnlocated {
			ext = ext.Extend(o.StartCoord.X(), o.StartCoord.Y())
		}
	}

	n := l.times.Count()
	g := &generation{trees: make([]*spatial.Tree[int], n), waits: make([][]float64, n)}
	for i := range g.trees {
		g.trees[i] = spatial.NewWithLeafSize[int](ext, spatial.DefaultLeafSize)
	}
	indexed := 0
	for _, o := range observations {
		if o.Rejected || o.StartUnlocated {
			continue
		}
		tb, err := l.times.Bin(o.StartTime)
		if err != nil || !l.times.InRange(tb) {
			continue
		}
		idx := len(g.waits[tb])
		g.waits[tb] = append(g.waits[tb], o.WaitTime)
		if _, err := g.trees[tb].Put(o.StartCoord.X(), o.StartCoord.Y(), idx); err != nil {
			log.Printf("[dynamic] request %s: %v", o.RequestID, err)
			continue
		}
		indexed++
	}
	l.gen.Store(g)

	took := time.Since(start)
	log.Printf("[dynamic] indexed %d of %d trips in %d time bins (%s, %s) in %s",
		indexed, len(observations), n, l.hood.Name(), l.decay.Name(), took)
	return took
}

// Query summarises the wait times of the neighbourhood of p in a time bin,
// weighting each trip by the decay of its distance to p. The summary is
// empty when the bin has no trips or lies outside the horizon.
func (l *Locator) Query(p orb.Point, timeBin int) stats.Summary {
	g := l.gen.Load()
	if g == nil || timeBin < 0 || timeBin >= len(g.trees) {
		return stats.Empty()
	}
	tree := g.trees[timeBin]
	if tree.Len() == 0 {
		return stats.Empty()
	}
	hood := l.hood.Select(tree, p.X(), p.Y())
	values := make([]float64, len(hood))
	distances := make([]float64, len(hood))
	for i, n := range hood {
		values[i] = g.waits[timeBin][n.Value]
		distances[i] = n.Distance
	}
	s, err := stats.SummarizeWeighted(values, distances, l.decay)
	if err != nil {
		return stats.Empty()
	}
	return s
}

// QueryRoute runs Query at the start link of route for a departure time.
func (l *Locator) QueryRoute(route trips.Route, departure float64) (stats.Summary, error) {
	tb, err := l.times.Bin(departure)
	if err != nil {
		return stats.Empty(), err
	}
	p, ok := l.links.LinkCoord(route.StartLinkID)
	if !ok {
		return stats.Empty(), fmt.Errorf("%w: %s", ErrUnknownLink, route.StartLinkID)
	}
	return l.Query(p, tb), nil
}

// Size returns the number of indexed trips in a time bin.
func (l *Locator) Size(timeBin int) int {
	g := l.gen.Load()
	if g == nil || timeBin < 0 || timeBin >= len(g.trees) {
		return 0
	}
	return g.trees[timeBin].Len()
}
