package history

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"drt-feedback/internal/binning"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
)

var ErrIterationOrder = errors.New("history: iteration numbers must increase")

// Observation outcomes reported to Metrics.
const (
	OutcomeRecorded       = "recorded"
	OutcomeRejected       = "rejected"
	OutcomeUnassignedZone = "unassigned_zone"
	OutcomeOutsideHorizon = "outside_horizon"
	OutcomeInvalidDelay   = "invalid_delay"
	OutcomeUnlocated      = "unlocated"
)

// ZoneLocator maps a link to its zone.
type ZoneLocator interface {
	ZoneForLink(linkID string) (string, bool)
}

// Metrics receives aggregation counters. A nil Metrics is allowed.
type Metrics interface {
	IterationRecorded(historyLen int)
	ObservationsCounted(outcome string, n int)
}

// Aggregator turns each iteration's observations into a Snapshot.
type Aggregator struct {
	zones     ZoneLocator
	times     binning.TimeBinner
	distances binning.DistanceBinner
	metrics   Metrics
	history   History

	mu   sync.Mutex
	last int
	any  bool
}

func NewAggregator(zones ZoneLocator, times binning.TimeBinner, distances binning.DistanceBinner, metrics Metrics) *Aggregator {
	return &Aggregator{zones: zones, times: times, distances: distances, metrics: metrics}
}

func (a *Aggregator) History() *History { return &a.history }

func (a *Aggregator) TimeBinner() binning.TimeBinner { return a.times }

func (a *Aggregator) DistanceBinner() binning.DistanceBinner { return a.distances }

type counts struct {
	recorded, rejected, unassigned, outside, invalidDelay, unlocated int
}

// RecordIteration summarises the observations of one iteration and appends
// the snapshot to the history.
//
// Rejected trips are left out entirely. Trips without a zone, or starting
// outside the time horizon, still count towards the global summaries. Trips
// without a positive unshared ride time, or whose start or end link has no
// coordinate, are left out of the distance table. A negative start time is
// an error.
func (a *Aggregator) RecordIteration(iteration int, observations []trips.Observation) (*Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.any && iteration <= a.last {
		return nil, fmt.Errorf("%w: got %d after %d", ErrIterationOrder, iteration, a.last)
	}

	var (
		c           counts
		globalWait  []float64
		globalDelay []float64
		zonal       = map[ZoneBin][]float64{}
		distance    = map[DistanceBin][]float64{}
	)
	for _, o := range observations {
		if o.Rejected {
			c.rejected++
			continue
		}
		c.recorded++
		globalWait = append(globalWait, o.WaitTime)
		factor, delayOK := o.DelayFactor()
		if delayOK {
			globalDelay = append(globalDelay, factor)
		} else {
			c.invalidDelay++
		}

		tb, err := a.times.Bin(o.StartTime)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", o.RequestID, err)
		}
		if !a.times.InRange(tb) {
			c.outside++
			continue
		}
		if zone, ok := a.zones.ZoneForLink(o.StartLinkID); ok {
			k := ZoneBin{zone, tb}
			zonal[k] = append(zonal[k], o.WaitTime)
		} else {
			c.unassigned++
		}
		if delayOK && !o.Located() {
			c.unlocated++
			continue
		}
		if delayOK {
			db, err := a.distances.Bin(o.EuclideanDistance())
			if err != nil {
				return nil, fmt.Errorf("request %s: %w", o.RequestID, err)
			}
			k := DistanceBin{db, tb}
			distance[k] = append(distance[k], factor)
		}
	}

	snap := &Snapshot{
		Iteration:   iteration,
		Zonal:       make(map[ZoneBin]stats.Summary, len(zonal)),
		Distance:    make(map[DistanceBin]stats.Summary, len(distance)),
		GlobalWait:  stats.Summarize(globalWait),
		GlobalDelay: stats.Summarize(globalDelay),
		Trips:       c.recorded,
	}
	for k, v := range zonal {
		snap.Zonal[k] = stats.Summarize(v)
	}
	for k, v := range distance {
		snap.Distance[k] = stats.Summarize(v)
	}

	a.history.append(snap)
	a.last, a.any = iteration, true

	log.Printf("[history] iteration %d: %d trips, %d rejected, %d without zone, %d outside horizon, %d without unshared time, %d unlocated; %d zone cells, %d distance cells",
		iteration, c.recorded, c.rejected, c.unassigned, c.outside, c.invalidDelay, c.unlocated, len(snap.Zonal), len(snap.Distance))
	a.report(c)
	return snap, nil
}

func (a *Aggregator) report(c counts) {
	if a.metrics == nil {
		return
	}
	a.metrics.ObservationsCounted(OutcomeRecorded, c.recorded)
	a.metrics.ObservationsCounted(OutcomeRejected, c.rejected)
	a.metrics.ObservationsCounted(OutcomeUnassignedZone, c.unassigned)
	a.metrics.ObservationsCounted(OutcomeOutsideHorizon, c.outside)
	a.metrics.ObservationsCounted(OutcomeInvalidDelay, c.invalidDelay)
	a.metrics.ObservationsCounted(OutcomeUnlocated, c.unlocated)
	a.metrics.IterationRecorded(a.history.Len())
}
