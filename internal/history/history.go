// Package history keeps the per-iteration statistics of observed DRT trips.
package history

import (
	"cmp"
	"slices"
	"sync/atomic"

	"drt-feedback/internal/stats"
)

// Metric selects which observed quantity a series refers to.
type Metric int

const (
	WaitTime Metric = iota
	DelayFactor
)

func (m Metric) String() string {
	if m == DelayFactor {
		return "delay"
	}
	return "wait"
}

// ZoneBin keys the wait time table.
type ZoneBin struct {
	Zone    string
	TimeBin int
}

// DistanceBin keys the delay factor table.
type DistanceBin struct {
	DistanceBin int
	TimeBin     int
}

// Snapshot holds the statistics of one iteration. It is never modified
// after it has been published.
type Snapshot struct {
	Iteration   int
	Zonal       map[ZoneBin]stats.Summary
	Distance    map[DistanceBin]stats.Summary
	GlobalWait  stats.Summary
	GlobalDelay stats.Summary
	Trips       int
}

// ZonalWait returns the wait time summary of a zone and time bin, empty if
// nothing was observed there.
func (s *Snapshot) ZonalWait(zone string, timeBin int) stats.Summary {
	if v, ok := s.Zonal[ZoneBin{zone, timeBin}]; ok {
		return v
	}
	return stats.Empty()
}

// DistanceDelay returns the delay factor summary of a distance and time bin.
func (s *Snapshot) DistanceDelay(distanceBin, timeBin int) stats.Summary {
	if v, ok := s.Distance[DistanceBin{distanceBin, timeBin}]; ok {
		return v
	}
	return stats.Empty()
}

// Global returns the global summary of m.
func (s *Snapshot) Global(m Metric) stats.Summary {
	if m == DelayFactor {
		return s.GlobalDelay
	}
	return s.GlobalWait
}

// SortedZoneBins lists the zonal keys of s ordered by zone and time bin.
func SortedZoneBins(s *Snapshot) []ZoneBin {
	keys := make([]ZoneBin, 0, len(s.Zonal))
	for k := range s.Zonal {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b ZoneBin) int {
		return cmp.Or(cmp.Compare(a.Zone, b.Zone), cmp.Compare(a.TimeBin, b.TimeBin))
	})
	return keys
}

// SortedDistanceBins lists the distance keys of s ordered by distance and time bin.
func SortedDistanceBins(s *Snapshot) []DistanceBin {
	keys := make([]DistanceBin, 0, len(s.Distance))
	for k := range s.Distance {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b DistanceBin) int {
		return cmp.Or(cmp.Compare(a.DistanceBin, b.DistanceBin), cmp.Compare(a.TimeBin, b.TimeBin))
	})
	return keys
}

// View is a consistent, read-only sequence of snapshots, oldest first.
type View []*Snapshot

func (v View) Len() int { return len(v) }

// Latest returns the most recent snapshot.
func (v View) Latest() (*Snapshot, bool) {
	if len(v) == 0 {
		return nil, false
	}
	return v[len(v)-1], true
}

// ZonalSeries lists the zone and time bin wait summary of every snapshot.
func (v View) ZonalSeries(zone string, timeBin int) []stats.Summary {
	out := make([]stats.Summary, len(v))
	for i, s := range v {
		out[i] = s.ZonalWait(zone, timeBin)
	}
	return out
}

// DistanceSeries lists the distance and time bin delay summary of every snapshot.
func (v View) DistanceSeries(distanceBin, timeBin int) []stats.Summary {
	out := make([]stats.Summary, len(v))
	for i, s := range v {
		out[i] = s.DistanceDelay(distanceBin, timeBin)
	}
	return out
}

// GlobalSeries lists the global summary of m for every snapshot.
func (v View) GlobalSeries(m Metric) []stats.Summary {
	out := make([]stats.Summary, len(v))
	for i, s := range v {
		out[i] = s.Global(m)
	}
	return out
}

// History is an append-only list of snapshots. Readers take a View and never
// observe a partially appended snapshot.
type History struct {
	snaps atomic.Pointer[View]
}

func (h *History) View() View {
	if p := h.snaps.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *History) Len() int { return len(h.View()) }

func (h *History) append(s *Snapshot) {
	old := h.View()
	next := make(View, len(old), len(old)+1)
	copy(next, old)
	next = append(next, s)
	h.snaps.Store(&next)
}
