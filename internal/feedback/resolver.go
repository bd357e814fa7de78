// Package feedback turns the observed DRT performance of past iterations into
// the wait time and travel time estimates used to cost new DRT trips.
package feedback

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb/planar"

	"drt-feedback/internal/binning"
	"drt-feedback/internal/dynamic"
	"drt-feedback/internal/history"
	"drt-feedback/internal/smoothing"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
)

var (
	ErrUnknownMethod      = errors.New("feedback: unknown method")
	ErrUnknownSpatialType = errors.New("feedback: unknown spatial type")
)

// Method selects which dimensions localise the estimates.
type Method int

const (
	MethodGlobal Method = iota
	MethodSpatio
	MethodTemporal
	MethodSpatioTemporal
)

var methodNames = [...]string{"Global", "Spatio", "Temporal", "SpatioTemporal"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

func ParseMethod(name string) (Method, error) {
	for i, n := range methodNames {
		if n == name {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// UsesSpace reports whether zones and distance bins differentiate estimates.
func (m Method) UsesSpace() bool { return m == MethodSpatio || m == MethodSpatioTemporal }

// UsesTime reports whether time bins differentiate estimates.
func (m Method) UsesTime() bool { return m == MethodTemporal || m == MethodSpatioTemporal }

// SpatialType selects how wait times are localised.
type SpatialType int

const (
	ZonalSystem SpatialType = iota
	DynamicSystem
)

func (t SpatialType) String() string {
	if t == DynamicSystem {
		return "DynamicSystem"
	}
	return "ZonalSystem"
}

func ParseSpatialType(name string) (SpatialType, error) {
	switch name {
	case "ZonalSystem":
		return ZonalSystem, nil
	case "DynamicSystem":
		return DynamicSystem, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownSpatialType, name)
	}
}

// Resolution levels reported to Metrics.
const (
	LevelSpatial  = "spatial"
	LevelGlobal   = "global"
	LevelCap      = "cap"
	LevelDisabled = "disabled"
)

// Metrics receives resolver and engine counters. A nil Metrics is allowed.
type Metrics interface {
	history.Metrics
	Resolved(metric, level string)
	InvalidQuery()
	RebuildObserve(d time.Duration)
}

// Config selects the estimate a Resolver returns.
type Config struct {
	Method         Method
	SpatialType    SpatialType
	Stat           stats.Stat
	UseWaitTime    bool
	UseDelayFactor bool
}

// Resolver answers wait time and travel time queries from the history.
// Every query is total: it falls back from the localised value to the
// global value to the route's own cap. Resolver is safe for concurrent use.
type Resolver struct {
	cfg       Config
	zones     history.ZoneLocator
	links     trips.LinkLocator
	times     binning.TimeBinner
	distances binning.DistanceBinner
	history   *history.History
	smoother  smoothing.Smoother
	locator   *dynamic.Locator
	metrics   Metrics
}

// NewResolver reads history through smoother. locator is only used, and
// then required, with DynamicSystem.
func NewResolver(cfg Config, agg *history.Aggregator, zones history.ZoneLocator, links trips.LinkLocator,
	smoother smoothing.Smoother, locator *dynamic.Locator, metrics Metrics) (*Resolver, error) {
	if cfg.SpatialType == DynamicSystem && locator == nil {
		return nil, errors.New("feedback: dynamic spatial type needs a locator")
	}
	return &Resolver{
		cfg:       cfg,
		zones:     zones,
		links:     links,
		times:     agg.TimeBinner(),
		distances: agg.DistanceBinner(),
		history:   agg.History(),
		smoother:  smoother,
		locator:   locator,
		metrics:   metrics,
	}, nil
}

func (r *Resolver) Config() Config { return r.cfg }

// WaitTime estimates the wait of a trip departing at t, in seconds.
func (r *Resolver) WaitTime(route trips.Route, t float64) float64 {
	metric := history.WaitTime.String()
	if !r.cfg.UseWaitTime {
		r.resolved(metric, LevelDisabled)
		return route.MaxWaitTime
	}
	v := r.history.View()
	if r.cfg.Method != MethodGlobal {
		if w := r.spatialWait(v, route, t); !math.IsNaN(w) {
			r.resolved(metric, LevelSpatial)
			return w
		}
	}
	if w := r.smoother.GlobalValue(v, history.WaitTime, r.cfg.Stat); !math.IsNaN(w) {
		r.resolved(metric, LevelGlobal)
		return w
	}
	r.resolved(metric, LevelCap)
	return route.MaxWaitTime
}

// DelayedTravelTime estimates the in-vehicle time of a trip departing at t as
// its direct ride time times the expected delay factor, in seconds.
func (r *Resolver) DelayedTravelTime(route trips.Route, t float64) float64 {
	metric := history.DelayFactor.String()
	if !r.cfg.UseDelayFactor {
		r.resolved(metric, LevelDisabled)
		return route.MaxTravelTime
	}
	v := r.history.View()
	if r.cfg.Method != MethodGlobal {
		if f := r.spatialDelay(v, route, t); !math.IsNaN(f) {
			r.resolved(metric, LevelSpatial)
			return f * route.DirectRideTime
		}
	}
	if f := r.smoother.GlobalValue(v, history.DelayFactor, r.cfg.Stat); !math.IsNaN(f) {
		r.resolved(metric, LevelGlobal)
		return f * route.DirectRideTime
	}
	r.resolved(metric, LevelCap)
	return route.MaxTravelTime
}

func (r *Resolver) spatialWait(v history.View, route trips.Route, t float64) float64 {
	tb, err := r.times.Bin(t)
	if err != nil {
		r.invalid()
		return math.NaN()
	}
	zone, zoned := r.zones.ZoneForLink(route.StartLinkID)
	if r.cfg.SpatialType == DynamicSystem {
		fresh, err := r.locator.QueryRoute(route, t)
		if err != nil {
			r.invalid()
			return math.NaN()
		}
		return r.smoother.DynamicValue(v, fresh, zone, tb, r.cfg.Stat)
	}
	if !zoned {
		return math.NaN()
	}
	return r.smoother.ZonalValue(v, zone, tb, r.cfg.Stat)
}

func (r *Resolver) spatialDelay(v history.View, route trips.Route, t float64) float64 {
	tb, db, ok := r.delayBins(route, t)
	if !ok {
		r.invalid()
		return math.NaN()
	}
	return r.smoother.DistanceValue(v, db, tb, r.cfg.Stat)
}

func (r *Resolver) delayBins(route trips.Route, t float64) (timeBin, distanceBin int, ok bool) {
	tb, err := r.times.Bin(t)
	if err != nil {
		return 0, 0, false
	}
	from, ok := r.links.LinkCoord(route.StartLinkID)
	if !ok {
		return 0, 0, false
	}
	to, ok := r.links.LinkCoord(route.EndLinkID)
	if !ok {
		return 0, 0, false
	}
	db, err := r.distances.Bin(planar.Distance(from, to))
	if err != nil {
		return 0, 0, false
	}
	return tb, db, true
}

// WaitTimeSummary returns the statistics of the latest iteration behind a
// wait time estimate, falling back to the global summary.
func (r *Resolver) WaitTimeSummary(route trips.Route, t float64) stats.Summary {
	latest, ok := r.history.View().Latest()
	if !ok {
		return stats.Empty()
	}
	if r.cfg.Method != MethodGlobal {
		if tb, err := r.times.Bin(t); err == nil {
			s := stats.Empty()
			if r.cfg.SpatialType == DynamicSystem {
				s, _ = r.locator.QueryRoute(route, t)
			} else if zone, ok := r.zones.ZoneForLink(route.StartLinkID); ok {
				s = latest.ZonalWait(zone, tb)
			}
			if !s.IsEmpty() {
				return s
			}
		}
	}
	return latest.GlobalWait
}

// DelayFactorSummary returns the statistics of the latest iteration behind a
// delay factor estimate, falling back to the global summary.
func (r *Resolver) DelayFactorSummary(route trips.Route, t float64) stats.Summary {
	latest, ok := r.history.View().Latest()
	if !ok {
		return stats.Empty()
	}
	if r.cfg.Method != MethodGlobal {
		if tb, db, ok := r.delayBins(route, t); ok {
			if s := latest.DistanceDelay(db, tb); !s.IsEmpty() {
				return s
			}
		}
	}
	return latest.GlobalDelay
}

func (r *Resolver) resolved(metric, level string) {
	if r.metrics != nil {
		r.metrics.Resolved(metric, level)
	}
}

func (r *Resolver) invalid() {
	if r.metrics != nil {
		r.metrics.InvalidQuery()
	}
}
