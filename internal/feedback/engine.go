package feedback

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"drt-feedback/internal/binning"
	"drt-feedback/internal/dynamic"
	"drt-feedback/internal/history"
	"drt-feedback/internal/smoothing"
	"drt-feedback/internal/stats"
	"drt-feedback/internal/trips"
	"drt-feedback/internal/zones"
)

// Shutdown export file names.
const (
	LinkZonesFile = "drt_link2FixedZones.csv"
	ZonesFile     = "drt_FixedZones.geojson"
)

// Options configures an Engine.
type Options struct {
	Config

	TimeBin      time.Duration
	Horizon      time.Duration
	DistanceBin  float64 // meters, binning.SingleBin for one bin
	LastBinStart float64 // meters

	Zones zones.Config

	Smoothing    string
	MovingWindow int
	MSAWeight    float64

	Neighborhood dynamic.NeighborhoodConfig
	Decay        string

	OutputDir          string // empty disables diagnostics
	WriteDetailedStats bool
}

// Sink receives every recorded snapshot, e.g. to persist or publish it.
type Sink func(ctx context.Context, iteration int, s *history.Snapshot) error

// Engine owns the history of one run. EndIteration is the only writer; the
// Resolver may be queried concurrently between two EndIteration calls.
type Engine struct {
	opts     Options
	zones    *zones.System
	agg      *history.Aggregator
	locator  *dynamic.Locator
	resolver *Resolver
	metrics  Metrics
	sinks    []Sink
}

// NewEngine validates opts and builds the zone system, binners, smoother and,
// for DynamicSystem, the locator. Methods that ignore space use a single zone
// and distance bin; methods that ignore time use one bin over the horizon.
func NewEngine(opts Options, network zones.Network, metrics Metrics) (*Engine, error) {
	if !opts.Method.UsesTime() {
		opts.TimeBin = opts.Horizon
	}
	if !opts.Method.UsesSpace() {
		opts.Zones = zones.Config{Kind: zones.Single}
		opts.DistanceBin = binning.SingleBin
	}

	times, err := binning.NewTimeBinner(opts.TimeBin, opts.Horizon)
	if err != nil {
		return nil, err
	}
	distances, err := binning.NewDistanceBinner(opts.DistanceBin, opts.LastBinStart)
	if err != nil {
		return nil, err
	}
	system, err := zones.New(opts.Zones, network)
	if err != nil {
		return nil, fmt.Errorf("zones: %w", err)
	}
	smoother, err := smoothing.New(opts.Smoothing, opts.MovingWindow, opts.MSAWeight)
	if err != nil {
		return nil, err
	}

	var locator *dynamic.Locator
	if opts.SpatialType == DynamicSystem {
		hood, err := dynamic.NewNeighborhood(opts.Neighborhood)
		if err != nil {
			return nil, err
		}
		decay, err := stats.ParseDecay(opts.Decay)
		if err != nil {
			return nil, err
		}
		locator = dynamic.NewLocator(network, network.Bound(), times, hood, decay)
	}

	agg := history.NewAggregator(system, times, distances, metrics)
	resolver, err := NewResolver(opts.Config, agg, system, network, smoother, locator, metrics)
	if err != nil {
		return nil, err
	}

	log.Printf("[feedback] method=%s spatial=%s stat=%s smoothing=%s zones=%s(%d) timeBins=%d distanceBins=%d",
		opts.Method, opts.SpatialType, opts.Stat, smoother.Name(), system.Kind(), len(system.Zones()),
		times.Count(), distances.Count())

	return &Engine{
		opts:     opts,
		zones:    system,
		agg:      agg,
		locator:  locator,
		resolver: resolver,
		metrics:  metrics,
	}, nil
}

// AddSink registers a sink. Sinks run in order after diagnostics are written;
// a failing sink is logged and does not fail the iteration.
func (e *Engine) AddSink(s Sink) { e.sinks = append(e.sinks, s) }

func (e *Engine) Resolver() *Resolver { return e.resolver }

func (e *Engine) Zones() *zones.System { return e.zones }

func (e *Engine) History() *history.History { return e.agg.History() }

// EndIteration records the observations of an iteration and rebuilds every
// structure the Resolver reads.
func (e *Engine) EndIteration(ctx context.Context, iteration int, observations []trips.Observation) (*history.Snapshot, error) {
	snap, err := e.agg.RecordIteration(iteration, observations)
	if err != nil {
		return nil, err
	}
	if e.locator != nil {
		d := e.locator.Rebuild(observations)
		if e.metrics != nil {
			e.metrics.RebuildObserve(d)
		}
	}
	if e.opts.OutputDir != "" {
		if err := e.writeIteration(iteration, snap, observations); err != nil {
			return snap, fmt.Errorf("iteration %d diagnostics: %w", iteration, err)
		}
	}
	for _, sink := range e.sinks {
		if err := ctx.Err(); err != nil {
			return snap, err
		}
		if err := sink(ctx, iteration, snap); err != nil {
			log.Printf("[feedback] iteration %d sink error: %v", iteration, err)
		}
	}
	return snap, nil
}

// WritesDiagnostics reports whether an output directory is configured.
func (e *Engine) WritesDiagnostics() bool { return e.opts.OutputDir != "" }

// IterationDir is the diagnostics directory of an iteration.
func (e *Engine) IterationDir(iteration int) string {
	return filepath.Join(e.opts.OutputDir, "it."+strconv.Itoa(iteration))
}

func (e *Engine) writeIteration(iteration int, snap *history.Snapshot, observations []trips.Observation) error {
	dir := e.IterationDir(iteration)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	times, distances := e.agg.TimeBinner(), e.agg.DistanceBinner()
	files := map[string]func(f *os.File) error{
		history.ZonalFile: func(f *os.File) error { return history.WriteZonalCSV(f, snap, times.Count()) },
		history.DistanceFile: func(f *os.File) error {
			return history.WriteDistanceCSV(f, snap, distances.Count(), times.Count())
		},
		history.GlobalFile: func(f *os.File) error { return history.WriteGlobalCSV(f, snap) },
	}
	if e.opts.WriteDetailedStats {
		files[history.TripsFile] = func(f *os.File) error { return history.WriteTripsCSV(f, observations) }
	}
	for name, write := range files {
		if err := writeFile(filepath.Join(dir, name), write); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown writes the link to zone assignments and the zone geometries.
func (e *Engine) Shutdown() error {
	if e.opts.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(e.opts.OutputDir, 0o755); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(e.opts.OutputDir, LinkZonesFile), func(f *os.File) error {
		return e.zones.WriteLinkZones(f)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(e.opts.OutputDir, ZonesFile), func(f *os.File) error {
		return e.zones.WriteGeoJSON(f)
	}); err != nil {
		return err
	}
	log.Printf("[feedback] wrote %d zones and %d link assignments to %s",
		len(e.zones.Zones()), e.zones.CachedLinks(), e.opts.OutputDir)
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
